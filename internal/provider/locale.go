// ABOUTME: Country code to display locale mapping for the dashboard.
// ABOUTME: Unknown countries fall back to the default locale.

package provider

// DefaultLocale is used when a country is unknown or unmapped.
const DefaultLocale = "en"

// countryLocales maps ISO country codes to the dashboard locales that ship
// translations. The table covers the countries the official language data
// resolves to a supported locale for; anything else renders in English.
var countryLocales = map[string]string{
	"US": "en", "GB": "en", "AU": "en", "CA": "en", "NZ": "en", "IE": "en",
	"FR": "fr", "BE": "fr",
	"DE": "de", "AT": "de", "CH": "de",
	"ES": "es", "MX": "es", "AR": "es", "CO": "es", "CL": "es",
	"PT": "pt", "BR": "pt",
	"IT": "it",
	"NL": "nl",
	"PL": "pl",
	"RU": "ru", "BY": "ru",
	"UA": "uk",
	"TR": "tr",
	"JP": "ja",
	"KR": "ko",
	"CN": "zh", "TW": "zh", "HK": "zh", "SG": "zh",
	"VN": "vi",
	"TH": "th",
	"ID": "id",
}

// LocaleForCountry returns the display locale for an ISO country code.
func LocaleForCountry(code string) string {
	if locale, ok := countryLocales[code]; ok {
		return locale
	}
	return DefaultLocale
}
