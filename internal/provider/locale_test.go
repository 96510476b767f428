// ABOUTME: Tests for country to locale mapping.
// ABOUTME: Unknown and empty countries fall back to the default.

package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocaleForCountry(t *testing.T) {
	assert.Equal(t, "fr", LocaleForCountry("FR"))
	assert.Equal(t, "pt", LocaleForCountry("BR"))
	assert.Equal(t, "de", LocaleForCountry("AT"))
	assert.Equal(t, DefaultLocale, LocaleForCountry("ZZ"))
	assert.Equal(t, DefaultLocale, LocaleForCountry(""))
}

func TestNoopResolver(t *testing.T) {
	country, err := NoopResolver{}.LookupCountry("203.0.113.7")
	assert.NoError(t, err)
	assert.Empty(t, country)
}
