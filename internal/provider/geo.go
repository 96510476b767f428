// ABOUTME: GeoIP country resolution for deriving an identity's locale.
// ABOUTME: Wraps a GeoLite2 country database; a noop resolver covers its absence.

package provider

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// CountryResolver maps a client IP address to an ISO country code.
// An empty code means unknown; resolution failures never affect relay
// correctness, only the derived display locale.
type CountryResolver interface {
	LookupCountry(ip string) (string, error)
}

// GeoIP resolves countries from a GeoLite2 country database file.
type GeoIP struct {
	db *geoip2.Reader
}

// NewGeoIP opens the database at the given path.
func NewGeoIP(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening geoip database: %w", err)
	}
	return &GeoIP{db: db}, nil
}

// LookupCountry returns the ISO country code for an IP address, or "" when
// the address is not in the database.
func (g *GeoIP) LookupCountry(ip string) (string, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return "", fmt.Errorf("invalid ip address %q", ip)
	}
	record, err := g.db.Country(addr)
	if err != nil {
		return "", fmt.Errorf("country lookup: %w", err)
	}
	return record.Country.IsoCode, nil
}

// Close releases the database handle.
func (g *GeoIP) Close() error {
	return g.db.Close()
}

// NoopResolver is used when no GeoIP database is configured; every lookup
// reports unknown and identities fall back to the default locale.
type NoopResolver struct{}

// LookupCountry always reports unknown.
func (NoopResolver) LookupCountry(string) (string, error) {
	return "", nil
}
