// Package geoip resolves client countries for locale negotiation.
package geoip

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned by a resolver without a database.
var ErrUnavailable = errors.New("geoip resolver unavailable")

// Resolver looks countries up in a MaxMind GeoIP2/GeoLite2 country database.
type Resolver struct {
	reader *geoip2.Reader
}

// Open loads the database at path. An empty path yields a nil resolver, which
// is valid and resolves nothing.
func Open(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return &Resolver{reader: reader}, nil
}

// CountryCode returns the ISO country code of ip. Private, loopback and
// unspecified addresses resolve to "" without touching the database.
func (r *Resolver) CountryCode(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	if !routable(addr) {
		return "", nil
	}
	record, err := r.reader.Country(net.IP(addr.AsSlice()))
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	return strings.ToUpper(record.Country.IsoCode), nil
}

// Lookup adapts the resolver to the i18n middleware. A nil resolver yields a
// nil lookup so the middleware skips GeoIP entirely.
func (r *Resolver) Lookup() func(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.CountryCode
}

func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

func routable(addr netip.Addr) bool {
	addr = addr.Unmap()
	return !(addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsMulticast())
}
