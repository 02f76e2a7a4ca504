package ipintel

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// MaxMindResolver resolves IPs against a local MaxMind GeoIP2/GeoLite2
// City database. The free City database carries no VPN/Tor data, so those
// classifications stay false here; the anonymous-proxy trait is mapped to
// IsProxy when present.
type MaxMindResolver struct {
	city *geoip2.Reader
}

// NewMaxMindResolver opens the City database at the given path.
func NewMaxMindResolver(dbPath string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindResolver{city: reader}, nil
}

// Resolve looks up the IP in the City database.
func (r *MaxMindResolver) Resolve(ctx context.Context, ip string) (*Info, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, ErrUnresolvable
	}

	record, err := r.city.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup: %w", err)
	}
	if record.Country.IsoCode == "" && record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return nil, ErrUnresolvable
	}

	info := &Info{
		IP:          ip,
		CountryCode: record.Country.IsoCode,
		City:        record.City.Names["en"],
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
		IsProxy:     record.Traits.IsAnonymousProxy,
	}
	if len(record.Subdivisions) > 0 {
		info.Region = record.Subdivisions[0].Names["en"]
	}
	return info, nil
}

// Close releases the underlying database reader.
func (r *MaxMindResolver) Close() error {
	return r.city.Close()
}
