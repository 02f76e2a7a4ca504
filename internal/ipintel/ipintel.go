// Package ipintel resolves IP addresses to geolocation and anonymizing
// network classifications (VPN, Tor, proxy) for the device and geographic
// analyzers.
package ipintel

import (
	"context"
	"errors"
)

// ErrUnresolvable is returned when the IP cannot be resolved at all.
// Analyzers treat it as "no signal", not as a risk indicator.
var ErrUnresolvable = errors.New("ip address could not be resolved")

// Info is the intelligence result for a single IP address.
type Info struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"countryCode,omitempty"` // ISO 3166-1 alpha-2
	Region      string  `json:"region,omitempty"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`

	IsVPN   bool `json:"isVpn"`
	IsTor   bool `json:"isTor"`
	IsProxy bool `json:"isProxy"`
}

// Anonymous reports whether the IP hides the client behind any
// anonymizing network.
func (i *Info) Anonymous() bool {
	return i.IsVPN || i.IsTor || i.IsProxy
}

// HasLocation reports whether the resolver produced usable coordinates.
func (i *Info) HasLocation() bool {
	return i.Latitude != 0 || i.Longitude != 0
}

// Resolver looks up intelligence for an IP address.
type Resolver interface {
	Resolve(ctx context.Context, ip string) (*Info, error)
}
