package ipintel

import (
	"context"
	"net"
	"sync"
)

// StaticResolver serves intelligence from an in-memory table of CIDR
// ranges and exact IPs. Used in development and tests, and as the default
// resolver when no GeoIP database is configured.
type StaticResolver struct {
	mu     sync.RWMutex
	exact  map[string]Info
	ranges []rangeEntry
}

type rangeEntry struct {
	net  *net.IPNet
	info Info
}

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{exact: make(map[string]Info)}
}

// Add registers intelligence for an exact IP address.
func (r *StaticResolver) Add(ip string, info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info.IP = ip
	r.exact[ip] = info
}

// AddRange registers intelligence for a CIDR range. Invalid CIDRs are
// ignored.
func (r *StaticResolver) AddRange(cidr string, info Info) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ranges = append(r.ranges, rangeEntry{net: network, info: info})
}

// Resolve returns the registered intelligence for the IP, preferring an
// exact match over a range match. Unknown IPs return ErrUnresolvable.
func (r *StaticResolver) Resolve(ctx context.Context, ip string) (*Info, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, ErrUnresolvable
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, ok := r.exact[ip]; ok {
		out := info
		return &out, nil
	}
	for _, e := range r.ranges {
		if e.net.Contains(parsed) {
			out := e.info
			out.IP = ip
			return &out, nil
		}
	}
	return nil, ErrUnresolvable
}
