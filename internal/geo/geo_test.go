package geo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/ipintel"
)

var geoNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type stubLocations struct {
	last     *fraud.Location
	lastErr  error
	recorded *fraud.Location
}

func (s *stubLocations) LastLocation(ctx context.Context, customerID string) (*fraud.Location, error) {
	return s.last, s.lastErr
}

func (s *stubLocations) RecordLocation(ctx context.Context, customerID string, loc *fraud.Location) error {
	s.recorded = loc
	return nil
}

func usResolver() *ipintel.StaticResolver {
	r := ipintel.NewStaticResolver()
	r.Add("203.0.113.9", ipintel.Info{CountryCode: "US", City: "New York", Latitude: 40.7128, Longitude: -74.0060})
	return r
}

func newTestAnalyzer(r ipintel.Resolver, l Locations) *Analyzer {
	return NewAnalyzer(r, l, fraud.DefaultPolicy().Geo, nil)
}

func baseTx() *fraud.Transaction {
	return &fraud.Transaction{
		CustomerID: "cust_1",
		IPAddress:  "203.0.113.9",
		Timestamp:  geoNow,
	}
}

func TestAnalyze_MissingIP(t *testing.T) {
	a := newTestAnalyzer(usResolver(), &stubLocations{})

	for _, ip := range []string{"", "0.0.0.0", "unknown"} {
		tx := baseTx()
		tx.IPAddress = ip

		result := a.Analyze(context.Background(), tx)

		if result.Score != 50 {
			t.Errorf("ip=%q: expected score 50, got %d", ip, result.Score)
		}
		if result.Tier != fraud.TierLow {
			t.Errorf("ip=%q: expected LOW tier, got %s", ip, result.Tier)
		}
		if !hasFlag(result.Flags, FlagIPMissing) {
			t.Errorf("ip=%q: expected %s, got %v", ip, FlagIPMissing, result.Flags)
		}
	}
}

func TestAnalyze_ResolverFailure(t *testing.T) {
	a := newTestAnalyzer(ipintel.NewStaticResolver(), &stubLocations{})

	result := a.Analyze(context.Background(), baseTx())

	if result.Score != 0 || !result.Unavailable {
		t.Errorf("Expected unavailable zero signal, got %+v", result)
	}
	if !hasFlag(result.Flags, FlagUnavailable) {
		t.Errorf("Expected %s, got %v", FlagUnavailable, result.Flags)
	}
}

func TestAnalyze_HighRiskCountry(t *testing.T) {
	r := ipintel.NewStaticResolver()
	r.Add("203.0.113.9", ipintel.Info{CountryCode: "NG"})
	a := newTestAnalyzer(r, &stubLocations{})

	result := a.Analyze(context.Background(), baseTx())

	if result.Score != 400 {
		t.Errorf("Expected score 400, got %d", result.Score)
	}
	if !hasFlag(result.Flags, FlagHighRiskCountry) {
		t.Errorf("Expected %s, got %v", FlagHighRiskCountry, result.Flags)
	}
}

func TestAnalyze_AnonymousProxy(t *testing.T) {
	r := ipintel.NewStaticResolver()
	r.Add("203.0.113.9", ipintel.Info{CountryCode: "DE", IsVPN: true})
	a := newTestAnalyzer(r, &stubLocations{})

	result := a.Analyze(context.Background(), baseTx())

	if result.Score != 250 {
		t.Errorf("Expected score 250, got %d", result.Score)
	}
	if !hasFlag(result.Flags, FlagAnonymousProxy) {
		t.Errorf("Expected %s, got %v", FlagAnonymousProxy, result.Flags)
	}
}

func TestAnalyze_BillingMismatch(t *testing.T) {
	a := newTestAnalyzer(usResolver(), &stubLocations{})
	tx := baseTx()
	tx.BillingAddress = &fraud.Address{Country: "GB"}

	result := a.Analyze(context.Background(), tx)

	if result.Score != 200 {
		t.Errorf("Expected score 200, got %d", result.Score)
	}
	if !hasFlag(result.Flags, FlagBillingMismatch) {
		t.Errorf("Expected %s, got %v", FlagBillingMismatch, result.Flags)
	}
}

func TestAnalyze_BillingMatchCaseInsensitive(t *testing.T) {
	a := newTestAnalyzer(usResolver(), &stubLocations{})
	tx := baseTx()
	tx.BillingAddress = &fraud.Address{Country: "us"}

	result := a.Analyze(context.Background(), tx)

	if hasFlag(result.Flags, FlagBillingMismatch) {
		t.Errorf("Case-insensitive match should not flag, got %v", result.Flags)
	}
}

func TestAnalyze_ImpossibleTravel(t *testing.T) {
	// Last seen in Los Angeles 30 minutes ago, now resolving to New York:
	// roughly 2450 miles in half an hour.
	locs := &stubLocations{last: &fraud.Location{
		Latitude:  34.0522,
		Longitude: -118.2437,
		SeenAt:    geoNow.Add(-30 * time.Minute),
	}}
	a := newTestAnalyzer(usResolver(), locs)

	result := a.Analyze(context.Background(), baseTx())

	if result.Score != 300 {
		t.Errorf("Expected score 300, got %d", result.Score)
	}
	if !hasFlag(result.Flags, FlagImpossibleTravel) {
		t.Errorf("Expected %s, got %v", FlagImpossibleTravel, result.Flags)
	}
	if locs.recorded == nil || locs.recorded.City != "New York" {
		t.Errorf("Expected current location recorded, got %+v", locs.recorded)
	}
}

func TestAnalyze_SlowTravelNotFlagged(t *testing.T) {
	// Same distance but outside the two-hour window.
	locs := &stubLocations{last: &fraud.Location{
		Latitude:  34.0522,
		Longitude: -118.2437,
		SeenAt:    geoNow.Add(-6 * time.Hour),
	}}
	a := newTestAnalyzer(usResolver(), locs)

	result := a.Analyze(context.Background(), baseTx())

	if hasFlag(result.Flags, FlagImpossibleTravel) {
		t.Errorf("Travel outside the window should not flag, got %v", result.Flags)
	}
}

func TestAnalyze_LocationLookupFailureSkipsTravelOnly(t *testing.T) {
	r := ipintel.NewStaticResolver()
	r.Add("203.0.113.9", ipintel.Info{CountryCode: "NG", Latitude: 6.5244, Longitude: 3.3792})
	a := newTestAnalyzer(r, &stubLocations{lastErr: errors.New("store down")})

	result := a.Analyze(context.Background(), baseTx())

	if result.Score != 400 {
		t.Errorf("Expected country check to survive location failure, got %d", result.Score)
	}
	if result.Unavailable {
		t.Error("Partial degradation must not mark the signal unavailable")
	}
}

func TestHaversineMiles(t *testing.T) {
	// New York to Los Angeles is about 2445 miles.
	d := haversineMiles(40.7128, -74.0060, 34.0522, -118.2437)
	if d < 2400 || d > 2500 {
		t.Errorf("Expected ~2445 miles, got %.1f", d)
	}

	if d := haversineMiles(40.7128, -74.0060, 40.7128, -74.0060); d != 0 {
		t.Errorf("Expected zero distance for identical points, got %f", d)
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
