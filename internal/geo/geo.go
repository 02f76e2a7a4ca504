// Package geo scores the geographic risk of a transaction: origin
// country, anonymizing networks, billing mismatch, and impossible travel
// against the customer's last recorded location.
package geo

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/ipintel"
)

// Flags raised by the geographic checks.
const (
	FlagIPMissing         = "ip_address_missing"
	FlagHighRiskCountry   = "high_risk_country"
	FlagAnonymousProxy    = "anonymous_proxy_detected"
	FlagBillingMismatch   = "ip_billing_country_mismatch"
	FlagImpossibleTravel  = "impossible_travel_detected"
	FlagUnavailable       = "geo_check_unavailable"
	earthRadiusMiles      = 3959.0
	missingIPContribution = 50
)

// Locations is the slice of the evaluation store the analyzer reads and
// writes customer locations through.
type Locations interface {
	LastLocation(ctx context.Context, customerID string) (*fraud.Location, error)
	RecordLocation(ctx context.Context, customerID string, loc *fraud.Location) error
}

// Analyzer computes the geographic signal from resolved IP intelligence.
type Analyzer struct {
	resolver  ipintel.Resolver
	locations Locations
	limits    fraud.GeoLimits
	logger    *slog.Logger
}

// NewAnalyzer creates a geographic analyzer.
func NewAnalyzer(resolver ipintel.Resolver, locations Locations, limits fraud.GeoLimits, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		resolver:  resolver,
		locations: locations,
		limits:    limits,
		logger:    logger.With("component", "geo"),
	}
}

// Analyze scores the transaction's origin. A missing IP is a small fixed
// contribution with no further checks; a resolver failure degrades to the
// zero signal.
func (a *Analyzer) Analyze(ctx context.Context, tx *fraud.Transaction) fraud.SubScore {
	if fraud.IsPlaceholderIP(tx.IPAddress) {
		return fraud.NewSubScore(missingIPContribution, []string{FlagIPMissing})
	}
	if a.resolver == nil {
		return fraud.UnavailableSubScore(FlagUnavailable)
	}

	info, err := a.resolver.Resolve(ctx, tx.IPAddress)
	if err != nil {
		a.logger.Warn("geolocation failed, degrading to zero signal",
			"ip", tx.IPAddress, "error", err)
		return fraud.UnavailableSubScore(FlagUnavailable)
	}

	score := 0
	var flags []string

	if a.limits.IsHighRiskCountry(info.CountryCode) {
		score += 400
		flags = append(flags, FlagHighRiskCountry)
	}
	if info.Anonymous() {
		score += 250
		flags = append(flags, FlagAnonymousProxy)
	}
	if tx.BillingAddress != nil && tx.BillingAddress.Country != "" && info.CountryCode != "" &&
		!strings.EqualFold(tx.BillingAddress.Country, info.CountryCode) {
		score += 200
		flags = append(flags, FlagBillingMismatch)
	}

	now := tx.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	if s, f := a.checkTravel(ctx, tx.CustomerID, info, now); s > 0 {
		score += s
		flags = append(flags, f)
	}

	a.recordLocation(ctx, tx.CustomerID, info, now)

	result := fraud.NewSubScore(score, flags)
	result.Details = map[string]any{
		"country": info.CountryCode,
		"city":    info.City,
	}
	return result
}

// checkTravel compares the resolved location with the customer's last
// recorded one. A lookup failure or a location without coordinates skips
// the check.
func (a *Analyzer) checkTravel(ctx context.Context, customerID string, info *ipintel.Info, now time.Time) (int, string) {
	if a.locations == nil || customerID == "" || !info.HasLocation() {
		return 0, ""
	}
	last, err := a.locations.LastLocation(ctx, customerID)
	if err != nil {
		a.logger.Warn("last-location lookup failed, skipping travel check",
			"customer_id", customerID, "error", err)
		return 0, ""
	}
	if last == nil {
		return 0, ""
	}

	elapsed := now.Sub(last.SeenAt)
	if elapsed < 0 || elapsed >= a.limits.ImpossibleTravelWindow {
		return 0, ""
	}
	distance := haversineMiles(last.Latitude, last.Longitude, info.Latitude, info.Longitude)
	if distance > a.limits.ImpossibleTravelMiles {
		return 300, FlagImpossibleTravel
	}
	return 0, ""
}

// recordLocation is best-effort: a write failure only costs the next
// evaluation its travel baseline.
func (a *Analyzer) recordLocation(ctx context.Context, customerID string, info *ipintel.Info, now time.Time) {
	if a.locations == nil || customerID == "" || !info.HasLocation() {
		return
	}
	loc := &fraud.Location{
		Latitude:  info.Latitude,
		Longitude: info.Longitude,
		Country:   info.CountryCode,
		City:      info.City,
		SeenAt:    now,
	}
	if err := a.locations.RecordLocation(ctx, customerID, loc); err != nil {
		a.logger.Warn("location write failed", "customer_id", customerID, "error", err)
	}
}

// haversineMiles is the great-circle distance between two points.
func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
