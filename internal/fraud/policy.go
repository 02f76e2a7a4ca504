package fraud

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Policy is the immutable scoring configuration. Built once at process
// start and passed by value into every component; nothing reads scoring
// thresholds ambiently.
type Policy struct {
	MLWeight       float64
	VelocityWeight float64
	DeviceWeight   float64
	GeoWeight      float64

	// FlagMultiplier is the per-distinct-flag step applied to the
	// weighted composite before clamping.
	FlagMultiplier float64

	CriticalThreshold int
	BlockThreshold    int
	ReviewThreshold   int

	Velocity VelocityLimits
	Device   DeviceLimits
	Geo      GeoLimits
}

// VelocityLimits bound a customer's transaction rate and volume.
type VelocityLimits struct {
	HourlyTxLimit     int
	DailyTxLimit      int
	HourlyAmountLimit decimal.Decimal
	DailyAmountLimit  decimal.Decimal
	BurstWindow       time.Duration
	BurstMax          int
	Lookback          time.Duration
}

// DeviceLimits bound fingerprint sharing and session concurrency.
type DeviceLimits struct {
	SharedCustomerLimit int
	SessionLimit        int
	SessionWindow       time.Duration
}

// GeoLimits configure the geographic checks.
type GeoLimits struct {
	HighRiskCountries      []string
	ImpossibleTravelMiles  float64
	ImpossibleTravelWindow time.Duration
}

// IsHighRiskCountry reports whether the ISO country code is in the
// configured high-risk set.
func (g GeoLimits) IsHighRiskCountry(code string) bool {
	for _, c := range g.HighRiskCountries {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

// DefaultPolicy returns the stock scoring policy.
func DefaultPolicy() Policy {
	return Policy{
		MLWeight:       0.40,
		VelocityWeight: 0.25,
		DeviceWeight:   0.20,
		GeoWeight:      0.15,
		FlagMultiplier: 0.10,

		CriticalThreshold: 950,
		BlockThreshold:    800,
		ReviewThreshold:   500,

		Velocity: VelocityLimits{
			HourlyTxLimit:     10,
			DailyTxLimit:      50,
			HourlyAmountLimit: decimal.NewFromInt(5000),
			DailyAmountLimit:  decimal.NewFromInt(20000),
			BurstWindow:       60 * time.Second,
			BurstMax:          3,
			Lookback:          24 * time.Hour,
		},
		Device: DeviceLimits{
			SharedCustomerLimit: 3,
			SessionLimit:        5,
			SessionWindow:       time.Hour,
		},
		Geo: GeoLimits{
			HighRiskCountries:      []string{"NG", "PK", "BD", "VE", "KP", "IR", "SY", "CU"},
			ImpossibleTravelMiles:  500,
			ImpossibleTravelWindow: 2 * time.Hour,
		},
	}
}
