// Package device scores browser, fingerprint and network signals for a
// transaction: automation markers in the user agent, fingerprint reuse
// across customers, anonymizing networks, and session concurrency.
package device

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/ipintel"
)

// Flags raised by the device checks.
const (
	FlagSuspiciousUserAgent = "suspicious_user_agent"
	FlagHeadlessBrowser     = "headless_browser_detected"
	FlagNewDevice           = "new_device"
	FlagSharedDevice        = "device_shared_multiple_users"
	FlagVPN                 = "vpn_detected"
	FlagTor                 = "tor_detected"
	FlagProxy               = "proxy_detected"
	FlagExcessiveSessions   = "excessive_concurrent_sessions"
	FlagUnavailable         = "device_check_unavailable"
)

var (
	automationMarkers = []string{"bot", "crawler", "spider", "automated"}
	headlessMarkers   = []string{"headless", "phantomjs", "selenium"}
)

// History is the slice of the evaluation store the analyzer reads.
type History interface {
	SeenDevice(ctx context.Context, customerID, fingerprint string) (bool, error)
	DeviceCustomers(ctx context.Context, fingerprint string) (int, error)
	SessionCount(ctx context.Context, customerID string, since time.Time) (int, error)
}

// Analyzer computes the device signal. Each sub-check degrades
// independently: a failing lookup contributes nothing for that check and
// the rest still run.
type Analyzer struct {
	history  History
	resolver ipintel.Resolver
	limits   fraud.DeviceLimits
	logger   *slog.Logger
}

// NewAnalyzer creates a device analyzer. The resolver may be nil when no
// network intelligence source is configured.
func NewAnalyzer(history History, resolver ipintel.Resolver, limits fraud.DeviceLimits, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		history:  history,
		resolver: resolver,
		limits:   limits,
		logger:   logger.With("component", "device"),
	}
}

// Analyze scores the transaction's user agent, fingerprint, network and
// session signals. Missing inputs skip their checks; they are not errors.
func (a *Analyzer) Analyze(ctx context.Context, tx *fraud.Transaction) fraud.SubScore {
	if a.history == nil {
		return fraud.UnavailableSubScore(FlagUnavailable)
	}

	now := tx.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	score := 0
	var flags []string

	if s, f := a.checkUserAgent(tx.UserAgent); s > 0 {
		score += s
		flags = append(flags, f...)
	}

	if s, f := a.checkFingerprint(ctx, tx); s > 0 {
		score += s
		flags = append(flags, f...)
	}

	if s, f := a.checkNetwork(ctx, tx.IPAddress); s > 0 {
		score += s
		flags = append(flags, f...)
	}

	if s, f := a.checkSessions(ctx, tx.CustomerID, now); s > 0 {
		score += s
		flags = append(flags, f...)
	}

	return fraud.NewSubScore(score, flags)
}

func (a *Analyzer) checkUserAgent(ua string) (int, []string) {
	if ua == "" {
		return 0, nil
	}
	lower := strings.ToLower(ua)

	score := 0
	var flags []string
	if containsAny(lower, automationMarkers) {
		score += 150
		flags = append(flags, FlagSuspiciousUserAgent)
	}
	if containsAny(lower, headlessMarkers) {
		score += 400
		flags = append(flags, FlagHeadlessBrowser)
	}
	return score, flags
}

func (a *Analyzer) checkFingerprint(ctx context.Context, tx *fraud.Transaction) (int, []string) {
	if tx.DeviceFingerprint == "" {
		return 0, nil
	}

	score := 0
	var flags []string

	if tx.CustomerID != "" {
		seen, err := a.history.SeenDevice(ctx, tx.CustomerID, tx.DeviceFingerprint)
		if err != nil {
			a.logger.Warn("device lookup failed, skipping new-device check",
				"customer_id", tx.CustomerID, "error", err)
		} else if !seen {
			score += 50
			flags = append(flags, FlagNewDevice)
		}
	}

	customers, err := a.history.DeviceCustomers(ctx, tx.DeviceFingerprint)
	if err != nil {
		a.logger.Warn("device-sharing lookup failed, skipping check", "error", err)
	} else if customers > a.limits.SharedCustomerLimit {
		score += 300
		flags = append(flags, FlagSharedDevice)
	}

	return score, flags
}

func (a *Analyzer) checkNetwork(ctx context.Context, ip string) (int, []string) {
	if a.resolver == nil || fraud.IsPlaceholderIP(ip) {
		return 0, nil
	}
	info, err := a.resolver.Resolve(ctx, ip)
	if err != nil {
		if !errors.Is(err, ipintel.ErrUnresolvable) {
			a.logger.Warn("network intelligence lookup failed, skipping check",
				"ip", ip, "error", err)
		}
		return 0, nil
	}

	score := 0
	var flags []string
	if info.IsVPN {
		score += 100
		flags = append(flags, FlagVPN)
	}
	if info.IsTor {
		score += 500
		flags = append(flags, FlagTor)
	}
	if info.IsProxy {
		score += 200
		flags = append(flags, FlagProxy)
	}
	return score, flags
}

func (a *Analyzer) checkSessions(ctx context.Context, customerID string, now time.Time) (int, []string) {
	if customerID == "" {
		return 0, nil
	}
	sessions, err := a.history.SessionCount(ctx, customerID, now.Add(-a.limits.SessionWindow))
	if err != nil {
		a.logger.Warn("session lookup failed, skipping check",
			"customer_id", customerID, "error", err)
		return 0, nil
	}
	if sessions > a.limits.SessionLimit {
		return 200, []string{FlagExcessiveSessions}
	}
	return 0, nil
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
