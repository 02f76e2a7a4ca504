package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/ipintel"
)

type stubHistory struct {
	seen          bool
	seenErr       error
	customers     int
	customersErr  error
	sessions      int
	sessionsErr   error
	seenCalled    bool
	sessionsSince time.Time
}

func (h *stubHistory) SeenDevice(ctx context.Context, customerID, fingerprint string) (bool, error) {
	h.seenCalled = true
	return h.seen, h.seenErr
}

func (h *stubHistory) DeviceCustomers(ctx context.Context, fingerprint string) (int, error) {
	return h.customers, h.customersErr
}

func (h *stubHistory) SessionCount(ctx context.Context, customerID string, since time.Time) (int, error) {
	h.sessionsSince = since
	return h.sessions, h.sessionsErr
}

func knownDevice() *stubHistory {
	return &stubHistory{seen: true, customers: 1, sessions: 1}
}

func newTestAnalyzer(h History, r ipintel.Resolver) *Analyzer {
	return NewAnalyzer(h, r, fraud.DefaultPolicy().Device, nil)
}

func baseTx() *fraud.Transaction {
	return &fraud.Transaction{
		CustomerID:        "cust_1",
		UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
		DeviceFingerprint: "fp_abc",
		IPAddress:         "203.0.113.9",
		Timestamp:         time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
	}
}

func TestAnalyze_CleanDevice(t *testing.T) {
	a := newTestAnalyzer(knownDevice(), nil)

	result := a.Analyze(context.Background(), baseTx())

	if result.Score != 0 {
		t.Errorf("Expected score 0 for a clean known device, got %d", result.Score)
	}
	if len(result.Flags) != 0 {
		t.Errorf("Expected no flags, got %v", result.Flags)
	}
}

func TestAnalyze_HeadlessBrowser(t *testing.T) {
	a := newTestAnalyzer(knownDevice(), nil)
	tx := baseTx()
	tx.UserAgent = "Mozilla/5.0 HeadlessChrome/120.0.0.0"

	result := a.Analyze(context.Background(), tx)

	if result.Score != 400 {
		t.Errorf("Expected score 400, got %d", result.Score)
	}
	if !hasFlag(result.Flags, FlagHeadlessBrowser) {
		t.Errorf("Expected %s, got %v", FlagHeadlessBrowser, result.Flags)
	}
}

func TestAnalyze_AutomatedUserAgent(t *testing.T) {
	a := newTestAnalyzer(knownDevice(), nil)
	tx := baseTx()
	tx.UserAgent = "python-requests/2.31 crawler"

	result := a.Analyze(context.Background(), tx)

	if result.Score != 150 {
		t.Errorf("Expected score 150, got %d", result.Score)
	}
	if !hasFlag(result.Flags, FlagSuspiciousUserAgent) {
		t.Errorf("Expected %s, got %v", FlagSuspiciousUserAgent, result.Flags)
	}
}

func TestAnalyze_NewAndSharedDevice(t *testing.T) {
	h := &stubHistory{seen: false, customers: 5, sessions: 1}
	a := newTestAnalyzer(h, nil)

	result := a.Analyze(context.Background(), baseTx())

	if !hasFlag(result.Flags, FlagNewDevice) {
		t.Errorf("Expected %s, got %v", FlagNewDevice, result.Flags)
	}
	if !hasFlag(result.Flags, FlagSharedDevice) {
		t.Errorf("Expected %s, got %v", FlagSharedDevice, result.Flags)
	}
	if result.Score != 350 {
		t.Errorf("Expected 50+300=350, got %d", result.Score)
	}
}

func TestAnalyze_TorExitNode(t *testing.T) {
	resolver := ipintel.NewStaticResolver()
	resolver.Add("203.0.113.9", ipintel.Info{CountryCode: "DE", IsTor: true})
	a := newTestAnalyzer(knownDevice(), resolver)

	result := a.Analyze(context.Background(), baseTx())

	if result.Score != 500 {
		t.Errorf("Expected score 500, got %d", result.Score)
	}
	if !hasFlag(result.Flags, FlagTor) {
		t.Errorf("Expected %s, got %v", FlagTor, result.Flags)
	}
}

func TestAnalyze_VPNAndProxyStack(t *testing.T) {
	resolver := ipintel.NewStaticResolver()
	resolver.Add("203.0.113.9", ipintel.Info{CountryCode: "NL", IsVPN: true, IsProxy: true})
	a := newTestAnalyzer(knownDevice(), resolver)

	result := a.Analyze(context.Background(), baseTx())

	if result.Score != 300 {
		t.Errorf("Expected 100+200=300, got %d", result.Score)
	}
	if !hasFlag(result.Flags, FlagVPN) || !hasFlag(result.Flags, FlagProxy) {
		t.Errorf("Expected VPN and proxy flags, got %v", result.Flags)
	}
}

func TestAnalyze_ExcessiveSessions(t *testing.T) {
	h := &stubHistory{seen: true, customers: 1, sessions: 6}
	a := newTestAnalyzer(h, nil)

	result := a.Analyze(context.Background(), baseTx())

	if result.Score != 200 {
		t.Errorf("Expected score 200, got %d", result.Score)
	}
	if !hasFlag(result.Flags, FlagExcessiveSessions) {
		t.Errorf("Expected %s, got %v", FlagExcessiveSessions, result.Flags)
	}
}

func TestAnalyze_PartialDegradation(t *testing.T) {
	// Fingerprint lookups fail but the UA check still fires: one failing
	// sub-check never zeroes out the rest of the signal.
	h := &stubHistory{
		seenErr:      errors.New("store down"),
		customersErr: errors.New("store down"),
		sessions:     1,
	}
	a := newTestAnalyzer(h, nil)
	tx := baseTx()
	tx.UserAgent = "selenium-webdriver"

	result := a.Analyze(context.Background(), tx)

	if result.Score != 400 {
		t.Errorf("Expected UA-only score 400, got %d", result.Score)
	}
	if result.Unavailable {
		t.Error("Partial degradation must not mark the signal unavailable")
	}
}

func TestAnalyze_MissingInputsSkipChecks(t *testing.T) {
	h := &stubHistory{seen: false, customers: 10}
	a := newTestAnalyzer(h, nil)
	tx := baseTx()
	tx.UserAgent = ""
	tx.DeviceFingerprint = ""

	result := a.Analyze(context.Background(), tx)

	if result.Score != 0 {
		t.Errorf("Expected 0 with no UA or fingerprint, got %d", result.Score)
	}
	if h.seenCalled {
		t.Error("SeenDevice should not be called without a fingerprint")
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
