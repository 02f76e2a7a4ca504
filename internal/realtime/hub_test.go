package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mbd888/riskline/internal/alerts"
	"github.com/mbd888/riskline/internal/fraud"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func highAlert(customerID string) *alerts.Alert {
	return &alerts.Alert{
		AlertType:    "fraud_risk",
		EvaluationID: "eval_1",
		CustomerID:   customerID,
		Score:        870,
		Level:        fraud.LevelHigh,
		Severity:     alerts.SeverityHigh,
	}
}

func alertEvent(a *alerts.Alert) *Event {
	return &Event{Type: "alert", Timestamp: time.Now(), Alert: a}
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{}}

	if !h.shouldSend(client, alertEvent(highAlert("cust_1"))) {
		t.Error("Empty subscription (no filters) should receive alerts")
	}
}

func TestShouldSend_CustomerFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{CustomerIDs: []string{"cust_1", "cust_2"}}}

	if !h.shouldSend(client, alertEvent(highAlert("cust_1"))) {
		t.Error("Should receive alerts for watched customers")
	}
	if h.shouldSend(client, alertEvent(highAlert("cust_other"))) {
		t.Error("Should NOT receive alerts for unwatched customers")
	}
}

func TestShouldSend_MinLevelFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{MinLevel: fraud.LevelCritical}}

	critical := highAlert("cust_1")
	critical.Level = fraud.LevelCritical

	if !h.shouldSend(client, alertEvent(critical)) {
		t.Error("Should receive CRITICAL with CRITICAL floor")
	}
	if h.shouldSend(client, alertEvent(highAlert("cust_1"))) {
		t.Error("Should NOT receive HIGH with CRITICAL floor")
	}
}

func TestShouldSend_NilAlertDropped(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{}}

	if h.shouldSend(client, &Event{Type: "alert", Timestamp: time.Now()}) {
		t.Error("Events without an alert payload must be dropped")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_PublishAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	h.Publish(highAlert("cust_1"))
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Publish(highAlert("cust_1"))

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only watches one customer
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{CustomerIDs: []string{"cust_watched"}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Alert for another customer: filtered out
	h.Publish(highAlert("cust_other"))
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive alert for unwatched customer")
	default:
		// Good - filtered out
	}

	// Alert for the watched customer: delivered
	h.Publish(highAlert("cust_watched"))

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive alert for watched customer")
	}
}
