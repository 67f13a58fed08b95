package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	named string
}

func (s *recordingSender) Send(_ context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, title+": "+message)
	return nil
}

func (s *recordingSender) Name() string { return s.named }

func (s *recordingSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type fakeBus struct {
	mu   sync.Mutex
	msgs []domain.StreamMessage
}

func (b *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := time.Now().Format("20060102150405.000000000")
	b.msgs = append(b.msgs, domain.StreamMessage{ID: id, Payload: payload})
	return nil
}

func (b *fakeBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for _, m := range b.msgs {
		if lastID != "0" && m.ID <= lastID {
			continue
		}
		out = append(out, m)
		if len(out) >= count {
			break
		}
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func mustAppend(t *testing.T, bus *fakeBus, ev domain.Event) {
	t.Helper()
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if err := bus.StreamAppend(context.Background(), "tradepost:events", payload); err != nil {
		t.Fatalf("stream append: %v", err)
	}
}

func TestRelayNotifiesNewEvents(t *testing.T) {
	bus := &fakeBus{}
	sender := &recordingSender{named: "test"}
	notifier := NewNotifier([]Sender{sender}, nil, testLogger())
	relay := NewRelay(bus, notifier, nil, "tradepost:events", 10*time.Millisecond, testLogger())

	// Appended before the relay starts; must be skipped on replay.
	stale := domain.NewEvent(domain.EventItemSold, time.Now().UTC().Add(-time.Hour), domain.ItemSoldBody{
		Collection: common.HexToAddress("0x01"),
		UnitID:     1,
	})
	mustAppend(t, bus, stale)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = relay.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)

	fresh := domain.NewEvent(domain.EventItemSold, time.Now().UTC().Add(time.Minute), domain.ItemSoldBody{
		Collection:     common.HexToAddress("0xabc"),
		UnitID:         7,
		Quantity:       1,
		Gross:          100,
		PlatformFee:    2,
		RoyaltyFee:     9,
		SellerProceeds: 89,
		Path:           domain.SaleFromListing,
	})
	mustAppend(t, bus, fresh)

	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs := sender.messages()
		if len(msgs) > 0 {
			if !strings.Contains(msgs[0], "Item sold") {
				t.Fatalf("unexpected notification: %q", msgs[0])
			}
			if !strings.Contains(msgs[0], "#7") {
				t.Fatalf("notification missing unit id: %q", msgs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for notification")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := len(sender.messages()); got != 1 {
		t.Fatalf("sent = %d, want 1 (stale event must be skipped)", got)
	}

	cancel()
	<-done
}

type countingLimiter struct {
	mu    sync.Mutex
	waits []string
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (l *countingLimiter) Wait(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits = append(l.waits, key)
	return nil
}

func (l *countingLimiter) waited() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waits)
}

func TestRelayPacesAlertsThroughLimiter(t *testing.T) {
	bus := &fakeBus{}
	sender := &recordingSender{named: "test"}
	limiter := &countingLimiter{}
	notifier := NewNotifier([]Sender{sender}, nil, testLogger())
	relay := NewRelay(bus, notifier, limiter, "tradepost:events", 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = relay.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	mustAppend(t, bus, domain.NewEvent(domain.EventItemSold, time.Now().UTC().Add(time.Minute), domain.ItemSoldBody{
		Collection: common.HexToAddress("0xabc"),
		UnitID:     7,
	}))

	deadline := time.Now().Add(2 * time.Second)
	for len(sender.messages()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for notification")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Every alert checks in with the shared limiter key first.
	if limiter.waited() != 1 {
		t.Fatalf("limiter consulted %d times, want 1", limiter.waited())
	}
	if limiter.waits[0] != "notify:alerts" {
		t.Fatalf("limiter key = %q", limiter.waits[0])
	}

	cancel()
	<-done
}

func TestSummarizeSkipsShadowCancellations(t *testing.T) {
	body, _ := json.Marshal(domain.ListingCancelledBody{
		Collection: common.HexToAddress("0x01"),
		UnitID:     3,
		Origin:     domain.CancelShadow,
	})
	_, _, ok := summarize(relayEvent{
		Type: domain.EventListingCancelled,
		At:   time.Now(),
		Body: body,
	})
	if ok {
		t.Fatal("shadow cancellations must not notify")
	}

	body, _ = json.Marshal(domain.ListingCancelledBody{
		Collection: common.HexToAddress("0x01"),
		UnitID:     3,
		Origin:     domain.CancelByAuction,
	})
	title, msg, ok := summarize(relayEvent{
		Type: domain.EventListingCancelled,
		At:   time.Now(),
		Body: body,
	})
	if !ok {
		t.Fatal("auction cancellations must notify")
	}
	if title != "Listing cancelled" || !strings.Contains(msg, "auction_venue") {
		t.Fatalf("unexpected summary: %q %q", title, msg)
	}
}
