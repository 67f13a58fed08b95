package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/avendale/tradepost/internal/domain"
)

// Relay tails the durable event stream and turns ledger events into operator
// notifications. It polls with StreamRead rather than subscribing so a slow
// notification channel never backs up the pub/sub fan-out, and a restart
// resumes cleanly from the stream.
type Relay struct {
	bus      domain.EventBus
	notifier *Notifier
	limiter  domain.RateLimiter
	logger   *slog.Logger

	stream    string
	poll      time.Duration
	batchSize int
}

// alertKey is the shared rate-limit key for outbound alerts. Telegram and
// Discord both throttle webhook senders, so a settlement burst must drain
// slowly rather than get the channel muted.
const alertKey = "notify:alerts"

// NewRelay creates a Relay reading from the given stream. A poll of zero
// defaults to two seconds; a nil limiter sends alerts unpaced.
func NewRelay(bus domain.EventBus, notifier *Notifier, limiter domain.RateLimiter, stream string, poll time.Duration, logger *slog.Logger) *Relay {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Relay{
		bus:       bus,
		notifier:  notifier,
		limiter:   limiter,
		logger:    logger.With(slog.String("component", "relay")),
		stream:    stream,
		poll:      poll,
		batchSize: 100,
	}
}

// Run polls the stream until the context is cancelled. Events appended before
// the relay started are advanced past without notifying, so a restart does
// not replay old alerts.
func (r *Relay) Run(ctx context.Context) error {
	startedAt := time.Now().UTC()
	lastID := "0"

	r.logger.InfoContext(ctx, "relay: starting",
		slog.String("stream", r.stream),
		slog.Duration("poll", r.poll),
	)

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "relay: stopping")
			return ctx.Err()
		case <-ticker.C:
		}

		msgs, err := r.bus.StreamRead(ctx, r.stream, lastID, r.batchSize)
		if err != nil {
			r.logger.WarnContext(ctx, "relay: stream read failed",
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, msg := range msgs {
			lastID = msg.ID
			r.handle(ctx, msg.Payload, startedAt)
		}
	}
}

// relayEvent is the envelope shape the relay needs; the body stays raw until
// the type is known.
type relayEvent struct {
	ID   string           `json:"id"`
	Type domain.EventType `json:"type"`
	At   time.Time        `json:"at"`
	Body json.RawMessage  `json:"body"`
}

func (r *Relay) handle(ctx context.Context, payload []byte, startedAt time.Time) {
	var ev relayEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		r.logger.WarnContext(ctx, "relay: undecodable event",
			slog.String("error", err.Error()),
		)
		return
	}
	if ev.At.Before(startedAt) {
		return
	}

	title, message, ok := summarize(ev)
	if !ok {
		return
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, alertKey); err != nil {
			r.logger.WarnContext(ctx, "relay: alert pacing interrupted",
				slog.String("error", err.Error()),
			)
			return
		}
	}

	if err := r.notifier.Notify(ctx, string(ev.Type), title, message); err != nil {
		r.logger.WarnContext(ctx, "relay: notify failed",
			slog.String("type", string(ev.Type)),
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
}

// summarize renders one event as an operator-readable notification. Events
// without a summary (shadow cleanup noise and the like) report ok=false.
func summarize(ev relayEvent) (title, message string, ok bool) {
	switch ev.Type {
	case domain.EventItemSold:
		var b domain.ItemSoldBody
		if err := json.Unmarshal(ev.Body, &b); err != nil {
			return "", "", false
		}
		return "Item sold",
			fmt.Sprintf("%s #%d x%d sold via %s for %d (fee %d, royalty %d, seller %d)\nseller %s\nbuyer  %s",
				b.Collection.Hex(), b.UnitID, b.Quantity, b.Path,
				b.Gross, b.PlatformFee, b.RoyaltyFee, b.SellerProceeds,
				b.Seller.Hex(), b.Buyer.Hex()),
			true

	case domain.EventListingPublished:
		var b domain.ListingPublishedBody
		if err := json.Unmarshal(ev.Body, &b); err != nil {
			return "", "", false
		}
		return "Listing published",
			fmt.Sprintf("%s #%d x%d at %d/unit by %s",
				b.Collection.Hex(), b.UnitID, b.Quantity, b.PricePerUnit, b.Lister.Hex()),
			true

	case domain.EventListingCancelled:
		var b domain.ListingCancelledBody
		if err := json.Unmarshal(ev.Body, &b); err != nil {
			return "", "", false
		}
		if b.Origin == domain.CancelShadow {
			return "", "", false
		}
		return "Listing cancelled",
			fmt.Sprintf("%s #%d by %s (origin %s)",
				b.Collection.Hex(), b.UnitID, b.Lister.Hex(), b.Origin),
			true

	case domain.EventOfferCreated:
		var b domain.OfferCreatedBody
		if err := json.Unmarshal(ev.Body, &b); err != nil {
			return "", "", false
		}
		return "Offer created",
			fmt.Sprintf("%s #%d x%d at %d/unit by %s, expires %s",
				b.Collection.Hex(), b.UnitID, b.Quantity, b.PricePerUnit,
				b.Offerer.Hex(), b.ExpiresAt.Format(time.RFC3339)),
			true

	case domain.EventOfferCancelled:
		var b domain.OfferCancelledBody
		if err := json.Unmarshal(ev.Body, &b); err != nil {
			return "", "", false
		}
		if b.Origin == domain.CancelShadow {
			return "", "", false
		}
		return "Offer cancelled",
			fmt.Sprintf("%s #%d by %s (origin %s)",
				b.Collection.Hex(), b.UnitID, b.Offerer.Hex(), b.Origin),
			true

	case domain.EventRoyaltyRegistered:
		var b domain.RoyaltyRegisteredBody
		if err := json.Unmarshal(ev.Body, &b); err != nil {
			return "", "", false
		}
		return "Royalty registered",
			fmt.Sprintf("%s #%d: %d%% to %s", b.Collection.Hex(), b.UnitID, b.Percent, b.Minter.Hex()),
			true

	case domain.EventFeeUpdated:
		var b domain.FeeUpdatedBody
		if err := json.Unmarshal(ev.Body, &b); err != nil {
			return "", "", false
		}
		return "Platform fee updated",
			fmt.Sprintf("%d bps -> %d bps", b.OldBps, b.NewBps),
			true

	case domain.EventFeeRecipientUpdated:
		var b domain.FeeRecipientUpdatedBody
		if err := json.Unmarshal(ev.Body, &b); err != nil {
			return "", "", false
		}
		return "Fee recipient updated",
			fmt.Sprintf("%s -> %s", b.Old.Hex(), b.New.Hex()),
			true

	case domain.EventVenueUpdated:
		var b domain.VenueUpdatedBody
		if err := json.Unmarshal(ev.Body, &b); err != nil {
			return "", "", false
		}
		return "Venue updated",
			fmt.Sprintf("%s venue: %s -> %s", b.Kind, b.Old.Hex(), b.New.Hex()),
			true

	case domain.EventCollectionConfigUpdated:
		var b domain.CollectionConfigUpdatedBody
		if err := json.Unmarshal(ev.Body, &b); err != nil {
			return "", "", false
		}
		return "Collection config updated",
			fmt.Sprintf("%s: %s -> %s", b.Kind, b.Old.Hex(), b.New.Hex()),
			true
	}

	return "", "", false
}
