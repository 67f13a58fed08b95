package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

var (
	admin        = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	feeSink      = common.HexToAddress("0xaaaa000000000000000000000000000000000002")
	auctionAddr  = common.HexToAddress("0xaaaa000000000000000000000000000000000003")
	bundleAddr   = common.HexToAddress("0xaaaa000000000000000000000000000000000004")
	factoryAddr  = common.HexToAddress("0xaaaa000000000000000000000000000000000005")
	flagship     = common.HexToAddress("0xcccc000000000000000000000000000000000001")
	sideColl     = common.HexToAddress("0xcccc000000000000000000000000000000000002")
	alice        = common.HexToAddress("0xbbbb000000000000000000000000000000000001")
	bob          = common.HexToAddress("0xbbbb000000000000000000000000000000000002")
	carol        = common.HexToAddress("0xbbbb000000000000000000000000000000000003")
	minterAddr   = common.HexToAddress("0xbbbb000000000000000000000000000000000004")
	paymentToken = common.HexToAddress("0xdddd000000000000000000000000000000000001")
)

// testEnv bundles an engine with its fakes and a controllable clock.
type testEnv struct {
	engine   *Engine
	store    *memStore
	registry *fakeRegistry
	rail     *fakeRail
	auction  *fakeAuction
	bundle   *fakeBundle
	locks    *fakeLocks
	bus      *fakeBus

	mu    sync.Mutex
	clock time.Time
}

func (env *testEnv) now() time.Time {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.clock
}

func (env *testEnv) advance(d time.Duration) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.clock = env.clock.Add(d)
}

// newTestEnv builds an engine over in-memory fakes with a fully configured
// parameter set: 25 bps platform fee, both venues, both factories, and the
// flagship collection.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:    newMemStore(),
		registry: newFakeRegistry(),
		rail:     &fakeRail{},
		auction:  &fakeAuction{},
		bundle:   &fakeBundle{},
		locks:    newFakeLocks(),
		bus:      newFakeBus(),
		clock:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	env.engine = New(Deps{
		Store:    env.store,
		Registry: env.registry,
		Rail:     env.rail,
		Auction:  env.auction,
		Bundle:   env.bundle,
		Locks:    env.locks,
		Bus:      env.bus,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Admin:    admin,
		LockTTL:  15 * time.Second,
		Now:      env.now,
	})

	bootstrap := domain.LedgerParams{
		FeeBps:             25,
		FeeRecipient:       feeSink,
		AuctionVenue:       auctionAddr,
		BundleVenue:        bundleAddr,
		AssetFactory:       factoryAddr,
		FlagshipCollection: flagship,
	}
	if err := env.engine.LoadParams(context.Background(), bootstrap); err != nil {
		t.Fatalf("load params: %v", err)
	}

	// Both collections are fungible by default; tests override as needed.
	env.registry.variants[flagship] = domain.VariantFungible
	env.registry.variants[sideColl] = domain.VariantFungible

	return env
}

// seedListing records a live listing for alice after granting her the
// holding and approval the publish path checks.
func (env *testEnv) seedListing(t *testing.T, collection common.Address, unitID, quantity, price uint64) domain.Listing {
	t.Helper()
	env.registry.setHolding(collection, unitID, alice, quantity)
	env.registry.approve(collection, alice)
	l, err := env.engine.PublishListing(context.Background(), alice, ListingInput{
		Collection:   collection,
		UnitID:       unitID,
		Quantity:     quantity,
		PricePerUnit: price,
	})
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return l
}

// seedOffer records a live offer from bob expiring in one hour.
func (env *testEnv) seedOffer(t *testing.T, collection common.Address, unitID, quantity, price uint64) domain.Offer {
	t.Helper()
	o, err := env.engine.CreateOffer(context.Background(), bob, OfferInput{
		Collection:   collection,
		UnitID:       unitID,
		PaymentToken: paymentToken,
		Quantity:     quantity,
		PricePerUnit: price,
		ExpiresAt:    env.now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed offer: %v", err)
	}
	return o
}

func (env *testEnv) listingExists(key domain.ListingKey) bool {
	_, err := env.store.Listings().Get(context.Background(), key)
	return err == nil
}

func (env *testEnv) offerExists(key domain.OfferKey) bool {
	_, err := env.store.Offers().Get(context.Background(), key)
	return err == nil
}

// lastStreamType returns the type of the most recent stream event, or "".
func (env *testEnv) lastStreamType() string {
	types := env.bus.streamTypes()
	if len(types) == 0 {
		return ""
	}
	return types[len(types)-1]
}

func containsType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}
