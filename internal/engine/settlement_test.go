package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

func TestBuyItemSplitsFee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l := env.seedListing(t, sideColl, 1, 1, 100)

	sold, err := env.engine.BuyItem(ctx, bob, sideColl, 1, alice, 100)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	// 25 bps of 100 is 2 (truncated); no royalty outside the flagship.
	if sold.PlatformFee != 2 || sold.RoyaltyFee != 0 || sold.SellerProceeds != 98 {
		t.Fatalf("split = %d/%d/%d, want 2/0/98", sold.PlatformFee, sold.RoyaltyFee, sold.SellerProceeds)
	}
	if sold.PlatformFee+sold.RoyaltyFee+sold.SellerProceeds != sold.Gross {
		t.Fatalf("split does not conserve gross %d", sold.Gross)
	}
	if got := env.rail.paidTo(feeSink); got != 2 {
		t.Fatalf("fee recipient paid %d, want 2", got)
	}
	if got := env.rail.paidTo(alice); got != 98 {
		t.Fatalf("seller paid %d, want 98", got)
	}

	// Asset moved and the listing is gone.
	if env.registry.holdings[holdingKey(sideColl, 1, bob)] != 1 {
		t.Fatal("unit did not reach the buyer")
	}
	if env.listingExists(l.Key()) {
		t.Fatal("listing survived settlement")
	}
	if !containsType(env.bus.streamTypes(), string(domain.EventItemSold)) {
		t.Fatal("no item_sold event on the stream")
	}

	// Both sibling venues heard about the sale.
	if len(env.auction.cancels) != 1 || len(env.bundle.sales) != 1 {
		t.Fatalf("venue hooks = %d/%d, want 1/1", len(env.auction.cancels), len(env.bundle.sales))
	}
}

func TestBuyItemPaysFlagshipRoyalty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Attribute the unit to its minter at 10%.
	env.registry.setHolding(flagship, 7, carol, 1)
	if _, err := env.engine.RegisterRoyalty(ctx, carol, flagship, 7, minterAddr, 10); err != nil {
		t.Fatalf("register royalty: %v", err)
	}

	env.registry.setHolding(flagship, 7, alice, 1)
	env.registry.approve(flagship, alice)
	if _, err := env.engine.PublishListing(ctx, alice, ListingInput{
		Collection:   flagship,
		UnitID:       7,
		Quantity:     1,
		PricePerUnit: 100,
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	sold, err := env.engine.BuyItem(ctx, bob, flagship, 7, alice, 100)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	// Fee 2, then 10% of the 98 remainder truncates to 9, seller keeps 89.
	if sold.PlatformFee != 2 || sold.RoyaltyFee != 9 || sold.SellerProceeds != 89 {
		t.Fatalf("split = %d/%d/%d, want 2/9/89", sold.PlatformFee, sold.RoyaltyFee, sold.SellerProceeds)
	}
	if sold.RoyaltyMinter != minterAddr {
		t.Fatalf("royalty minter = %s", sold.RoyaltyMinter.Hex())
	}
	if got := env.rail.paidTo(minterAddr); got != 9 {
		t.Fatalf("minter paid %d, want 9", got)
	}
}

func TestBuyItemOverpaymentFlowsThroughSplit(t *testing.T) {
	env := newTestEnv(t)
	env.seedListing(t, sideColl, 1, 1, 100)

	sold, err := env.engine.BuyItem(context.Background(), bob, sideColl, 1, alice, 200)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if sold.Gross != 200 {
		t.Fatalf("gross = %d, want the full 200 committed", sold.Gross)
	}
	if sold.PlatformFee != 5 || sold.SellerProceeds != 195 {
		t.Fatalf("split = %d/%d", sold.PlatformFee, sold.SellerProceeds)
	}
}

func TestBuyItemRejectsUnderpayment(t *testing.T) {
	env := newTestEnv(t)
	env.seedListing(t, sideColl, 1, 2, 100)

	_, err := env.engine.BuyItem(context.Background(), bob, sideColl, 1, alice, 199)
	if !errors.Is(err, domain.ErrInsufficientPayment) {
		t.Fatalf("err = %v, want ErrInsufficientPayment", err)
	}
}

func TestBuyItemHonorsSaleWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.registry.setHolding(sideColl, 1, alice, 1)
	env.registry.approve(sideColl, alice)
	if _, err := env.engine.PublishListing(ctx, alice, ListingInput{
		Collection:       sideColl,
		UnitID:           1,
		Quantity:         1,
		PricePerUnit:     100,
		EarliestSaleTime: env.now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_, err := env.engine.BuyItem(ctx, bob, sideColl, 1, alice, 100)
	if !errors.Is(err, domain.ErrSaleNotStarted) {
		t.Fatalf("err = %v, want ErrSaleNotStarted", err)
	}

	env.advance(2 * time.Hour)
	if _, err := env.engine.BuyItem(ctx, bob, sideColl, 1, alice, 100); err != nil {
		t.Fatalf("buy after window opened: %v", err)
	}
}

func TestBuyItemHonorsExclusiveBuyer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.registry.setHolding(sideColl, 1, alice, 1)
	env.registry.approve(sideColl, alice)
	if _, err := env.engine.PublishListing(ctx, alice, ListingInput{
		Collection:     sideColl,
		UnitID:         1,
		Quantity:       1,
		PricePerUnit:   100,
		ExclusiveBuyer: carol,
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_, err := env.engine.BuyItem(ctx, bob, sideColl, 1, alice, 100)
	if !errors.Is(err, domain.ErrBuyerNotAllowed) {
		t.Fatalf("err = %v, want ErrBuyerNotAllowed", err)
	}
	if _, err := env.engine.BuyItem(ctx, carol, sideColl, 1, alice, 100); err != nil {
		t.Fatalf("exclusive buyer rejected: %v", err)
	}
}

func TestBuyItemStaleListingFailsButStays(t *testing.T) {
	env := newTestEnv(t)
	l := env.seedListing(t, sideColl, 1, 1, 100)

	// The unit changed hands outside the ledger after listing.
	env.registry.setHolding(sideColl, 1, alice, 0)

	_, err := env.engine.BuyItem(context.Background(), bob, sideColl, 1, alice, 100)
	if !errors.Is(err, domain.ErrNotOwningItem) {
		t.Fatalf("err = %v, want ErrNotOwningItem", err)
	}

	// Only an explicit cancel or invalidation removes the listing.
	if !env.listingExists(l.Key()) {
		t.Fatal("stale listing was removed by a failed buy")
	}
	if len(env.rail.payments) != 0 {
		t.Fatalf("payments made on failed buy: %v", env.rail.payments)
	}
}

func TestBuyItemAbortsOnRailRejection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.registry.setHolding(flagship, 7, carol, 1)
	if _, err := env.engine.RegisterRoyalty(ctx, carol, flagship, 7, minterAddr, 10); err != nil {
		t.Fatalf("register royalty: %v", err)
	}
	env.registry.setHolding(flagship, 7, alice, 1)
	env.registry.approve(flagship, alice)
	l, err := env.engine.PublishListing(ctx, alice, ListingInput{
		Collection:   flagship,
		UnitID:       7,
		Quantity:     1,
		PricePerUnit: 100,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	// The royalty leg is rejected. The fee leg before it already landed;
	// the fixed leg order bounds the damage to exactly that.
	env.rail.failTo = &minterAddr

	_, err = env.engine.BuyItem(ctx, bob, flagship, 7, alice, 100)
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("err = %v, want ErrTransferFailed", err)
	}

	if got := env.rail.paidTo(feeSink); got != 2 {
		t.Fatalf("fee recipient paid %d, want the 2 from the completed leg", got)
	}
	if got := env.rail.paidTo(alice); got != 0 {
		t.Fatalf("seller paid %d on aborted settlement", got)
	}
	if env.registry.holdings[holdingKey(flagship, 7, bob)] != 0 {
		t.Fatal("asset moved on aborted settlement")
	}
	if !env.listingExists(l.Key()) {
		t.Fatal("listing removed on aborted settlement")
	}
}

func TestBuyItemRequiresConfiguredLedger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedListing(t, sideColl, 1, 1, 100)
	if err := env.engine.UpdateFeeRecipient(ctx, admin, domain.AddressZero); err != nil {
		t.Fatalf("unset fee recipient: %v", err)
	}

	_, err := env.engine.BuyItem(ctx, bob, sideColl, 1, alice, 100)
	if !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestBuyItemRetiresBuyersShadowOffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedListing(t, sideColl, 1, 1, 100)
	o := env.seedOffer(t, sideColl, 1, 1, 90) // bob's standing offer on the same unit

	if _, err := env.engine.BuyItem(ctx, bob, sideColl, 1, alice, 100); err != nil {
		t.Fatalf("buy: %v", err)
	}

	if env.offerExists(o.Key()) {
		t.Fatal("buyer's own offer survived the purchase")
	}

	types := env.bus.streamTypes()
	if !containsType(types, string(domain.EventOfferCancelled)) {
		t.Fatal("no shadow offer_cancelled event emitted")
	}
}

func TestAcceptOffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	o := env.seedOffer(t, sideColl, 1, 2, 50)
	env.registry.setHolding(sideColl, 1, alice, 2)
	env.registry.approve(sideColl, alice)

	sold, err := env.engine.AcceptOffer(ctx, alice, sideColl, 1, bob)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	if sold.Path != domain.SaleFromOffer {
		t.Fatalf("path = %q", sold.Path)
	}
	if sold.Seller != alice || sold.Buyer != bob {
		t.Fatalf("parties = %s -> %s", sold.Seller.Hex(), sold.Buyer.Hex())
	}
	if sold.PaymentToken != paymentToken {
		t.Fatalf("token = %s, want the offer's payment token", sold.PaymentToken.Hex())
	}
	// Gross 100 at 25 bps: fee 2, proceeds 98, no royalty off-flagship.
	if sold.PlatformFee != 2 || sold.SellerProceeds != 98 {
		t.Fatalf("split = %d/%d", sold.PlatformFee, sold.SellerProceeds)
	}

	// Funds came from the offerer; units went to them.
	for _, p := range env.rail.payments {
		if p.from != bob {
			t.Fatalf("payment from %s, want offerer", p.from.Hex())
		}
		if p.token != paymentToken {
			t.Fatalf("payment in %s, want offer token", p.token.Hex())
		}
	}
	if env.registry.holdings[holdingKey(sideColl, 1, bob)] != 2 {
		t.Fatal("units did not reach the offerer")
	}
	if env.offerExists(o.Key()) {
		t.Fatal("offer survived settlement")
	}
}

func TestAcceptOfferTreatsExpiredAsAbsent(t *testing.T) {
	env := newTestEnv(t)
	env.seedOffer(t, sideColl, 1, 2, 50)
	env.registry.setHolding(sideColl, 1, alice, 2)
	env.registry.approve(sideColl, alice)

	env.advance(2 * time.Hour)

	_, err := env.engine.AcceptOffer(context.Background(), alice, sideColl, 1, bob)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAcceptOfferRetiresAcceptersShadowListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l := env.seedListing(t, sideColl, 1, 2, 60)
	env.seedOffer(t, sideColl, 1, 2, 50)

	if _, err := env.engine.AcceptOffer(ctx, alice, sideColl, 1, bob); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if env.listingExists(l.Key()) {
		t.Fatal("accepter's own listing survived the sale")
	}
	if !containsType(env.bus.streamTypes(), string(domain.EventListingCancelled)) {
		t.Fatal("no shadow listing_cancelled event emitted")
	}
}

func TestAcceptOfferRequiresHolding(t *testing.T) {
	env := newTestEnv(t)
	env.seedOffer(t, sideColl, 1, 2, 50)
	env.registry.setHolding(sideColl, 1, alice, 1)
	env.registry.approve(sideColl, alice)

	_, err := env.engine.AcceptOffer(context.Background(), alice, sideColl, 1, bob)
	if !errors.Is(err, domain.ErrInsufficientHolding) {
		t.Fatalf("err = %v, want ErrInsufficientHolding", err)
	}
}

func TestSettlementRejectsReentrantCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedListing(t, sideColl, 1, 1, 100)
	env.registry.setHolding(sideColl, 2, alice, 1)
	env.registry.approve(sideColl, alice)
	if _, err := env.engine.PublishListing(ctx, alice, ListingInput{
		Collection:   sideColl,
		UnitID:       2,
		Quantity:     1,
		PricePerUnit: 100,
	}); err != nil {
		t.Fatalf("publish second listing: %v", err)
	}

	// A rail callback re-entering the engine mid-settlement must be
	// rejected, not serialized.
	var reentryErr error
	env.rail.onTransfer = func(token, from, to common.Address, amount uint64) error {
		if reentryErr == nil {
			_, reentryErr = env.engine.BuyItem(ctx, bob, sideColl, 2, alice, 100)
		}
		return nil
	}

	if _, err := env.engine.BuyItem(ctx, bob, sideColl, 1, alice, 100); err != nil {
		t.Fatalf("outer buy: %v", err)
	}
	if !errors.Is(reentryErr, domain.ErrReentrantCall) {
		t.Fatalf("nested call err = %v, want ErrReentrantCall", reentryErr)
	}
}

func TestSettlementRollsBackRetireFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	l := env.seedListing(t, sideColl, 1, 1, 100)
	env.store.failTx = fmt.Errorf("connection reset")

	_, err := env.engine.BuyItem(ctx, bob, sideColl, 1, alice, 100)
	if err == nil {
		t.Fatal("buy succeeded despite retire failure")
	}
	// The rollback leaves the listing row; the operator resolves the
	// already-moved value out of band from the audit trail.
	if !env.listingExists(l.Key()) {
		t.Fatal("listing removed despite rolled-back transaction")
	}
}
