package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventType names a ledger state transition.
type EventType string

const (
	EventListingPublished        EventType = "listing_published"
	EventListingUpdated          EventType = "listing_updated"
	EventListingCancelled        EventType = "listing_cancelled"
	EventOfferCreated            EventType = "offer_created"
	EventOfferCancelled          EventType = "offer_cancelled"
	EventItemSold                EventType = "item_sold"
	EventRoyaltyRegistered       EventType = "royalty_registered"
	EventFeeUpdated              EventType = "fee_updated"
	EventFeeRecipientUpdated     EventType = "fee_recipient_updated"
	EventVenueUpdated            EventType = "venue_updated"
	EventCollectionConfigUpdated EventType = "collection_config_updated"
)

// CancelOrigin records which path retired a listing or offer. Indexers need
// it to tell owner action apart from cross-venue invalidation and from
// shadow cleanup during a sale.
type CancelOrigin string

const (
	CancelByOwner      CancelOrigin = "owner"
	CancelByAuction    CancelOrigin = "auction_venue"
	CancelByBundleSale CancelOrigin = "bundle_sale"
	CancelShadow       CancelOrigin = "sale_shadow"
)

// SalePath records which instrument settled a sale.
type SalePath string

const (
	SaleFromListing SalePath = "listing"
	SaleFromOffer   SalePath = "offer"
)

// Event is the wire envelope every transition is published under. Bodies
// carry the full field set so an indexer can rebuild ledger state from the
// event stream alone.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	At   time.Time `json:"at"`
	Body any       `json:"body"`
}

// NewEvent stamps an envelope around a typed body.
func NewEvent(t EventType, at time.Time, body any) Event {
	return Event{ID: uuid.NewString(), Type: t, At: at, Body: body}
}

// ListingPublishedBody mirrors the full listing row.
type ListingPublishedBody struct {
	Collection       common.Address `json:"collection"`
	UnitID           uint64         `json:"unit_id"`
	Lister           common.Address `json:"lister"`
	Quantity         uint64         `json:"quantity"`
	PricePerUnit     uint64         `json:"price_per_unit"`
	EarliestSaleTime time.Time      `json:"earliest_sale_time"`
	ExclusiveBuyer   common.Address `json:"exclusive_buyer"`
}

// ListingUpdatedBody carries both prices so indexers need no prior state.
type ListingUpdatedBody struct {
	Collection   common.Address `json:"collection"`
	UnitID       uint64         `json:"unit_id"`
	Lister       common.Address `json:"lister"`
	OldPrice     uint64         `json:"old_price"`
	PricePerUnit uint64         `json:"price_per_unit"`
}

// ListingCancelledBody reports a retired listing. HeldQuantity is the
// owner's holding resolved at cancellation time.
type ListingCancelledBody struct {
	Collection   common.Address `json:"collection"`
	UnitID       uint64         `json:"unit_id"`
	Lister       common.Address `json:"lister"`
	Quantity     uint64         `json:"quantity"`
	HeldQuantity uint64         `json:"held_quantity"`
	Origin       CancelOrigin   `json:"origin"`
}

// OfferCreatedBody mirrors the full offer row.
type OfferCreatedBody struct {
	Collection   common.Address `json:"collection"`
	UnitID       uint64         `json:"unit_id"`
	Offerer      common.Address `json:"offerer"`
	PaymentToken common.Address `json:"payment_token"`
	Quantity     uint64         `json:"quantity"`
	PricePerUnit uint64         `json:"price_per_unit"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// OfferCancelledBody reports a retired offer.
type OfferCancelledBody struct {
	Collection common.Address `json:"collection"`
	UnitID     uint64         `json:"unit_id"`
	Offerer    common.Address `json:"offerer"`
	Origin     CancelOrigin   `json:"origin"`
}

// ItemSoldBody is the complete settlement record: identities, sizing, and
// the exact fee split that was paid out.
type ItemSoldBody struct {
	Collection     common.Address `json:"collection"`
	UnitID         uint64         `json:"unit_id"`
	Seller         common.Address `json:"seller"`
	Buyer          common.Address `json:"buyer"`
	Quantity       uint64         `json:"quantity"`
	PricePerUnit   uint64         `json:"price_per_unit"`
	PaymentToken   common.Address `json:"payment_token"`
	Gross          uint64         `json:"gross"`
	PlatformFee    uint64         `json:"platform_fee"`
	RoyaltyFee     uint64         `json:"royalty_fee"`
	SellerProceeds uint64         `json:"seller_proceeds"`
	RoyaltyMinter  common.Address `json:"royalty_minter"`
	Path           SalePath       `json:"path"`
}

// RoyaltyRegisteredBody reports a new write-once attribution.
type RoyaltyRegisteredBody struct {
	Collection   common.Address `json:"collection"`
	UnitID       uint64         `json:"unit_id"`
	Minter       common.Address `json:"minter"`
	Percent      uint64         `json:"percent"`
	RegisteredBy common.Address `json:"registered_by"`
}

// FeeUpdatedBody reports a platform fee rate change.
type FeeUpdatedBody struct {
	OldBps uint64 `json:"old_bps"`
	NewBps uint64 `json:"new_bps"`
}

// FeeRecipientUpdatedBody reports a fee destination change.
type FeeRecipientUpdatedBody struct {
	Old common.Address `json:"old"`
	New common.Address `json:"new"`
}

// VenueUpdatedBody reports a sibling-venue address change.
// Kind is "auction" or "bundle".
type VenueUpdatedBody struct {
	Kind string         `json:"kind"`
	Old  common.Address `json:"old"`
	New  common.Address `json:"new"`
}

// CollectionConfigUpdatedBody reports a factory or flagship change.
// Kind is "asset_factory", "private_asset_factory", or "flagship_collection".
type CollectionConfigUpdatedBody struct {
	Kind string         `json:"kind"`
	Old  common.Address `json:"old"`
	New  common.Address `json:"new"`
}
