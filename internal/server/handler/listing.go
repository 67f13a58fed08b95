// Package handler exposes the ledger engine over HTTP. Handlers decode
// JSON, resolve the authenticated caller from the request context, invoke
// the engine, and map sentinel errors onto HTTP statuses.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
	"github.com/avendale/tradepost/internal/engine"
)

// ListingEngine is the slice of the settlement engine the listing handler
// needs. Declared locally so the handler package depends on behavior, not on
// the concrete engine.
type ListingEngine interface {
	PublishListing(ctx context.Context, lister common.Address, in engine.ListingInput) (domain.Listing, error)
	UpdateListing(ctx context.Context, lister common.Address, collection common.Address, unitID uint64, pricePerUnit uint64) (domain.Listing, error)
	CancelListing(ctx context.Context, caller common.Address, collection common.Address, unitID uint64) error
	BuyItem(ctx context.Context, buyer common.Address, collection common.Address, unitID uint64, lister common.Address, payment uint64) (domain.ItemSoldBody, error)
	GetListing(ctx context.Context, key domain.ListingKey) (domain.Listing, error)
	ListListings(ctx context.Context, filter domain.ListingFilter, opts domain.ListOpts) ([]domain.Listing, error)
}

// ListingHandler serves the listing lifecycle endpoints.
type ListingHandler struct {
	engine ListingEngine
	logger *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(e ListingEngine, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		engine: e,
		logger: logHandler(logger, "listings"),
	}
}

// listingView is the JSON shape of one listing.
type listingView struct {
	Collection       common.Address `json:"collection"`
	UnitID           uint64         `json:"unit_id"`
	Lister           common.Address `json:"lister"`
	Quantity         uint64         `json:"quantity"`
	PricePerUnit     uint64         `json:"price_per_unit"`
	EarliestSaleTime time.Time      `json:"earliest_sale_time"`
	ExclusiveBuyer   common.Address `json:"exclusive_buyer"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func viewListing(l domain.Listing) listingView {
	return listingView{
		Collection:       l.Collection,
		UnitID:           l.UnitID,
		Lister:           l.Lister,
		Quantity:         l.Quantity,
		PricePerUnit:     l.PricePerUnit,
		EarliestSaleTime: l.EarliestSaleTime,
		ExclusiveBuyer:   l.ExclusiveBuyer,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

// publishListingRequest is the body for publishing a listing. UnitID is a
// decimal string so full-range uint64 ids survive JSON.
type publishListingRequest struct {
	Collection       string `json:"collection"`
	UnitID           string `json:"unit_id"`
	Quantity         uint64 `json:"quantity"`
	PricePerUnit     uint64 `json:"price_per_unit"`
	EarliestSaleTime string `json:"earliest_sale_time,omitempty"`
	ExclusiveBuyer   string `json:"exclusive_buyer,omitempty"`
}

// Publish records a new listing for the authenticated caller.
// POST /api/listings
func (h *ListingHandler) Publish(w http.ResponseWriter, r *http.Request) {
	lister, ok := caller(w, r)
	if !ok {
		return
	}

	var req publishListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	collection, err := parseAddress("collection", req.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	unitID, err := parseUnitID(req.UnitID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := engine.ListingInput{
		Collection:   collection,
		UnitID:       unitID,
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
	}
	if req.EarliestSaleTime != "" {
		t, err := time.Parse(time.RFC3339, req.EarliestSaleTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid earliest_sale_time, want RFC3339")
			return
		}
		in.EarliestSaleTime = t
	}
	if req.ExclusiveBuyer != "" {
		buyer, err := parseAddress("exclusive_buyer", req.ExclusiveBuyer)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.ExclusiveBuyer = buyer
	}

	l, err := h.engine.PublishListing(r.Context(), lister, in)
	if err != nil {
		h.logger.WarnContext(r.Context(), "publish listing rejected",
			slog.String("lister", lister.Hex()),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, viewListing(l))
}

// List returns live listings matching the query filter.
// GET /api/listings?collection=&unit=&lister=
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter domain.ListingFilter

	if v := q.Get("collection"); v != "" {
		addr, err := parseAddress("collection", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Collection = addr
	}
	if v := q.Get("unit"); v != "" {
		id, err := parseUnitID(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.UnitID = &id
	}
	if v := q.Get("lister"); v != "" {
		addr, err := parseAddress("lister", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Lister = addr
	}

	listings, err := h.engine.ListListings(r.Context(), filter, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list listings failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}

	views := make([]listingView, 0, len(listings))
	for _, l := range listings {
		views = append(views, viewListing(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": views})
}

// Get returns one lister's live listing for a unit. The lister is named in
// the query string because listings are keyed per lister.
// GET /api/listings/{collection}/{unit}?lister=0x...
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	collection, unitID, ok := h.pathAsset(w, r)
	if !ok {
		return
	}
	lister, err := parseAddress("lister", r.URL.Query().Get("lister"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l, err := h.engine.GetListing(r.Context(), domain.ListingKey{
		Collection: collection,
		UnitID:     unitID,
		Lister:     lister,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewListing(l))
}

// updateListingRequest carries the one mutable listing field.
type updateListingRequest struct {
	PricePerUnit uint64 `json:"price_per_unit"`
}

// Update changes the price of the caller's listing.
// PUT /api/listings/{collection}/{unit}
func (h *ListingHandler) Update(w http.ResponseWriter, r *http.Request) {
	lister, ok := caller(w, r)
	if !ok {
		return
	}

	collection, unitID, ok := h.pathAsset(w, r)
	if !ok {
		return
	}

	var req updateListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	l, err := h.engine.UpdateListing(r.Context(), lister, collection, unitID, req.PricePerUnit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewListing(l))
}

// Cancel retires the caller's own listing.
// DELETE /api/listings/{collection}/{unit}
func (h *ListingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	lister, ok := caller(w, r)
	if !ok {
		return
	}

	collection, unitID, ok := h.pathAsset(w, r)
	if !ok {
		return
	}

	if err := h.engine.CancelListing(r.Context(), lister, collection, unitID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// buyRequest is the body for settling a listed sale.
type buyRequest struct {
	Lister  string `json:"lister"`
	Payment uint64 `json:"payment"`
}

// Buy settles a listed sale for the authenticated caller.
// POST /api/listings/{collection}/{unit}/buy
func (h *ListingHandler) Buy(w http.ResponseWriter, r *http.Request) {
	buyer, ok := caller(w, r)
	if !ok {
		return
	}

	collection, unitID, ok := h.pathAsset(w, r)
	if !ok {
		return
	}

	var req buyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lister, err := parseAddress("lister", req.Lister)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sold, err := h.engine.BuyItem(r.Context(), buyer, collection, unitID, lister, req.Payment)
	if err != nil {
		h.logger.WarnContext(r.Context(), "buy rejected",
			slog.String("buyer", buyer.Hex()),
			slog.String("collection", collection.Hex()),
			slog.Uint64("unit_id", unitID),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sold)
}

// pathAsset parses the {collection}/{unit} path segments.
func (h *ListingHandler) pathAsset(w http.ResponseWriter, r *http.Request) (common.Address, uint64, bool) {
	collection, err := parseAddress("collection", pathParam(r, "collection"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, 0, false
	}
	unitID, err := parseUnitID(pathParam(r, "unit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, 0, false
	}
	return collection, unitID, true
}
