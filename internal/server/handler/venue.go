package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// VenueEngine is the slice of the settlement engine the venue callback
// handler needs. The engine checks the caller address against the configured
// venue addresses; the handler only carries the authenticated identity
// through.
type VenueEngine interface {
	ValidateCancelListing(ctx context.Context, caller common.Address, collection common.Address, unitID uint64, owner common.Address) error
	ValidateItemSold(ctx context.Context, caller common.Address, collection common.Address, unitID uint64, seller, buyer common.Address) error
}

// VenueHandler serves the inbound cross-venue invalidation callbacks.
type VenueHandler struct {
	engine VenueEngine
	logger *slog.Logger
}

// NewVenueHandler creates a VenueHandler.
func NewVenueHandler(e VenueEngine, logger *slog.Logger) *VenueHandler {
	return &VenueHandler{
		engine: e,
		logger: logHandler(logger, "venue"),
	}
}

// cancelListingRequest is the auction venue's callback body.
type cancelListingRequest struct {
	Collection string `json:"collection"`
	UnitID     string `json:"unit_id"`
	Owner      string `json:"owner"`
}

// CancelListing removes the named owner's listing because an auction started
// on the unit. Authorized to the configured auction venue only.
// POST /api/venue/cancel-listing
func (h *VenueHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	venue, ok := caller(w, r)
	if !ok {
		return
	}

	var req cancelListingRequest
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
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.ValidateCancelListing(r.Context(), venue, collection, unitID, owner); err != nil {
		h.logger.WarnContext(r.Context(), "venue cancel-listing rejected",
			slog.String("caller", venue.Hex()),
			slog.String("collection", collection.Hex()),
			slog.Uint64("unit_id", unitID),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// itemSoldRequest is the bundle venue's callback body.
type itemSoldRequest struct {
	Collection string `json:"collection"`
	UnitID     string `json:"unit_id"`
	Seller     string `json:"seller"`
	Buyer      string `json:"buyer"`
}

// ItemSold retires the seller's listing and the buyer's competing offer
// because the unit was sold on the bundle venue. Authorized to the
// configured bundle venue only.
// POST /api/venue/item-sold
func (h *VenueHandler) ItemSold(w http.ResponseWriter, r *http.Request) {
	venue, ok := caller(w, r)
	if !ok {
		return
	}

	var req itemSoldRequest
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
	seller, err := parseAddress("seller", req.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	buyer, err := parseAddress("buyer", req.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.ValidateItemSold(r.Context(), venue, collection, unitID, seller, buyer); err != nil {
		h.logger.WarnContext(r.Context(), "venue item-sold rejected",
			slog.String("caller", venue.Hex()),
			slog.String("collection", collection.Hex()),
			slog.Uint64("unit_id", unitID),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
