package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

// RoyaltyEngine is the slice of the settlement engine the royalty handler
// needs.
type RoyaltyEngine interface {
	RegisterRoyalty(ctx context.Context, caller common.Address, collection common.Address, unitID uint64, minter common.Address, percent uint64) (domain.RoyaltyAttribution, error)
	GetRoyalty(ctx context.Context, asset domain.AssetKey) (domain.RoyaltyAttribution, error)
}

// RoyaltyHandler serves royalty attribution endpoints.
type RoyaltyHandler struct {
	engine RoyaltyEngine
	logger *slog.Logger
}

// NewRoyaltyHandler creates a RoyaltyHandler.
func NewRoyaltyHandler(e RoyaltyEngine, logger *slog.Logger) *RoyaltyHandler {
	return &RoyaltyHandler{
		engine: e,
		logger: logHandler(logger, "royalties"),
	}
}

// royaltyView is the JSON shape of one attribution.
type royaltyView struct {
	Collection common.Address `json:"collection"`
	UnitID     uint64         `json:"unit_id"`
	Minter     common.Address `json:"minter"`
	Percent    uint64         `json:"percent"`
	CreatedAt  time.Time      `json:"created_at"`
}

// registerRoyaltyRequest is the body for registering an attribution.
type registerRoyaltyRequest struct {
	Collection string `json:"collection"`
	UnitID     string `json:"unit_id"`
	Minter     string `json:"minter"`
	Percent    uint64 `json:"percent"`
}

// Register binds a unit to its minter, write-once.
// POST /api/royalties
func (h *RoyaltyHandler) Register(w http.ResponseWriter, r *http.Request) {
	registrant, ok := caller(w, r)
	if !ok {
		return
	}

	var req registerRoyaltyRequest
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
	minter, err := parseAddress("minter", req.Minter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	att, err := h.engine.RegisterRoyalty(r.Context(), registrant, collection, unitID, minter, req.Percent)
	if err != nil {
		h.logger.WarnContext(r.Context(), "register royalty rejected",
			slog.String("caller", registrant.Hex()),
			slog.String("collection", collection.Hex()),
			slog.Uint64("unit_id", unitID),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, royaltyView{
		Collection: att.Collection,
		UnitID:     att.UnitID,
		Minter:     att.Minter,
		Percent:    att.Percent,
		CreatedAt:  att.CreatedAt,
	})
}

// Get returns a unit's attribution when one exists.
// GET /api/royalties/{collection}/{unit}
func (h *RoyaltyHandler) Get(w http.ResponseWriter, r *http.Request) {
	collection, err := parseAddress("collection", pathParam(r, "collection"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	unitID, err := parseUnitID(pathParam(r, "unit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	att, err := h.engine.GetRoyalty(r.Context(), domain.AssetKey{Collection: collection, UnitID: unitID})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, royaltyView{
		Collection: att.Collection,
		UnitID:     att.UnitID,
		Minter:     att.Minter,
		Percent:    att.Percent,
		CreatedAt:  att.CreatedAt,
	})
}
