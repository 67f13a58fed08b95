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

// OfferEngine is the slice of the settlement engine the offer handler needs.
type OfferEngine interface {
	CreateOffer(ctx context.Context, offerer common.Address, in engine.OfferInput) (domain.Offer, error)
	CancelOffer(ctx context.Context, offerer common.Address, collection common.Address, unitID uint64) error
	AcceptOffer(ctx context.Context, accepter common.Address, collection common.Address, unitID uint64, offerer common.Address) (domain.ItemSoldBody, error)
	ListOffers(ctx context.Context, filter domain.OfferFilter, opts domain.ListOpts) ([]domain.Offer, error)
}

// OfferHandler serves the offer lifecycle endpoints.
type OfferHandler struct {
	engine OfferEngine
	logger *slog.Logger
}

// NewOfferHandler creates an OfferHandler.
func NewOfferHandler(e OfferEngine, logger *slog.Logger) *OfferHandler {
	return &OfferHandler{
		engine: e,
		logger: logHandler(logger, "offers"),
	}
}

// offerView is the JSON shape of one live offer.
type offerView struct {
	Collection   common.Address `json:"collection"`
	UnitID       uint64         `json:"unit_id"`
	Offerer      common.Address `json:"offerer"`
	PaymentToken common.Address `json:"payment_token"`
	Quantity     uint64         `json:"quantity"`
	PricePerUnit uint64         `json:"price_per_unit"`
	ExpiresAt    time.Time      `json:"expires_at"`
	CreatedAt    time.Time      `json:"created_at"`
}

func viewOffer(o domain.Offer) offerView {
	return offerView{
		Collection:   o.Collection,
		UnitID:       o.UnitID,
		Offerer:      o.Offerer,
		PaymentToken: o.PaymentToken,
		Quantity:     o.Quantity,
		PricePerUnit: o.PricePerUnit,
		ExpiresAt:    o.ExpiresAt,
		CreatedAt:    o.CreatedAt,
	}
}

// createOfferRequest is the body for creating an offer.
type createOfferRequest struct {
	Collection   string `json:"collection"`
	UnitID       string `json:"unit_id"`
	PaymentToken string `json:"payment_token"`
	Quantity     uint64 `json:"quantity"`
	PricePerUnit uint64 `json:"price_per_unit"`
	ExpiresAt    string `json:"expires_at"`
}

// Create records a standing purchase proposal for the authenticated caller.
// POST /api/offers
func (h *OfferHandler) Create(w http.ResponseWriter, r *http.Request) {
	offerer, ok := caller(w, r)
	if !ok {
		return
	}

	var req createOfferRequest
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
	token, err := parseAddress("payment_token", req.PaymentToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expires_at, want RFC3339")
		return
	}

	o, err := h.engine.CreateOffer(r.Context(), offerer, engine.OfferInput{
		Collection:   collection,
		UnitID:       unitID,
		PaymentToken: token,
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "create offer rejected",
			slog.String("offerer", offerer.Hex()),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, viewOffer(o))
}

// List returns live offers matching the query filter; dead offers are never
// visible here.
// GET /api/offers?collection=&unit=&offerer=
func (h *OfferHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter domain.OfferFilter

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
	if v := q.Get("offerer"); v != "" {
		addr, err := parseAddress("offerer", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Offerer = addr
	}

	offers, err := h.engine.ListOffers(r.Context(), filter, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list offers failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list offers")
		return
	}

	views := make([]offerView, 0, len(offers))
	for _, o := range offers {
		views = append(views, viewOffer(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": views})
}

// Cancel retires the caller's own offer.
// DELETE /api/offers/{collection}/{unit}
func (h *OfferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	offerer, ok := caller(w, r)
	if !ok {
		return
	}

	collection, unitID, ok := h.pathAsset(w, r)
	if !ok {
		return
	}

	if err := h.engine.CancelOffer(r.Context(), offerer, collection, unitID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// acceptRequest names the offerer whose offer the caller accepts.
type acceptRequest struct {
	Offerer string `json:"offerer"`
}

// Accept settles a standing offer against the authenticated caller's
// holding.
// POST /api/offers/{collection}/{unit}/accept
func (h *OfferHandler) Accept(w http.ResponseWriter, r *http.Request) {
	accepter, ok := caller(w, r)
	if !ok {
		return
	}

	collection, unitID, ok := h.pathAsset(w, r)
	if !ok {
		return
	}

	var req acceptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	offerer, err := parseAddress("offerer", req.Offerer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sold, err := h.engine.AcceptOffer(r.Context(), accepter, collection, unitID, offerer)
	if err != nil {
		h.logger.WarnContext(r.Context(), "accept offer rejected",
			slog.String("accepter", accepter.Hex()),
			slog.String("collection", collection.Hex()),
			slog.Uint64("unit_id", unitID),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sold)
}

func (h *OfferHandler) pathAsset(w http.ResponseWriter, r *http.Request) (common.Address, uint64, bool) {
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
