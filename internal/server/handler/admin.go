package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

// AdminEngine is the slice of the settlement engine the admin handler needs:
// the parameter snapshot plus every admin-gated setter. The engine itself
// enforces that the caller is the configured administrator.
type AdminEngine interface {
	Params() domain.LedgerParams
	UpdatePlatformFee(ctx context.Context, caller common.Address, bps uint64) error
	UpdateFeeRecipient(ctx context.Context, caller common.Address, recipient common.Address) error
	UpdateAuctionVenue(ctx context.Context, caller common.Address, venue common.Address) error
	UpdateBundleVenue(ctx context.Context, caller common.Address, venue common.Address) error
	UpdateAssetFactory(ctx context.Context, caller common.Address, factory common.Address) error
	UpdatePrivateAssetFactory(ctx context.Context, caller common.Address, factory common.Address) error
	UpdateFlagshipCollection(ctx context.Context, caller common.Address, collection common.Address) error
	AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AdminHandler serves the parameter read plus the admin configuration
// setters.
type AdminHandler struct {
	engine AdminEngine
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(e AdminEngine, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		engine: e,
		logger: logHandler(logger, "admin"),
	}
}

// paramsView is the JSON shape of the parameter singleton.
type paramsView struct {
	FeeBps              uint64         `json:"fee_bps"`
	FeeRecipient        common.Address `json:"fee_recipient"`
	AuctionVenue        common.Address `json:"auction_venue"`
	BundleVenue         common.Address `json:"bundle_venue"`
	AssetFactory        common.Address `json:"asset_factory"`
	PrivateAssetFactory common.Address `json:"private_asset_factory"`
	FlagshipCollection  common.Address `json:"flagship_collection"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// GetParams returns the current ledger parameters.
// GET /api/params
func (h *AdminHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	p := h.engine.Params()
	writeJSON(w, http.StatusOK, paramsView{
		FeeBps:              p.FeeBps,
		FeeRecipient:        p.FeeRecipient,
		AuctionVenue:        p.AuctionVenue,
		BundleVenue:         p.BundleVenue,
		AssetFactory:        p.AssetFactory,
		PrivateAssetFactory: p.PrivateAssetFactory,
		FlagshipCollection:  p.FlagshipCollection,
		UpdatedAt:           p.UpdatedAt,
	})
}

// feeRequest carries the platform fee rate in basis points over 1000.
type feeRequest struct {
	Bps uint64 `json:"bps"`
}

// UpdateFee sets the platform fee rate.
// PUT /api/admin/fee
func (h *AdminHandler) UpdateFee(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}

	var req feeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.UpdatePlatformFee(r.Context(), admin, req.Bps); err != nil {
		writeEngineError(w, err)
		return
	}
	h.GetParams(w, r)
}

// addressRequest carries one address-valued setting.
type addressRequest struct {
	Address string `json:"address"`
}

// setAddress handles the shared decode-validate-apply shape of the address
// setters.
func (h *AdminHandler) setAddress(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, admin, addr common.Address) error) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}

	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The zero address is a legal value: it unsets a venue, factory, or
	// flagship collection.
	var addr common.Address
	if req.Address != "" {
		var err error
		addr, err = parseAddress("address", req.Address)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := apply(r.Context(), admin, addr); err != nil {
		writeEngineError(w, err)
		return
	}
	h.GetParams(w, r)
}

// UpdateFeeRecipient sets where the platform fee is paid.
// PUT /api/admin/fee-recipient
func (h *AdminHandler) UpdateFeeRecipient(w http.ResponseWriter, r *http.Request) {
	h.setAddress(w, r, h.engine.UpdateFeeRecipient)
}

// UpdateAuctionVenue sets the sibling auction venue address.
// PUT /api/admin/auction-venue
func (h *AdminHandler) UpdateAuctionVenue(w http.ResponseWriter, r *http.Request) {
	h.setAddress(w, r, h.engine.UpdateAuctionVenue)
}

// UpdateBundleVenue sets the sibling bundle venue address.
// PUT /api/admin/bundle-venue
func (h *AdminHandler) UpdateBundleVenue(w http.ResponseWriter, r *http.Request) {
	h.setAddress(w, r, h.engine.UpdateBundleVenue)
}

// UpdateAssetFactory sets the public collection factory.
// PUT /api/admin/asset-factory
func (h *AdminHandler) UpdateAssetFactory(w http.ResponseWriter, r *http.Request) {
	h.setAddress(w, r, h.engine.UpdateAssetFactory)
}

// UpdatePrivateAssetFactory sets the private collection factory.
// PUT /api/admin/private-asset-factory
func (h *AdminHandler) UpdatePrivateAssetFactory(w http.ResponseWriter, r *http.Request) {
	h.setAddress(w, r, h.engine.UpdatePrivateAssetFactory)
}

// UpdateFlagshipCollection sets the royalty-bearing collection.
// PUT /api/admin/flagship-collection
func (h *AdminHandler) UpdateFlagshipCollection(w http.ResponseWriter, r *http.Request) {
	h.setAddress(w, r, h.engine.UpdateFlagshipCollection)
}

// Audit pages through the persisted audit log. Authenticated callers only;
// the log carries every counterparty's activity.
// GET /api/admin/audit
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	if _, ok := caller(w, r); !ok {
		return
	}

	entries, err := h.engine.AuditLog(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit list failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
