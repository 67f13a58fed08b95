package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
	"github.com/avendale/tradepost/internal/server/middleware"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine sentinels onto HTTP statuses: authorization
// failures to 403, absence to 404, busy conditions and precondition
// violations to 409, rail rejections to 502, bad input to 400.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "caller not authorized for this operation")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrLockHeld), errors.Is(err, domain.ErrReentrantCall):
		writeError(w, http.StatusConflict, "asset busy, retry")
	case errors.Is(err, domain.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrAmountOverflow):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAlreadyListed),
		errors.Is(err, domain.ErrAlreadyOffered),
		errors.Is(err, domain.ErrRoyaltySet),
		errors.Is(err, domain.ErrNotOwningItem),
		errors.Is(err, domain.ErrNotApproved),
		errors.Is(err, domain.ErrInsufficientHolding),
		errors.Is(err, domain.ErrInsufficientPayment),
		errors.Is(err, domain.ErrSaleNotStarted),
		errors.Is(err, domain.ErrBuyerNotAllowed),
		errors.Is(err, domain.ErrUnsupportedAssetKind),
		errors.Is(err, domain.ErrCollectionNotEligible),
		errors.Is(err, domain.ErrNotConfigured):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON parses the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// caller resolves the authenticated principal's address; a missing principal
// writes a 401 and reports false.
func caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return common.Address{}, false
	}
	return p.Address, true
}

// parseAddress validates and normalizes a hex address field.
func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, &fieldError{field: field, value: value}
	}
	return common.HexToAddress(value), nil
}

// parseUnitID parses a decimal unit id, which may exceed int64 range.
func parseUnitID(value string) (uint64, error) {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, &fieldError{field: "unit_id", value: value}
	}
	return n, nil
}

// fieldError reports one invalid request field.
type fieldError struct {
	field string
	value string
}

func (e *fieldError) Error() string {
	return "invalid " + e.field + " " + strconv.Quote(e.value)
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
