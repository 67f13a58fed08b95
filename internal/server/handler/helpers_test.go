package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
	"github.com/avendale/tradepost/internal/server/middleware"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// authed attaches a principal to the request the way the auth middleware
// would.
func authed(r *http.Request, addr common.Address) *http.Request {
	return r.WithContext(middleware.WithPrincipal(r.Context(), middleware.Principal{
		Name:    "test",
		Address: addr,
	}))
}

func TestWriteEngineErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrLockHeld, http.StatusConflict},
		{domain.ErrReentrantCall, http.StatusConflict},
		{domain.ErrAlreadyListed, http.StatusConflict},
		{domain.ErrAlreadyOffered, http.StatusConflict},
		{domain.ErrRoyaltySet, http.StatusConflict},
		{domain.ErrNotOwningItem, http.StatusConflict},
		{domain.ErrNotApproved, http.StatusConflict},
		{domain.ErrInsufficientHolding, http.StatusConflict},
		{domain.ErrInsufficientPayment, http.StatusConflict},
		{domain.ErrSaleNotStarted, http.StatusConflict},
		{domain.ErrBuyerNotAllowed, http.StatusConflict},
		{domain.ErrUnsupportedAssetKind, http.StatusConflict},
		{domain.ErrCollectionNotEligible, http.StatusConflict},
		{domain.ErrNotConfigured, http.StatusConflict},
		{domain.ErrTransferFailed, http.StatusBadGateway},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrAmountOverflow, http.StatusBadRequest},
		{errors.New("pool exhausted"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeEngineError(rec, tt.err)
			if rec.Code != tt.want {
				t.Fatalf("status for %v = %d, want %d", tt.err, rec.Code, tt.want)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
				t.Fatalf("content type = %q", ct)
			}
		})
	}
}

func TestWriteEngineErrorUnwrapsChains(t *testing.T) {
	wrapped := fmt.Errorf("settle unit 7: %w", domain.ErrTransferFailed)

	rec := httptest.NewRecorder()
	writeEngineError(rec, wrapped)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

func TestCallerRequiresPrincipal(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/listings", nil)
	rec := httptest.NewRecorder()

	if _, ok := caller(rec, req); ok {
		t.Fatal("caller succeeded without a principal")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestCallerResolvesPrincipalAddress(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	req := authed(httptest.NewRequest(http.MethodPost, "/api/listings", nil), addr)
	rec := httptest.NewRecorder()

	got, ok := caller(rec, req)
	if !ok {
		t.Fatal("caller rejected an authenticated request")
	}
	if got != addr {
		t.Fatalf("caller address = %s, want %s", got.Hex(), addr.Hex())
	}
}
