package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
	"github.com/avendale/tradepost/internal/engine"
)

// stubListingEngine returns canned results so the tests can drive each
// sentinel through the HTTP layer.
type stubListingEngine struct {
	publishErr error
	cancelErr  error
	buyErr     error
	getErr     error
	listing    domain.Listing
	sold       domain.ItemSoldBody
}

func (s *stubListingEngine) PublishListing(_ context.Context, _ common.Address, _ engine.ListingInput) (domain.Listing, error) {
	return s.listing, s.publishErr
}

func (s *stubListingEngine) UpdateListing(_ context.Context, _, _ common.Address, _, _ uint64) (domain.Listing, error) {
	return s.listing, nil
}

func (s *stubListingEngine) CancelListing(_ context.Context, _, _ common.Address, _ uint64) error {
	return s.cancelErr
}

func (s *stubListingEngine) BuyItem(_ context.Context, _, _ common.Address, _ uint64, _ common.Address, _ uint64) (domain.ItemSoldBody, error) {
	return s.sold, s.buyErr
}

func (s *stubListingEngine) GetListing(_ context.Context, _ domain.ListingKey) (domain.Listing, error) {
	return s.listing, s.getErr
}

func (s *stubListingEngine) ListListings(_ context.Context, _ domain.ListingFilter, _ domain.ListOpts) ([]domain.Listing, error) {
	return nil, nil
}

var (
	testCollection = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	testLister     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	testBuyer      = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func buyReq(t *testing.T, authenticated bool) *http.Request {
	t.Helper()
	body := strings.NewReader(`{"lister":"` + testLister.Hex() + `","payment":100}`)
	req := httptest.NewRequest(http.MethodPost, "/api/listings/x/7/buy", body)
	req.SetPathValue("collection", testCollection.Hex())
	req.SetPathValue("unit", "7")
	if authenticated {
		req = authed(req, testBuyer)
	}
	return req
}

func TestBuyMapsEngineSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"transfer rail rejected", domain.ErrTransferFailed, http.StatusBadGateway},
		{"unit lock contended", domain.ErrLockHeld, http.StatusConflict},
		{"reentrant settlement", domain.ErrReentrantCall, http.StatusConflict},
		{"listing gone", domain.ErrNotFound, http.StatusNotFound},
		{"payment short", domain.ErrInsufficientPayment, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewListingHandler(&stubListingEngine{buyErr: tt.err}, testLogger())
			rec := httptest.NewRecorder()
			h.Buy(rec, buyReq(t, true))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestBuyBusyAssetTellsClientToRetry(t *testing.T) {
	h := NewListingHandler(&stubListingEngine{buyErr: domain.ErrLockHeld}, testLogger())
	rec := httptest.NewRecorder()
	h.Buy(rec, buyReq(t, true))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if !strings.Contains(rec.Body.String(), "retry") {
		t.Fatalf("body %q does not tell the client to retry", rec.Body.String())
	}
}

func TestBuyRequiresAuthentication(t *testing.T) {
	h := NewListingHandler(&stubListingEngine{}, testLogger())
	rec := httptest.NewRecorder()
	h.Buy(rec, buyReq(t, false))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestPublishDuplicateListingConflicts(t *testing.T) {
	h := NewListingHandler(&stubListingEngine{publishErr: domain.ErrAlreadyListed}, testLogger())

	body := strings.NewReader(`{"collection":"` + testCollection.Hex() + `","unit_id":"7","quantity":1,"price_per_unit":100}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/listings", body), testLister)
	rec := httptest.NewRecorder()
	h.Publish(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestCancelForeignListingForbidden(t *testing.T) {
	h := NewListingHandler(&stubListingEngine{cancelErr: domain.ErrUnauthorized}, testLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/listings/x/7", nil)
	req.SetPathValue("collection", testCollection.Hex())
	req.SetPathValue("unit", "7")
	req = authed(req, testBuyer)
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestPublishRejectsMalformedFields(t *testing.T) {
	h := NewListingHandler(&stubListingEngine{}, testLogger())

	tests := []struct {
		name string
		body string
	}{
		{"bad collection", `{"collection":"not-hex","unit_id":"7","quantity":1,"price_per_unit":100}`},
		{"bad unit id", `{"collection":"` + testCollection.Hex() + `","unit_id":"-1","quantity":1,"price_per_unit":100}`},
		{"unknown field", `{"collection":"` + testCollection.Hex() + `","unit_id":"7","surprise":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authed(httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(tt.body)), testLister)
			rec := httptest.NewRecorder()
			h.Publish(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}
