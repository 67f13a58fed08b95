package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var testCollection = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func testConfig(t *testing.T, handler http.Handler) Config {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return Config{BaseURL: srv.URL, Token: "venue-token", Timeout: 2 * time.Second}
}

func TestCancelAuctionFor(t *testing.T) {
	var got cancelAuctionRequest
	cfg := testConfig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/hooks/cancel-auction" {
			t.Errorf("request = %s %s, want POST /v1/hooks/cancel-auction", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer venue-token" {
			t.Errorf("authorization = %q, want bearer venue token", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode hook: %v", err)
		}
	}))

	c := NewAuctionClient(cfg)
	if err := c.CancelAuctionFor(context.Background(), testCollection, 42); err != nil {
		t.Fatalf("CancelAuctionFor: %v", err)
	}
	if got.Collection != "0x00000000000000000000000000000000000000aa" || got.UnitID != 42 {
		t.Fatalf("hook = %+v, want collection/42", got)
	}
}

func TestNotifyItemSold(t *testing.T) {
	var got itemSoldRequest
	cfg := testConfig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/hooks/item-sold" {
			t.Errorf("path = %s, want /v1/hooks/item-sold", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode hook: %v", err)
		}
	}))

	c := NewBundleClient(cfg)
	if err := c.NotifyItemSold(context.Background(), testCollection, 7, 3); err != nil {
		t.Fatalf("NotifyItemSold: %v", err)
	}
	if got.UnitID != 7 || got.Quantity != 3 {
		t.Fatalf("hook = %+v, want unit 7 quantity 3", got)
	}
}

func TestHookReportsVenueError(t *testing.T) {
	cfg := testConfig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "lot is mid-hammer", http.StatusConflict)
	}))

	c := NewAuctionClient(cfg)
	if err := c.CancelAuctionFor(context.Background(), testCollection, 1); err == nil {
		t.Fatal("CancelAuctionFor succeeded, want error")
	}
}
