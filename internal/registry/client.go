// Package registry adapts the external asset registry HTTP API to the
// domain.AssetRegistry port. The registry is the source of truth for
// ownership; nothing here caches holdings.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-retryablehttp"
	gocache "github.com/patrickmn/go-cache"

	"github.com/avendale/tradepost/internal/domain"
)

// Config holds construction parameters for the registry client.
type Config struct {
	// BaseURL is the registry API root, e.g. "http://localhost:8460".
	BaseURL string
	// APIKey authenticates the ledger to the registry. Optional.
	APIKey string
	// Timeout applies per attempt to every request.
	Timeout time.Duration
	// RetryMax bounds automatic retries on read endpoints. Transfers are
	// never retried regardless of this setting.
	RetryMax int
	// ProbeCacheTTL bounds how long a collection's variant probe is reused.
	// A collection's variant is immutable, so this is purely a memory cap.
	ProbeCacheTTL time.Duration
	// SettlementAccount is the ledger's operator address; approval checks
	// ask whether a party has authorized it.
	SettlementAccount common.Address
}

// Client implements domain.AssetRegistry over the registry's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	settlement common.Address

	// readClient retries idempotent GETs; writeClient never retries because
	// a transfer that timed out may still have been applied.
	readClient  *http.Client
	writeClient *http.Client

	probes *gocache.Cache
}

// New creates a registry client. Timeout and RetryMax fall back to sane
// values when unset.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = cfg.RetryMax
	if retryClient.RetryMax <= 0 {
		retryClient.RetryMax = 3
	}
	retryClient.HTTPClient.Timeout = timeout

	probeTTL := cfg.ProbeCacheTTL
	if probeTTL <= 0 {
		probeTTL = 10 * time.Minute
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		settlement:  cfg.SettlementAccount,
		readClient:  retryClient.StandardClient(),
		writeClient: &http.Client{Timeout: timeout},
		probes:      gocache.New(probeTTL, 2*probeTTL),
	}
}

func addrPath(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// variantResponse is the capability probe payload.
type variantResponse struct {
	Variant string `json:"variant"`
}

// holdingResponse carries a party's position in a unit. Quantity is a
// decimal string so the full uint64 range survives the wire.
type holdingResponse struct {
	Quantity string `json:"quantity"`
}

type approvalResponse struct {
	Approved bool `json:"approved"`
}

type provenanceResponse struct {
	Deployed bool `json:"deployed"`
}

// transferRequest is the registry's transfer instruction.
type transferRequest struct {
	Collection string `json:"collection"`
	UnitID     uint64 `json:"unit_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Quantity   string `json:"quantity"`
}

// resolveVariant probes which asset variant the collection implements,
// consulting the probe cache first. Unknown collections surface
// domain.ErrUnsupportedAssetKind.
func (c *Client) resolveVariant(ctx context.Context, collection common.Address) (domain.AssetVariant, error) {
	key := addrPath(collection)
	if v, ok := c.probes.Get(key); ok {
		return v.(domain.AssetVariant), nil
	}

	path := fmt.Sprintf("/v1/collections/%s/variant", key)
	body, err := c.doGet(ctx, path)
	if err != nil {
		return "", err
	}

	var resp variantResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("registry: decode variant: %w", err)
	}

	variant := domain.AssetVariant(resp.Variant)
	if variant != domain.VariantUnique && variant != domain.VariantFungible {
		return "", fmt.Errorf("%w: collection %s reports variant %q",
			domain.ErrUnsupportedAssetKind, key, resp.Variant)
	}

	c.probes.SetDefault(key, variant)
	return variant, nil
}

// ResolveHolding reports the party's position in the unit. A collection
// that answers the probe with 404 does not speak either supported asset
// interface and fails with domain.ErrUnsupportedAssetKind.
func (c *Client) ResolveHolding(ctx context.Context, collection common.Address, unitID uint64, party common.Address) (domain.Holding, error) {
	variant, err := c.resolveVariant(ctx, collection)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.Holding{}, fmt.Errorf("%w: collection %s", domain.ErrUnsupportedAssetKind, addrPath(collection))
		}
		return domain.Holding{}, fmt.Errorf("registry: probe %s: %w", addrPath(collection), err)
	}

	path := fmt.Sprintf("/v1/collections/%s/units/%d/holdings/%s",
		addrPath(collection), unitID, addrPath(party))
	body, err := c.doGet(ctx, path)
	if err != nil {
		// An unknown holder simply holds nothing.
		if isStatus(err, http.StatusNotFound) {
			return domain.Holding{Variant: variant, Quantity: 0}, nil
		}
		return domain.Holding{}, fmt.Errorf("registry: holding %s/%d: %w", addrPath(collection), unitID, err)
	}

	var resp holdingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Holding{}, fmt.Errorf("registry: decode holding: %w", err)
	}
	qty, err := strconv.ParseUint(resp.Quantity, 10, 64)
	if err != nil {
		return domain.Holding{}, fmt.Errorf("registry: holding quantity %q: %w", resp.Quantity, err)
	}

	return domain.Holding{Variant: variant, Quantity: qty}, nil
}

// IsApprovedForEngine reports whether the party has authorized the ledger's
// settlement account as an operator for the collection.
func (c *Client) IsApprovedForEngine(ctx context.Context, collection, party common.Address) (bool, error) {
	path := fmt.Sprintf("/v1/collections/%s/approvals/%s?operator=%s",
		addrPath(collection), addrPath(party), addrPath(c.settlement))
	body, err := c.doGet(ctx, path)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("registry: approval %s: %w", addrPath(party), err)
	}

	var resp approvalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("registry: decode approval: %w", err)
	}
	return resp.Approved, nil
}

// FromFactory reports whether the factory deployed the collection.
func (c *Client) FromFactory(ctx context.Context, factory, collection common.Address) (bool, error) {
	path := fmt.Sprintf("/v1/factories/%s/collections/%s",
		addrPath(factory), addrPath(collection))
	body, err := c.doGet(ctx, path)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("registry: provenance %s: %w", addrPath(collection), err)
	}

	var resp provenanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("registry: decode provenance: %w", err)
	}
	return resp.Deployed, nil
}

// Transfer instructs the registry to move units between parties. It goes
// through the non-retrying client: a timed-out transfer may have landed, so
// replaying it could double-move assets.
func (c *Client) Transfer(ctx context.Context, collection common.Address, unitID uint64, from, to common.Address, quantity uint64) error {
	req := transferRequest{
		Collection: addrPath(collection),
		UnitID:     unitID,
		From:       addrPath(from),
		To:         addrPath(to),
		Quantity:   strconv.FormatUint(quantity, 10),
	}
	if err := c.doPost(ctx, "/v1/transfers", req); err != nil {
		return fmt.Errorf("registry: transfer %s/%d x%d: %w", addrPath(collection), unitID, quantity, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends a GET through the retrying client and returns the body.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.readClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// doPost sends a JSON POST through the non-retrying client.
func (c *Client) doPost(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.writeClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return checkHTTPStatus(resp.StatusCode, body)
}

// statusError carries the HTTP status of a non-2xx registry response so
// callers can branch on it with isStatus.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

// checkHTTPStatus maps non-2xx status codes to errors. 401/403 surface as
// domain.ErrUnauthorized; everything else keeps its status for isStatus.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUnauthorized, statusCode, string(body))
	}
	return &statusError{code: statusCode, body: string(body)}
}

// isStatus reports whether err stems from a response with the given code.
func isStatus(err error, code int) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == code
	}
	return false
}

// Compile-time interface check.
var _ domain.AssetRegistry = (*Client)(nil)
