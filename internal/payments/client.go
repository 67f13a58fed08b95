// Package payments adapts the payment rail HTTP API to the
// domain.PaymentRail port.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/avendale/tradepost/internal/domain"
)

// Config holds construction parameters for the rail client.
type Config struct {
	// BaseURL is the rail API root, e.g. "http://localhost:8470".
	BaseURL string
	// APIKey authenticates the ledger to the rail. Optional.
	APIKey string
	// Timeout applies to every request.
	Timeout time.Duration
	// SettlementAccount is the spender named in allowance checks.
	SettlementAccount common.Address
}

// Client implements domain.PaymentRail over the rail's REST API. Every call
// moves or authorizes value, so nothing here retries: a timed-out transfer
// may still have been applied.
type Client struct {
	baseURL    string
	apiKey     string
	settlement common.Address
	httpClient *http.Client
}

// New creates a rail client. Timeout falls back to a sane value when unset.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		settlement: cfg.SettlementAccount,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func addrPath(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// transferRequest instructs the rail to move funds. Amount is a decimal
// string so the full uint64 range survives the wire. A zero token address
// selects the rail's native unit.
type transferRequest struct {
	Token  string `json:"token"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type allowanceRequest struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

// Transfer moves funds between parties.
func (c *Client) Transfer(ctx context.Context, token, from, to common.Address, amount uint64) error {
	req := transferRequest{
		Token:  addrPath(token),
		From:   addrPath(from),
		To:     addrPath(to),
		Amount: strconv.FormatUint(amount, 10),
	}
	if err := c.doPost(ctx, "/v1/transfers", req); err != nil {
		return fmt.Errorf("payments: transfer %s -> %s: %w", addrPath(from), addrPath(to), err)
	}
	return nil
}

// EnsureAllowance confirms the owner has authorized the ledger's settlement
// account to spend the token, asking the rail to record the grant inline.
func (c *Client) EnsureAllowance(ctx context.Context, token, owner common.Address) error {
	req := allowanceRequest{
		Token:   addrPath(token),
		Owner:   addrPath(owner),
		Spender: addrPath(c.settlement),
	}
	if err := c.doPost(ctx, "/v1/allowances", req); err != nil {
		return fmt.Errorf("payments: ensure allowance %s: %w", addrPath(owner), err)
	}
	return nil
}

// doPost sends a JSON POST and checks the response status.
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUnauthorized, resp.StatusCode, string(body))
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
}

// Compile-time interface check.
var _ domain.PaymentRail = (*Client)(nil)
