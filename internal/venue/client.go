// Package venue holds outbound hook clients for the sibling trading venues.
// Hooks are best-effort notifications: the engine logs failures and moves
// on, and the venues treat every hook as idempotent.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds one venue's hook endpoint.
type Config struct {
	// BaseURL is the venue's API root.
	BaseURL string
	// Token authenticates the ledger to the venue. Optional.
	Token string
	// Timeout applies to every request.
	Timeout time.Duration
}

// hookClient is the shared POST plumbing for venue hooks.
type hookClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newHookClient(cfg Config) hookClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return hookClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func addrPath(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// doPost sends a JSON POST and checks the response status.
func (h hookClient) doPost(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
}
