// Package upstream – HTTP implementation of the feed client.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// maxResponseBytes caps how much of a feed response is read into memory.
// Batches of a few thousand orders stay well under this.
const maxResponseBytes = 32 << 20

// HTTPClient talks to the upstream platform's REST API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPClient builds a feed client for the given base URL and API token.
func NewHTTPClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "upstream").Logger(),
	}
}

// FetchOrdersSince returns every order created or modified at or after the
// given instant. Each record's Raw field preserves the upstream JSON
// exactly as received.
func (c *HTTPClient) FetchOrdersSince(ctx context.Context, since time.Time) ([]Order, error) {
	u := fmt.Sprintf("%s/orders?updated_since=%s", c.baseURL, url.QueryEscape(since.UTC().Format(time.RFC3339)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: fetch orders: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("upstream: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream: fetch orders: status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	// Decode in two passes so Raw keeps each record byte-exact.
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("upstream: decode batch: %w", err)
	}

	orders := make([]Order, 0, len(raws))
	for i, raw := range raws {
		var o Order
		if err := json.Unmarshal(raw, &o); err != nil {
			// One malformed record must not sink the batch; the engine
			// reports the rest and the record resurfaces on the next poll.
			c.log.Warn().Int("index", i).Err(err).Msg("skipping malformed feed record")
			continue
		}
		o.Raw = raw
		orders = append(orders, o)
	}

	c.log.Debug().Int("fetched", len(orders)).Time("since", since).Msg("fetched feed batch")
	return orders, nil
}

// UpdateStatus pushes a status change back to the platform.
func (c *HTTPClient) UpdateStatus(ctx context.Context, orderNumber, status string) (bool, error) {
	u := fmt.Sprintf("%s/orders/%s/status", c.baseURL, url.PathEscape(orderNumber))

	payload, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return false, fmt.Errorf("upstream: encode status: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("upstream: update status: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		// Platform refused the transition; not a transport failure.
		return false, nil
	default:
		return false, fmt.Errorf("upstream: update status: status %d", resp.StatusCode)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
