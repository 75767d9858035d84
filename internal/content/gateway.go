package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"market-sync/internal/domain"
	"market-sync/internal/observability"
)

// DefaultTimeout bounds a single content request.
const DefaultTimeout = 30 * time.Second

// maxBlobSize caps a fetched content record.
const maxBlobSize = 4 << 20

// gatewayReader fetches blobs through a read-only HTTP gateway
// ({gateway}/ipfs/{hash}). Both HTTP backends share it.
type gatewayReader struct {
	gateway string
	client  *http.Client
	backend string
}

func (g *gatewayReader) Get(ctx context.Context, hash string) ([]byte, error) {
	blob, err := g.get(ctx, hash)
	observability.RecordContentFetch(g.backend, err)
	return blob, err
}

func (g *gatewayReader) get(ctx context.Context, hash string) ([]byte, error) {
	if err := ValidHash(hash); err != nil {
		return nil, err
	}

	url := strings.TrimRight(g.gateway, "/") + "/ipfs/" + hash
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("content %s: %w", hash, domain.ErrNotFound)
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// Option configures the HTTP-backed stores.
type Option func(*http.Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *http.Client) {
		c.Timeout = d
	}
}

// WithTransport sets the HTTP round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *http.Client) {
		c.Transport = rt
	}
}

func newHTTPClient(opts []Option) *http.Client {
	c := &http.Client{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
