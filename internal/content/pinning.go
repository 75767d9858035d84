package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// PinningCredentials authenticate against the pinning service.
type PinningCredentials struct {
	APIKey    string
	APISecret string
}

// PinningStore writes JSON records through a pinning service
// (POST {api}/pinning/pinJSONToIPFS) and reads through a public gateway.
type PinningStore struct {
	gatewayReader
	api   string
	creds PinningCredentials
}

var _ Store = (*PinningStore)(nil)

// NewPinningStore creates a pinning-service-backed store.
func NewPinningStore(apiURL, gatewayURL string, creds PinningCredentials, opts ...Option) *PinningStore {
	return &PinningStore{
		gatewayReader: gatewayReader{
			gateway: gatewayURL,
			client:  newHTTPClient(opts),
			backend: "pinning",
		},
		api:   apiURL,
		creds: creds,
	}
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Put pins blob, which must be a JSON document.
func (s *PinningStore) Put(ctx context.Context, blob []byte) (string, error) {
	if !json.Valid(blob) {
		return "", fmt.Errorf("pinning store accepts JSON documents only")
	}

	url := strings.TrimRight(s.api, "/") + "/pinning/pinJSONToIPFS"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(blob))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("pinata_api_key", s.creds.APIKey)
	req.Header.Set("pinata_secret_api_key", s.creds.APISecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var pinned pinResponse
	if err := json.Unmarshal(respBody, &pinned); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if pinned.IpfsHash == "" {
		return "", fmt.Errorf("pinning service returned no hash")
	}
	return pinned.IpfsHash, nil
}
