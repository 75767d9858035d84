package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// NodeStore writes through a content node's HTTP API
// (POST {api}/api/v0/add) and reads through its gateway.
type NodeStore struct {
	gatewayReader
	api string
}

var _ Store = (*NodeStore)(nil)

// NewNodeStore creates a node-backed store.
func NewNodeStore(apiURL, gatewayURL string, opts ...Option) *NodeStore {
	return &NodeStore{
		gatewayReader: gatewayReader{
			gateway: gatewayURL,
			client:  newHTTPClient(opts),
			backend: "node",
		},
		api: apiURL,
	}
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Put uploads blob and returns the hash reported by the node.
func (s *NodeStore) Put(ctx context.Context, blob []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "content.json")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(blob); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	url := strings.TrimRight(s.api, "/") + "/api/v0/add?pin=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

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

	var added addResponse
	if err := json.Unmarshal(respBody, &added); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if added.Hash == "" {
		return "", fmt.Errorf("node returned no hash")
	}
	return added.Hash, nil
}
