package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"market-sync/internal/domain"
)

// rpcServer answers every request with respond(req).
func rpcServer(t *testing.T, respond func(req rpcRequest) map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		resp := respond(req)
		resp["jsonrpc"] = "2.0"
		resp["id"] = req.ID
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetItem(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "market_getItem" {
			t.Errorf("expected method market_getItem, got %s", req.Method)
		}
		if len(req.Params) != 1 || req.Params[0] != "7" {
			t.Errorf("expected params [\"7\"], got %v", req.Params)
		}
		return map[string]interface{}{
			"result": map[string]interface{}{
				"itemId":       "7",
				"owner":        "0x00000000000000000000000000000000000000aa",
				"offerAddress": "0x00000000000000000000000000000000000000bb",
				"state":        "1",
				"initialValue": "10",
				"maxValue":     "50",
				"offerValue":   "12",
				"finishDate":   "1700000000",
				"ipfsHash":     "QmHash",
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	item, err := client.GetItem(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}

	if item.ID != 7 {
		t.Errorf("expected id 7, got %d", item.ID)
	}
	if item.State != domain.StateOffered {
		t.Errorf("expected state OFFERED, got %s", item.State)
	}
	if !item.CurrentOfferValue.Equal(decimal.NewFromInt(12)) {
		t.Errorf("expected offer 12, got %s", item.CurrentOfferValue)
	}
	if !item.MaxValue.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected max 50, got %s", item.MaxValue)
	}
	if item.FinishDate != 1700000000 {
		t.Errorf("expected finishDate 1700000000, got %d", item.FinishDate)
	}
	if item.ContentHash != "QmHash" {
		t.Errorf("expected hash QmHash, got %s", item.ContentHash)
	}
}

func TestHTTPClient_GetItem_NotFound(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		return map[string]interface{}{
			"error": map[string]interface{}{"code": codeItemNotFound, "message": "item does not exist"},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := client.GetItem(context.Background(), 99)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHTTPClient_GetItem_EmptyRecord(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		return map[string]interface{}{
			"result": map[string]interface{}{"itemId": 0, "state": 0, "finishDate": 0},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := client.GetItem(context.Background(), 3)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHTTPClient_ItemsCount(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		if req.Method != "market_itemsCount" {
			t.Errorf("expected method market_itemsCount, got %s", req.Method)
		}
		return map[string]interface{}{"result": "42"}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	n, err := client.ItemsCount(context.Background())
	if err != nil {
		t.Fatalf("ItemsCount: %v", err)
	}
	if n != 42 {
		t.Errorf("expected 42, got %d", n)
	}
}

func TestHTTPClient_ReadRetry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt := attempts.Add(1)
		if attempt < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0x00000000000000000000000000000000000000aa",
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithRetryDelay(10*time.Millisecond),
		WithMaxRetries(5),
	)

	owner, err := client.Owner(context.Background())
	if err != nil {
		t.Fatalf("Owner: %v", err)
	}
	if owner != "0x00000000000000000000000000000000000000aa" {
		t.Errorf("unexpected owner %s", owner)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_WriteNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithRetryDelay(10*time.Millisecond),
		WithMaxRetries(5),
	)

	_, err := client.ClaimFunds(context.Background(), TxOpts{From: "0xaa"}, 4)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts.Load())
	}
}

func TestHTTPClient_WriteParams(t *testing.T) {
	var got rpcRequest

	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		got = req
		return map[string]interface{}{"result": "0xtxhash"}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	tx := TxOpts{From: "0xaa", Value: decimal.NewFromInt(100)}
	hash, err := client.OfferItem(context.Background(), tx, 5, decimal.NewFromInt(60))
	if err != nil {
		t.Fatalf("OfferItem: %v", err)
	}
	if hash != "0xtxhash" {
		t.Errorf("expected hash 0xtxhash, got %s", hash)
	}

	if got.Method != "market_offerItem" {
		t.Errorf("expected method market_offerItem, got %s", got.Method)
	}
	if len(got.Params) != 3 {
		t.Fatalf("expected 3 params, got %d", len(got.Params))
	}
	first, ok := got.Params[0].(map[string]interface{})
	if !ok {
		t.Fatalf("expected tx object as first param, got %T", got.Params[0])
	}
	if first["from"] != "0xaa" || first["value"] != "100" {
		t.Errorf("unexpected tx params %v", first)
	}
	if got.Params[1] != "5" || got.Params[2] != "60" {
		t.Errorf("unexpected call params %v", got.Params[1:])
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) map[string]interface{} {
		return map[string]interface{}{
			"error": map[string]interface{}{"code": -32000, "message": "execution reverted"},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))
	_, err := client.PublicationCost(context.Background())

	var rpcErr *rpcError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected rpcError, got %v", err)
	}
	if rpcErr.Code != -32000 {
		t.Errorf("expected code -32000, got %d", rpcErr.Code)
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithRetryDelay(100*time.Millisecond),
		WithMaxRetries(10),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err := client.ItemsCount(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
