package content

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sync/internal/domain"
	"market-sync/internal/storage/memory"
)

func TestHashBlob_Deterministic(t *testing.T) {
	a := HashBlob([]byte(`{"title":"Lamp"}`))
	b := HashBlob([]byte(`{"title":"Lamp"}`))
	c := HashBlob([]byte(`{"title":"Desk"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "Qm"))
	assert.Len(t, a, 46)
	assert.NoError(t, ValidHash(a))
}

func TestValidHash(t *testing.T) {
	tests := []struct {
		name  string
		hash  string
		valid bool
	}{
		{"computed", HashBlob([]byte("x")), true},
		{"empty", "", false},
		{"wrong prefix", "Zm" + HashBlob([]byte("x"))[2:], false},
		{"short", "QmShort", false},
		{"bad alphabet", "Qm" + strings.Repeat("0", 44), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidHash(tt.hash)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	blob := []byte(`{"title":"Lamp","price":"12"}`)

	hash, err := s.Put(ctx, blob)
	require.NoError(t, err)

	again, err := s.Put(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, hash, again, "same blob must yield same hash")

	got, err := s.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	_, err = s.Get(ctx, HashBlob([]byte("other")))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPutJSONAndResolve(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	hash, err := JSONPutter{Store: s}.PutJSON(ctx, map[string]string{"title": "Lamp"})
	require.NoError(t, err)

	rec, err := Resolve(ctx, s, hash)
	require.NoError(t, err)
	assert.Equal(t, hash, rec.Hash)
	assert.Equal(t, "Lamp", rec.Field("title"))
}

func TestNodeStore(t *testing.T) {
	blob := []byte(`{"title":"Lamp"}`)
	hash := HashBlob(blob)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v0/add":
			file, _, err := r.FormFile("file")
			if err != nil {
				t.Errorf("form file: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			got, _ := io.ReadAll(file)
			assert.Equal(t, blob, got)
			json.NewEncoder(w).Encode(map[string]string{"Name": "content.json", "Hash": hash, "Size": "16"})
		case r.Method == http.MethodGet && r.URL.Path == "/ipfs/"+hash:
			w.Write(blob)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	s := NewNodeStore(server.URL, server.URL)
	ctx := context.Background()

	got, err := s.Put(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, hash, got)

	fetched, err := s.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, blob, fetched)

	_, err = s.Get(ctx, HashBlob([]byte("missing")))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Get(ctx, "not-a-hash")
	assert.Error(t, err)
}

func TestPinningStore(t *testing.T) {
	blob := []byte(`{"title":"Lamp"}`)
	hash := HashBlob(blob)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pinning/pinJSONToIPFS":
			if r.Header.Get("pinata_api_key") != "key" || r.Header.Get("pinata_secret_api_key") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			got, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, string(blob), string(got))
			json.NewEncoder(w).Encode(map[string]interface{}{"IpfsHash": hash, "PinSize": 16})
		case "/ipfs/" + hash:
			w.Write(blob)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	s := NewPinningStore(server.URL, server.URL, PinningCredentials{APIKey: "key", APISecret: "secret"})

	got, err := s.Put(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, hash, got)

	fetched, err := s.Get(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, blob, fetched)

	_, err = s.Put(ctx, []byte("not json"))
	assert.Error(t, err)

	unauthorized := NewPinningStore(server.URL, server.URL, PinningCredentials{})
	_, err = unauthorized.Put(ctx, blob)
	assert.Error(t, err)
}

type countingStore struct {
	Store
	gets atomic.Int32
	fail error
}

func (c *countingStore) Get(ctx context.Context, hash string) ([]byte, error) {
	c.gets.Add(1)
	if c.fail != nil {
		return nil, c.fail
	}
	return c.Store.Get(ctx, hash)
}

func TestCachingStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	hash, _ := mem.Put(ctx, []byte(`{"title":"Lamp"}`))

	upstream := &countingStore{Store: mem}
	cache := memory.NewContentCache()
	s := NewCachingStore(upstream, cache, nil)

	for i := 0; i < 3; i++ {
		rec, err := s.Resolve(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, "Lamp", rec.Field("title"))
	}
	assert.Equal(t, int32(1), upstream.gets.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestCachingStore_ConcurrentMissesShareFetch(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	hash, _ := mem.Put(ctx, []byte(`{"title":"Lamp"}`))

	upstream := &countingStore{Store: mem}
	s := NewCachingStore(upstream, memory.NewContentCache(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Get(ctx, hash)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, upstream.gets.Load(), int32(10))
	assert.GreaterOrEqual(t, upstream.gets.Load(), int32(1))
}

func TestCachingStore_PutPrimesCache(t *testing.T) {
	ctx := context.Background()
	upstream := &countingStore{Store: NewMemoryStore()}
	s := NewCachingStore(upstream, memory.NewContentCache(), nil)

	hash, err := s.Put(ctx, []byte(`{"title":"Lamp"}`))
	require.NoError(t, err)

	_, err = s.Get(ctx, hash)
	require.NoError(t, err)
	assert.Zero(t, upstream.gets.Load())
}

func TestCachingStore_UpstreamFailure(t *testing.T) {
	ctx := context.Background()
	upstream := &countingStore{Store: NewMemoryStore(), fail: errors.New("gateway down")}
	cache := memory.NewContentCache()
	s := NewCachingStore(upstream, cache, nil)

	_, err := s.Resolve(ctx, HashBlob([]byte("x")))
	require.Error(t, err)
	assert.Zero(t, cache.Len(), "failures are not cached")
}
