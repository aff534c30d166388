package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/commerce/framework/core"
)

const okBody = `{
  "status": {"code": 0, "name": "ok", "message": "done"},
  "results": [{
    "name": "roadaddr",
    "region": {
      "area1": {"name": "서울특별시"},
      "area2": {"name": "중구"},
      "area3": {"name": "태평로1가"},
      "area4": {"name": ""}
    },
    "land": {"name": "세종대로", "number1": "110", "number2": ""}
  }]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL, KeyID: "id", Key: "secret", Timeout: time.Second}, nil)
	require.NoError(t, err)
	return c
}

func TestClient_ResolvesAddress(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, reverseGeocodePath, r.URL.Path)
		assert.Equal(t, "126.97,37.56", r.URL.Query().Get("coords"))
		assert.Equal(t, "id", r.Header.Get("X-NCP-APIGW-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("X-NCP-APIGW-API-KEY"))
		_, _ = w.Write([]byte(okBody))
	})

	addr, err := c.GetReverseGeocode(context.Background(), "37.56", "126.97")
	require.NoError(t, err)
	assert.Equal(t, "서울특별시 중구 태평로1가 세종대로 110", addr)
}

func TestClient_EmptyResultIsEnrichmentFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":{"code":3,"name":"no results"},"results":[]}`))
	})

	_, err := c.GetReverseGeocode(context.Background(), "0", "0")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindEnrichmentFailure))
}

func TestClient_HTTPErrorIsEnrichmentFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.GetReverseGeocode(context.Background(), "1", "2")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindEnrichmentFailure))
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = c.GetReverseGeocode(context.Background(), "1", "2")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindEnrichmentFailure))
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func (c *mapCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

type countingResolver struct {
	calls int
	err   error
}

func (r *countingResolver) GetReverseGeocode(ctx context.Context, lat, lng string) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return "addr " + lat + " " + lng, nil
}

func TestCachedClient_HitsCache(t *testing.T) {
	upstream := &countingResolver{}
	c := NewCachedClient(upstream, &mapCache{data: map[string]string{}}, time.Hour, nil, nil)

	for i := 0; i < 3; i++ {
		addr, err := c.GetReverseGeocode(context.Background(), "1", "2")
		require.NoError(t, err)
		assert.Equal(t, "addr 1 2", addr)
	}
	assert.Equal(t, 1, upstream.calls)
}

func TestCachedClient_DoesNotCacheFailures(t *testing.T) {
	upstream := &countingResolver{err: errors.New("down")}
	cache := &mapCache{data: map[string]string{}}
	c := NewCachedClient(upstream, cache, time.Hour, nil, nil)

	_, err := c.GetReverseGeocode(context.Background(), "1", "2")
	require.Error(t, err)
	assert.Empty(t, cache.data)
}

func TestCachedClient_RedisUnavailableFallsThrough(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	upstream := &countingResolver{}
	c := NewCachedClient(upstream, NewRedisCache(rdb, ""), time.Hour, nil, nil)

	addr, err := c.GetReverseGeocode(context.Background(), "3", "4")
	require.NoError(t, err)
	assert.Equal(t, "addr 3 4", addr)
	assert.Equal(t, 1, upstream.calls)
}
