package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

func TestTileURL(t *testing.T) {
	tests := []struct {
		c    coord.Coordinate
		want string
	}{
		{coord.New(1, 2, 3), "http://h/3/1/2.json"},
		{coord.New(-1, 0, 2), "http://h/2/3/0.json"},
		{coord.New(9, 0, 3), "http://h/3/1/0.json"},
	}
	for _, tt := range tests {
		if got := TileURL("http://h/{z}/{x}/{y}.json", tt.c); got != tt.want {
			t.Errorf("TileURL(%v) = %q, want %q", tt.c, got, tt.want)
		}
	}
}

func TestFetchCachesUpstream(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	mem := cache.NewMemoryCache(time.Hour, 0)
	defer mem.Close()
	uc := NewSourceUseCase(mem, config.Upstream{Timeout: time.Second, UserAgent: "test-agent"}, logger.NewNop())

	ctx := context.Background()
	c := coord.New(1, 1, 2)
	if _, err := uc.Fetch(ctx, "osm", srv.URL+"/{z}/{x}/{y}", c); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	key := cache.TileCacheKey{Source: "osm", X: 1, Y: 1, Z: 2}
	deadline := time.Now().Add(time.Second)
	for {
		if _, ok, _ := mem.Get(ctx, key); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("payload never stored in cache")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := uc.Fetch(ctx, "osm", srv.URL+"/{z}/{x}/{y}", c); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hit %d times, want 1", hits.Load())
	}
}

func TestFetchUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			<-r.Context().Done()
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	uc := NewSourceUseCase(nil, config.Upstream{Timeout: 5 * time.Second}, logger.NewNop())
	_, err := uc.Fetch(context.Background(), "osm", srv.URL+"/{z}", coord.New(0, 0, 0))
	if !errors.Is(err, ErrUpstreamStatus) {
		t.Fatalf("Fetch 404 = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err = uc.Fetch(ctx, "osm", srv.URL+"/slow", coord.New(0, 0, 0))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled Fetch = %v", err)
	}
}
