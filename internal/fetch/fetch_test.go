package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/goblinnotes/goblin/internal/failure"
)

func newAssetServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/game/assets/audio/piano/c#4.mp3":
			w.Write([]byte("c sharp"))
		case "/game/assets/audio/goblin/hello.mp3":
			time.Sleep(20 * time.Millisecond)
			w.Write([]byte("hello"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	var hits atomic.Int32
	srv := newAssetServer(t, &hits)

	f, err := NewHTTPFetcher(HTTPConfig{BaseURL: srv.URL + "/game"})
	if err != nil {
		t.Fatal(err)
	}

	data, err := f.Fetch(context.Background(), "assets/audio/piano/c%234.mp3")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "c sharp" {
		t.Errorf("got %q", data)
	}

	_, err = f.Fetch(context.Background(), "assets/missing.mp3")
	if !errors.Is(err, failure.ErrFetch) {
		t.Fatalf("missing asset err = %v, want fetch failure", err)
	}
	var fe *failure.Error
	if !errors.As(err, &fe) || fe.Context["status"] != http.StatusNotFound {
		t.Errorf("status not recorded: %v", err)
	}
}

func TestHTTPFetcher_Unreachable(t *testing.T) {
	f, err := NewHTTPFetcher(HTTPConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Fetch(context.Background(), "assets/a.mp3"); !errors.Is(err, failure.ErrFetch) {
		t.Errorf("err = %v, want fetch failure", err)
	}
}

func TestDirFetcher(t *testing.T) {
	fsys := fstest.MapFS{
		"assets/audio/piano/f#3.mp3": {Data: []byte("f sharp")},
	}
	f := NewDirFetcher(fsys)

	data, err := f.Fetch(context.Background(), "./assets/audio/piano/f%233.mp3")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "f sharp" {
		t.Errorf("got %q", data)
	}

	if _, err := f.Fetch(context.Background(), "assets/nope.png"); !errors.Is(err, failure.ErrFetch) {
		t.Errorf("err = %v, want fetch failure", err)
	}
}

func TestCachingFetcher_CoalescesAndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := newAssetServer(t, &hits)

	origin, err := NewHTTPFetcher(HTTPConfig{BaseURL: srv.URL + "/game/"})
	if err != nil {
		t.Fatal(err)
	}
	f := NewCachingFetcher(origin, 1<<20)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := f.Fetch(context.Background(), "assets/audio/goblin/hello.mp3")
			if err != nil || string(data) != "hello" {
				t.Errorf("Fetch = %q, %v", data, err)
			}
		}()
	}
	wg.Wait()

	if err := f.Prime(context.Background(), "./assets/audio/goblin/hello.mp3"); err != nil {
		t.Fatal(err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("origin hit %d times, want 1", n)
	}
	if f.Stats().ItemCount != 1 {
		t.Errorf("transport cache holds %d items", f.Stats().ItemCount)
	}
}

func TestCachingFetcher_FailuresNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := newAssetServer(t, &hits)
	origin, _ := NewHTTPFetcher(HTTPConfig{BaseURL: srv.URL + "/game/"})
	f := NewCachingFetcher(origin, 1<<20)

	for i := 0; i < 2; i++ {
		if err := f.Prime(context.Background(), "assets/missing.mp3"); !errors.Is(err, failure.ErrFetch) {
			t.Errorf("Prime err = %v", err)
		}
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("origin hit %d times, want 2", n)
	}
}

// gatedFetcher blocks every fetch until released or its context ends.
type gatedFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (g *gatedFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-g.release:
		return []byte("body of " + path), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCachingFetcher_CancelledCallerDoesNotAbortSharedFetch(t *testing.T) {
	origin := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	f := NewCachingFetcher(origin, 1<<20)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, "assets/audio/goblin/win.mp3")
		firstErr <- err
	}()
	<-origin.started

	type result struct {
		data []byte
		err  error
	}
	second := make(chan result, 1)
	go func() {
		data, err := f.Fetch(context.Background(), "assets/audio/goblin/win.mp3")
		second <- result{data, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller err = %v, want context.Canceled", err)
	}
	close(origin.release)

	res := <-second
	if res.err != nil || string(res.data) != "body of assets/audio/goblin/win.mp3" {
		t.Fatalf("Fetch = %q, %v", res.data, res.err)
	}
	if n := origin.calls.Load(); n != 1 {
		t.Errorf("origin called %d times, want 1", n)
	}
	if f.Stats().ItemCount != 1 {
		t.Errorf("transport cache holds %d items, want 1", f.Stats().ItemCount)
	}
}
