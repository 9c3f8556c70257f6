package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nrivara/folio/pkg/cache"
	"github.com/nrivara/folio/pkg/data"
	"github.com/nrivara/folio/pkg/offline"
)

func setupWorker(t *testing.T) (*Worker, *cache.DiskStorage) {
	t.Helper()
	storage, err := cache.NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	wf := offline.NewWorkflow(storage, nil)
	return New(wf, storage), storage
}

func testOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, data.ManifestFileName) {
			w.Write([]byte(`{"id":"x"}`))
			return
		}
		w.Write([]byte("image"))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientCacheBook(t *testing.T) {
	origin := testOrigin(t)
	wrk, storage := setupWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wrk.Run(ctx)

	book := &data.Book{
		ID:          "catalog_11-12-25",
		ManifestURL: origin.URL + "/books/catalog_11-12-25/manifest.json",
		Pages: []data.Page{
			{PageNumber: 1, Image: "pages/page-1.jpg", Thumbnail: "thumbs/page-1.jpg"},
		},
	}

	type tick struct{ cached, total int }
	var progress []tick
	client := NewClient(wrk)
	err := client.CacheBook(ctx, book, func(cached, total int) {
		progress = append(progress, tick{cached, total})
	})
	require.NoError(t, err)

	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	require.Equal(t, 2, last.total)
	require.Equal(t, 2, last.cached)

	wf := offline.NewWorkflow(storage, nil)
	require.True(t, wf.IsBookCached(book.ID))
}

func TestClientCacheBookNilBook(t *testing.T) {
	wrk, _ := setupWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wrk.Run(ctx)

	err := NewClient(wrk).CacheBook(ctx, nil, nil)
	require.Error(t, err)
}

func TestClientCacheBookCancelledContext(t *testing.T) {
	wrk, _ := setupWorker(t)
	// No Run loop: the command queues but no CACHE_COMPLETE ever arrives.

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewClient(wrk).CacheBook(ctx, &data.Book{ID: "x"}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestActivateRemovesStaleStores(t *testing.T) {
	wrk, storage := setupWorker(t)

	for _, name := range []string{
		cache.RuntimeStore,
		cache.AssetStore,
		cache.BookStorePrefix + "kept",
		"runtime-cache-v0", // stale previous version
		"random-leftover",
	} {
		_, err := storage.Open(name)
		require.NoError(t, err)
	}

	require.NoError(t, wrk.Activate())

	names, err := storage.List()
	require.NoError(t, err)
	sort.Strings(names)

	want := []string{cache.BookStorePrefix + "kept", cache.RuntimeStore, cache.AssetStore}
	sort.Strings(want)
	require.Equal(t, want, names)
	require.False(t, storage.Has("runtime-cache-v0"))
	require.False(t, storage.Has("random-leftover"))
}

func TestSkipWaitingTriggersActivation(t *testing.T) {
	wrk, storage := setupWorker(t)
	_, err := storage.Open("stale-cache-v0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wrk.Run(ctx)

	require.NoError(t, NewClient(wrk).SkipWaiting(ctx))
	require.Eventually(t, func() bool {
		return !storage.Has("stale-cache-v0")
	}, 2*time.Second, 10*time.Millisecond)
}
