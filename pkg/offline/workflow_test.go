package offline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nrivara/folio/pkg/cache"
	"github.com/nrivara/folio/pkg/data"
)

// fakeOrigin serves fixed bytes for every path, counting requests and
// failing the paths listed in fail with a 404.
type fakeOrigin struct {
	mu       sync.Mutex
	requests map[string]int
	fail     map[string]bool
	server   *httptest.Server
}

func newFakeOrigin(t *testing.T) *fakeOrigin {
	t.Helper()
	o := &fakeOrigin{
		requests: make(map[string]int),
		fail:     make(map[string]bool),
	}
	o.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		o.requests[r.URL.Path]++
		failed := o.fail[r.URL.Path]
		o.mu.Unlock()

		if failed {
			http.NotFound(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, data.ManifestFileName) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"x"}`))
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("image:" + r.URL.Path))
	}))
	t.Cleanup(o.server.Close)
	return o
}

func (o *fakeOrigin) count(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.requests[path]
}

func (o *fakeOrigin) total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.requests {
		n += c
	}
	return n
}

func onePageBook(origin string) *data.Book {
	return &data.Book{
		ID:          "catalog_11-12-25",
		Title:       "Winter Catalog",
		TotalPages:  1,
		ManifestURL: origin + "/books/catalog_11-12-25/manifest.json",
		Pages: []data.Page{
			{PageNumber: 1, Image: "pages/page-1.jpg", Thumbnail: "thumbs/page-1.jpg", Width: 1024, Height: 1536},
		},
	}
}

func setupWorkflow(t *testing.T) (*Workflow, *cache.DiskStorage) {
	t.Helper()
	storage, err := cache.NewDiskStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	return NewWorkflow(storage, nil), storage
}

func TestDownloadForOfflineSinglePage(t *testing.T) {
	origin := newFakeOrigin(t)
	wf, storage := setupWorkflow(t)
	book := onePageBook(origin.server.URL)

	var progress []int
	unsubscribe := wf.Subscribe(func(s Snapshot) {
		if len(progress) == 0 || progress[len(progress)-1] != s.Progress {
			progress = append(progress, s.Progress)
		}
	})
	defer unsubscribe()

	if err := wf.DownloadForOffline(context.Background(), book); err != nil {
		t.Fatalf("DownloadForOffline failed: %v", err)
	}

	// Exactly three fetches: manifest, page image, thumbnail.
	if got := origin.total(); got != 3 {
		t.Errorf("Expected 3 requests, got %d", got)
	}

	want := []int{0, 50, 100}
	if len(progress) != len(want) {
		t.Fatalf("Progress sequence = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("Progress sequence = %v, want %v", progress, want)
		}
	}

	snap := wf.Snapshot()
	if !snap.OfflineReady || snap.Caching || snap.Progress != 100 {
		t.Errorf("Final state = %+v", snap)
	}
	if snap.CachedItems != snap.TotalItems || snap.TotalItems != 2 {
		t.Errorf("Items = %d/%d, want 2/2", snap.CachedItems, snap.TotalItems)
	}

	store, err := storage.Open(cache.BookStoreName(book.ID))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	for _, url := range []string{book.ManifestURL, book.PageURL(book.Pages[0]), book.ThumbURL(book.Pages[0])} {
		if !store.Has(url) {
			t.Errorf("Expected %s to be cached", url)
		}
	}
}

func TestDownloadForOfflinePartialFailure(t *testing.T) {
	origin := newFakeOrigin(t)
	wf, storage := setupWorkflow(t)

	book := &data.Book{
		ID:          "flaky",
		ManifestURL: origin.server.URL + "/books/flaky/manifest.json",
		Pages: []data.Page{
			{PageNumber: 1, Image: "pages/page-1.jpg", Thumbnail: "thumbs/page-1.jpg"},
			{PageNumber: 2, Image: "pages/page-2.jpg", Thumbnail: "thumbs/page-2.jpg"},
		},
	}
	origin.fail["/books/flaky/thumbs/page-1.jpg"] = true

	if err := wf.DownloadForOffline(context.Background(), book); err != nil {
		t.Fatalf("Item failures must not fail the workflow: %v", err)
	}

	snap := wf.Snapshot()
	if !snap.OfflineReady || snap.Caching {
		t.Errorf("Final state = %+v, want offline-ready", snap)
	}
	if snap.CachedItems != 3 {
		t.Errorf("CachedItems = %d, want 3", snap.CachedItems)
	}

	store, _ := storage.Open(cache.BookStoreName(book.ID))
	if store.Has(book.ThumbURL(book.Pages[0])) {
		t.Error("Failed thumbnail must not be cached")
	}
	for _, url := range []string{
		book.PageURL(book.Pages[0]),
		book.PageURL(book.Pages[1]),
		book.ThumbURL(book.Pages[1]),
	} {
		if !store.Has(url) {
			t.Errorf("Expected %s to be cached", url)
		}
	}
}

func TestDownloadForOfflineDistinctCover(t *testing.T) {
	origin := newFakeOrigin(t)
	wf, storage := setupWorkflow(t)

	book := onePageBook(origin.server.URL)
	book.CoverImage = "cover.jpg"

	if err := wf.DownloadForOffline(context.Background(), book); err != nil {
		t.Fatalf("DownloadForOffline failed: %v", err)
	}

	// The cover is stored but excluded from the progress denominator.
	if got := origin.total(); got != 4 {
		t.Errorf("Expected 4 requests, got %d", got)
	}
	snap := wf.Snapshot()
	if snap.TotalItems != 2 || snap.Progress != 100 {
		t.Errorf("Snapshot = %+v", snap)
	}

	store, _ := storage.Open(cache.BookStoreName(book.ID))
	if !store.Has(book.CoverURL()) {
		t.Error("Expected cover to be cached")
	}
}

func TestDownloadForOfflineIdempotent(t *testing.T) {
	origin := newFakeOrigin(t)
	wf, storage := setupWorkflow(t)
	book := onePageBook(origin.server.URL)

	if err := wf.DownloadForOffline(context.Background(), book); err != nil {
		t.Fatalf("First download failed: %v", err)
	}
	store, _ := storage.Open(cache.BookStoreName(book.ID))
	before, _ := store.Keys()

	if err := wf.DownloadForOffline(context.Background(), book); err != nil {
		t.Fatalf("Second download failed: %v", err)
	}
	after, _ := store.Keys()

	if len(after) < len(before) {
		t.Errorf("Second run shrank the store: %d -> %d", len(before), len(after))
	}
	names, _ := storage.List()
	if len(names) != 1 {
		t.Errorf("Expected a single store, got %v", names)
	}
}

func TestDownloadForOfflineFatalOpenFailure(t *testing.T) {
	origin := newFakeOrigin(t)
	wf, _ := setupWorkflow(t)

	// A good download first, so offline-ready is set.
	if err := wf.DownloadForOffline(context.Background(), onePageBook(origin.server.URL)); err != nil {
		t.Fatalf("Setup download failed: %v", err)
	}

	// A slash in the id makes the store impossible to open.
	bad := onePageBook(origin.server.URL)
	bad.ID = "bad/id"
	if err := wf.DownloadForOffline(context.Background(), bad); err == nil {
		t.Fatal("Expected fatal error")
	}

	snap := wf.Snapshot()
	if snap.Caching {
		t.Error("Caching flag stuck after fatal failure")
	}
	if !snap.OfflineReady {
		t.Error("Fatal failure must leave offline-ready unchanged")
	}
}

func TestDownloadForOfflineUnavailable(t *testing.T) {
	wf := NewWorkflow(nil, nil)

	err := wf.DownloadForOffline(context.Background(), onePageBook("http://unused"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if wf.Available() {
		t.Error("Available = true without storage")
	}
	if wf.IsBookCached("x") {
		t.Error("IsBookCached = true without storage")
	}
}

func TestIsBookCachedAndList(t *testing.T) {
	origin := newFakeOrigin(t)
	wf, _ := setupWorkflow(t)
	book := onePageBook(origin.server.URL)

	if wf.IsBookCached(book.ID) {
		t.Error("IsBookCached = true before download")
	}

	if err := wf.DownloadForOffline(context.Background(), book); err != nil {
		t.Fatalf("DownloadForOffline failed: %v", err)
	}

	if !wf.IsBookCached(book.ID) {
		t.Error("IsBookCached = false after download")
	}

	ids, err := wf.ListOfflineBooks()
	if err != nil {
		t.Fatalf("ListOfflineBooks failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != book.ID {
		t.Errorf("ListOfflineBooks = %v", ids)
	}
}

func TestDeleteOfflineBook(t *testing.T) {
	origin := newFakeOrigin(t)
	wf, _ := setupWorkflow(t)
	book := onePageBook(origin.server.URL)

	if err := wf.DownloadForOffline(context.Background(), book); err != nil {
		t.Fatalf("DownloadForOffline failed: %v", err)
	}

	if err := wf.DeleteOfflineBook(book.ID); err != nil {
		t.Fatalf("DeleteOfflineBook failed: %v", err)
	}

	if wf.IsBookCached(book.ID) {
		t.Error("IsBookCached = true after delete")
	}
	ids, _ := wf.ListOfflineBooks()
	for _, id := range ids {
		if id == book.ID {
			t.Errorf("Deleted book still listed: %v", ids)
		}
	}
	if wf.Snapshot().OfflineReady {
		t.Error("OfflineReady still set after delete")
	}
}
