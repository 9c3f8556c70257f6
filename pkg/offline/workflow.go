// Package offline makes whole books durably viewable without a network,
// one named cache store per book.
package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/nrivara/folio/pkg/cache"
	"github.com/nrivara/folio/pkg/data"
)

// ErrUnavailable is returned when persistent cache storage is not present.
// Callers should check Available before offering the download affordance.
var ErrUnavailable = errors.New("offline storage unavailable")

// Workflow downloads a book's full asset set into its cache store with
// observable progress. Per-item failures are logged and skipped; partial
// caches are acceptable and expected under flaky connectivity.
type Workflow struct {
	storage cache.Storage
	client  *http.Client
	logger  *slog.Logger
	state   *progressState
}

// NewWorkflow creates a workflow over the given storage. A nil storage means
// the capability is absent: every operation degrades to a no-op rather than
// panicking.
func NewWorkflow(storage cache.Storage, client *http.Client) *Workflow {
	if client == nil {
		client = http.DefaultClient
	}
	return &Workflow{
		storage: storage,
		client:  client,
		logger:  slog.Default(),
		state:   newProgressState(),
	}
}

// Available reports whether persistent cache storage is present.
func (w *Workflow) Available() bool {
	return w.storage != nil
}

// Subscribe registers an observer invoked synchronously with a snapshot on
// every state transition. The returned func removes exactly that
// registration; calling it twice is harmless.
func (w *Workflow) Subscribe(fn func(Snapshot)) func() {
	return w.state.subscribe(fn)
}

// Snapshot returns the current progress state.
func (w *Workflow) Snapshot() Snapshot {
	return w.state.snapshot()
}

// DownloadForOffline stores the manifest, every page image and thumbnail,
// and a distinct cover (if any) into the book's own store. Item failures do
// not abort the loop; only a failure to open the store itself is fatal. The
// caching flag is cleared on every exit path.
func (w *Workflow) DownloadForOffline(ctx context.Context, book *data.Book) error {
	if w.storage == nil {
		return ErrUnavailable
	}
	if book == nil || book.ID == "" {
		return fmt.Errorf("book must have an id")
	}

	store, err := w.storage.Open(cache.BookStoreName(book.ID))
	if err != nil {
		// Fatal: clear the caching flag, leave offline-ready untouched.
		w.state.update(func(s *Snapshot) { s.Caching = false })
		return fmt.Errorf("failed to open store for %s: %w", book.ID, err)
	}

	total := book.CacheItemCount()
	w.state.update(func(s *Snapshot) {
		s.OfflineReady = false
		s.Caching = true
		s.Progress = 0
		s.CachedItems = 0
		s.TotalItems = total
	})

	completed := 0

	// The manifest itself goes in first. It is not counted toward the
	// percentage, so a failure here only costs the offline fallback copy.
	if err := w.cacheURL(ctx, store, book.ManifestURL); err != nil {
		w.logger.Warn("failed to cache manifest", "book", book.ID, "error", err)
	}

	for _, page := range book.Pages {
		for _, url := range []string{book.PageURL(page), book.ThumbURL(page)} {
			if err := w.cacheURL(ctx, store, url); err != nil {
				w.logger.Warn("failed to cache item",
					"book", book.ID, "page", page.PageNumber, "url", url, "error", err)
				continue
			}
			completed++
			pct := 100
			if total > 0 {
				pct = int(math.Round(float64(completed) / float64(total) * 100))
			}
			w.state.update(func(s *Snapshot) {
				s.Progress = pct
				s.CachedItems = completed
			})
		}
	}

	if book.HasDistinctCover() {
		if err := w.cacheURL(ctx, store, book.CoverURL()); err != nil {
			w.logger.Warn("failed to cache cover", "book", book.ID, "error", err)
		}
	}

	w.state.update(func(s *Snapshot) {
		s.OfflineReady = true
		s.Caching = false
		s.Progress = 100
	})
	return nil
}

// cacheURL fetches url and stores the response under it.
func (w *Workflow) cacheURL(ctx context.Context, store cache.Store, url string) error {
	if url == "" {
		return fmt.Errorf("empty url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("bad status: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	return store.Put(url, &cache.Entry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   time.Now(),
	})
}

// IsBookCached is a lightweight existence probe: the book's store exists and
// holds its manifest. It does not verify every page.
func (w *Workflow) IsBookCached(bookID string) bool {
	if w.storage == nil {
		return false
	}
	name := cache.BookStoreName(bookID)
	if !w.storage.Has(name) {
		return false
	}
	store, err := w.storage.Open(name)
	if err != nil {
		return false
	}
	keys, err := store.Keys()
	if err != nil {
		return false
	}
	for _, k := range keys {
		if strings.Contains(k, data.ManifestFileName) {
			return true
		}
	}
	return false
}

// ListOfflineBooks enumerates downloaded book ids by store-name prefix.
func (w *Workflow) ListOfflineBooks() ([]string, error) {
	if w.storage == nil {
		return nil, nil
	}
	names, err := w.storage.List()
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, name := range names {
		if strings.HasPrefix(name, cache.BookStorePrefix) {
			ids = append(ids, strings.TrimPrefix(name, cache.BookStorePrefix))
		}
	}
	return ids, nil
}

// DeleteOfflineBook removes the book's entire store and resets the
// offline-ready flag. Store deletion is all-or-nothing.
func (w *Workflow) DeleteOfflineBook(bookID string) error {
	if w.storage == nil {
		return ErrUnavailable
	}
	if err := w.storage.Delete(cache.BookStoreName(bookID)); err != nil {
		return fmt.Errorf("failed to delete offline book %s: %w", bookID, err)
	}
	w.state.update(func(s *Snapshot) { s.OfflineReady = false })
	return nil
}
