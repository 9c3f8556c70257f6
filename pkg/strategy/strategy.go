// Package strategy routes every request through one of three caching
// disciplines keyed on URL shape, keeping the stores warm as a side effect.
package strategy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nrivara/folio/pkg/cache"
	"github.com/nrivara/folio/pkg/data"
)

// Synthetic bodies for the no-network-no-cache fallbacks.
const (
	offlineManifestBody = "Offline - manifest not available"
	offlineResourceBody = "Offline - resource not available"
)

const booksPathMarker = "/books/"

// Handler proxies GET requests to an upstream origin, deciding per request
// whether to serve from cache, from network, or both. Non-GET requests pass
// through untouched and are never cached.
type Handler struct {
	upstream string // origin, e.g. "https://catalogs.example.com"
	client   *http.Client
	storage  cache.Storage
	runtime  cache.Store
	assets   cache.Store
	logger   *slog.Logger

	// Deduplicates concurrent background revalidations per URL.
	revalidate singleflight.Group
}

// NewHandler opens the runtime and asset stores in storage and returns the
// interception handler for the given upstream origin.
func NewHandler(storage cache.Storage, upstream string, client *http.Client) (*Handler, error) {
	if client == nil {
		client = http.DefaultClient
	}
	runtime, err := storage.Open(cache.RuntimeStore)
	if err != nil {
		return nil, fmt.Errorf("failed to open runtime store: %w", err)
	}
	assets, err := storage.Open(cache.AssetStore)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset store: %w", err)
	}
	return &Handler{
		upstream: strings.TrimRight(upstream, "/"),
		client:   client,
		storage:  storage,
		runtime:  runtime,
		assets:   assets,
		logger:   slog.Default(),
	}, nil
}

func (h *Handler) upstreamURL(r *http.Request) string {
	return h.upstream + r.URL.RequestURI()
}

// ServeHTTP selects the strategy once per request, in priority order:
// manifest URLs are network-first, book assets cache-first, everything else
// stale-while-revalidate.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.passthrough(w, r)
		return
	}

	url := h.upstreamURL(r)
	switch {
	case strings.Contains(r.URL.Path, data.ManifestFileName):
		h.networkFirst(w, r, url)
	case strings.Contains(r.URL.Path, booksPathMarker):
		h.cacheFirst(w, r, url)
	default:
		h.staleWhileRevalidate(w, r, url)
	}
}

// lookup matches a URL across the whole cache namespace: the runtime store
// first, then every downloaded book's store. New writes still go only to the
// runtime store; downloaded books are filled by the offline workflow.
func (h *Handler) lookup(url string) (*cache.Entry, bool) {
	if entry, ok := h.runtime.Get(url); ok {
		return entry, true
	}
	names, err := h.storage.List()
	if err != nil {
		h.logger.Error("failed to list stores", "error", err)
		return nil, false
	}
	for _, name := range names {
		if !strings.HasPrefix(name, cache.BookStorePrefix) {
			continue
		}
		store, err := h.storage.Open(name)
		if err != nil {
			continue
		}
		if entry, ok := store.Get(url); ok {
			return entry, true
		}
	}
	return nil, false
}

// networkFirst prefers the live manifest; the cached copy is a safety net
// for network failure only. Live error statuses are returned as-is.
func (h *Handler) networkFirst(w http.ResponseWriter, r *http.Request, url string) {
	entry, err := h.fetch(r.Context(), url)
	if err == nil {
		if cacheable(entry) {
			h.storeDetached(h.runtime, url, entry)
		}
		w.Header().Set("X-Cache-Status", "MISS")
		entry.Write(w)
		return
	}

	if cached, ok := h.lookup(url); ok {
		w.Header().Set("X-Cache-Status", "HIT")
		cached.Write(w)
		return
	}
	writeOffline(w, offlineManifestBody)
}

// cacheFirst serves immutable book assets: once cached, never re-fetched.
func (h *Handler) cacheFirst(w http.ResponseWriter, r *http.Request, url string) {
	if cached, ok := h.lookup(url); ok {
		w.Header().Set("X-Cache-Status", "HIT")
		cached.Write(w)
		return
	}

	entry, err := h.fetch(r.Context(), url)
	if err != nil {
		writeOffline(w, offlineResourceBody)
		return
	}
	if cacheable(entry) {
		h.storeDetached(h.runtime, url, entry)
	}
	w.Header().Set("X-Cache-Status", "MISS")
	entry.Write(w)
}

// staleWhileRevalidate returns a cached shell asset immediately and refreshes
// it in the background. With no cached copy the response waits on the
// network; a failure there surfaces as 502 (shell assets are expected to be
// pre-cached in the steady state, so there is no synthetic 503 here).
func (h *Handler) staleWhileRevalidate(w http.ResponseWriter, r *http.Request, url string) {
	if cached, ok := h.assets.Get(url); ok {
		go func() {
			defer func() { _ = recover() }()
			_, _, _ = h.revalidate.Do(url, func() (interface{}, error) {
				entry, err := h.fetch(context.Background(), url)
				if err != nil || !cacheable(entry) {
					return nil, err
				}
				if err := h.assets.Put(url, entry); err != nil {
					h.logger.Error("failed to store revalidated asset", "url", url, "error", err)
				}
				return nil, nil
			})
		}()
		w.Header().Set("X-Cache-Status", "HIT")
		cached.Write(w)
		return
	}

	entry, err := h.fetch(r.Context(), url)
	if err != nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	if cacheable(entry) {
		h.storeDetached(h.assets, url, entry)
	}
	w.Header().Set("X-Cache-Status", "MISS")
	entry.Write(w)
}

// cacheable gates what may be stored: only 2xx responses.
func cacheable(entry *cache.Entry) bool {
	return entry.StatusCode >= 200 && entry.StatusCode <= 299
}

// fetch performs the upstream GET and captures the response as an entry.
// HTTP error statuses come back as entries too; only transport failures
// (offline, refused) are errors here.
func (h *Handler) fetch(ctx context.Context, url string) (*cache.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &cache.Entry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   time.Now(),
	}, nil
}

// storeDetached writes a clone of the entry in the background. The response
// path never waits on it and failures are swallowed with a log line.
func (h *Handler) storeDetached(store cache.Store, url string, entry *cache.Entry) {
	clone := *entry
	go func() {
		defer func() { _ = recover() }()
		if err := store.Put(url, &clone); err != nil {
			h.logger.Error("failed to store response", "url", url, "error", err)
		}
	}()
}

// passthrough forwards non-GET requests to the upstream without touching any
// store.
func (h *Handler) passthrough(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, h.upstreamURL(r), r.Body)
	if err != nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	req.Header = r.Header.Clone()

	resp, err := h.client.Do(req)
	if err != nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func writeOffline(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = io.WriteString(w, body)
}
