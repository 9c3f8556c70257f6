package cache

import (
	"net/http"
	"time"
)

// Entry holds one stored HTTP response. Only GET responses are ever cached,
// so the URL alone identifies an entry.
type Entry struct {
	StatusCode int         `json:"statusCode"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"storedAt"`
}

// Size returns the approximate footprint of the entry in bytes.
func (e *Entry) Size() int64 {
	return int64(len(e.Body)) + int64(len(e.Header)*30)
}

// Write replays the stored response onto w.
func (e *Entry) Write(w http.ResponseWriter) error {
	for k, vals := range e.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(e.StatusCode)
	_, err := w.Write(e.Body)
	return err
}

// Store is one named cache: a persistent mapping from request URL to a
// stored response. Writes to the same URL are last-write-wins.
type Store interface {
	Get(url string) (*Entry, bool)
	Put(url string, entry *Entry) error
	Has(url string) bool
	Delete(url string) error
	Keys() ([]string, error)
}

// Storage is the namespace of named stores. Stores are created lazily on
// first open and persist until explicitly deleted.
type Storage interface {
	Open(name string) (Store, error)
	Delete(name string) error
	List() ([]string, error)
	Has(name string) bool
}

// Store naming contract: each downloaded book gets its own store named by
// prefixing its id, which is what scoped enumeration and deletion key on.
// The two fixed stores are shared across all books.
const (
	BookStorePrefix = "book-cache-"
	RuntimeStore    = "runtime-cache-v1"
	AssetStore      = "static-cache-v1"
)

// BookStoreName derives the store name for a book id.
func BookStoreName(bookID string) string {
	return BookStorePrefix + bookID
}
