// Package worker is the message boundary between the page-facing side and
// the background caching context. The two sides share no state; everything
// crosses as explicit messages.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nrivara/folio/pkg/cache"
	"github.com/nrivara/folio/pkg/data"
	"github.com/nrivara/folio/pkg/offline"
)

// Message types exchanged across the boundary.
const (
	MsgCacheBook     = "CACHE_BOOK"
	MsgCacheProgress = "CACHE_PROGRESS"
	MsgCacheComplete = "CACHE_COMPLETE"
	MsgSkipWaiting   = "SKIP_WAITING"
)

// CompleteTimeout is how long a caller waits for CACHE_COMPLETE before
// failing closed. The background task keeps running uncancelled; this is a
// deadline on the wait, not a cancellation.
const CompleteTimeout = 5 * time.Minute

// ErrTimeout is reported when CACHE_COMPLETE does not arrive in time.
var ErrTimeout = errors.New("timed out waiting for cache completion")

// Command is a message into the worker.
type Command struct {
	Type string
	Book *data.Book // CACHE_BOOK only
}

// Event is a message out of the worker. Exactly one CACHE_COMPLETE is
// emitted per CACHE_BOOK, after zero or more CACHE_PROGRESS events.
type Event struct {
	Type    string
	Cached  int
	Total   int
	Success bool
	Error   string
}

// Worker consumes commands, runs the offline workflow, and emits events.
type Worker struct {
	workflow *offline.Workflow
	storage  cache.Storage
	logger   *slog.Logger
	commands chan Command
	events   chan Event
}

func New(workflow *offline.Workflow, storage cache.Storage) *Worker {
	return &Worker{
		workflow: workflow,
		storage:  storage,
		logger:   slog.Default(),
		commands: make(chan Command, 16),
		events:   make(chan Event, 128),
	}
}

// Events is the outbound message stream.
func (w *Worker) Events() <-chan Event {
	return w.events
}

// Send queues a command for the worker.
func (w *Worker) Send(ctx context.Context, cmd Command) error {
	select {
	case w.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes commands until ctx is done. Commands are handled one at a
// time; there is no mid-flight cancellation of a running download.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.commands:
			switch cmd.Type {
			case MsgCacheBook:
				w.handleCacheBook(ctx, cmd.Book)
			case MsgSkipWaiting:
				if err := w.Activate(); err != nil {
					w.logger.Error("activation cleanup failed", "error", err)
				}
			default:
				w.logger.Warn("unknown command", "type", cmd.Type)
			}
		}
	}
}

func (w *Worker) handleCacheBook(ctx context.Context, book *data.Book) {
	if book == nil {
		w.emit(Event{Type: MsgCacheComplete, Success: false, Error: "no book in CACHE_BOOK"})
		return
	}

	unsubscribe := w.workflow.Subscribe(func(s offline.Snapshot) {
		if s.Caching && s.CachedItems > 0 {
			// Progress events are best-effort: dropped, not blocked on.
			select {
			case w.events <- Event{Type: MsgCacheProgress, Cached: s.CachedItems, Total: s.TotalItems}:
			default:
			}
		}
	})
	err := w.workflow.DownloadForOffline(ctx, book)
	unsubscribe()

	done := Event{Type: MsgCacheComplete, Success: err == nil}
	if err != nil {
		done.Error = err.Error()
	}
	w.emit(done)
}

// emit delivers terminal events, blocking briefly rather than dropping them.
func (w *Worker) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-time.After(time.Second):
		w.logger.Warn("dropped event", "type", ev.Type)
	}
}

// Activate garbage-collects stores left behind by previous deployments:
// anything that is neither a current fixed store nor a book store goes.
func (w *Worker) Activate() error {
	names, err := w.storage.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == cache.RuntimeStore || name == cache.AssetStore {
			continue
		}
		if strings.HasPrefix(name, cache.BookStorePrefix) {
			continue
		}
		if err := w.storage.Delete(name); err != nil {
			w.logger.Error("failed to delete stale store", "store", name, "error", err)
			continue
		}
		w.logger.Info("deleted stale store", "store", name)
	}
	return nil
}

// Client is the page-facing side of the boundary.
type Client struct {
	worker *Worker
}

func NewClient(worker *Worker) *Client {
	return &Client{worker: worker}
}

// SkipWaiting requests immediate activation cleanup.
func (c *Client) SkipWaiting(ctx context.Context) error {
	return c.worker.Send(ctx, Command{Type: MsgSkipWaiting})
}

// CacheBook sends CACHE_BOOK and waits for the terminal CACHE_COMPLETE,
// forwarding progress to onProgress (which may be nil). The wait fails
// closed after CompleteTimeout even though the download may still finish in
// the background.
func (c *Client) CacheBook(ctx context.Context, book *data.Book, onProgress func(cached, total int)) error {
	if err := c.worker.Send(ctx, Command{Type: MsgCacheBook, Book: book}); err != nil {
		return err
	}

	deadline := time.NewTimer(CompleteTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrTimeout
		case ev := <-c.worker.events:
			switch ev.Type {
			case MsgCacheProgress:
				if onProgress != nil {
					onProgress(ev.Cached, ev.Total)
				}
			case MsgCacheComplete:
				if !ev.Success {
					return errors.New(ev.Error)
				}
				return nil
			}
		}
	}
}
