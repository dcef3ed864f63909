// ABOUTME: Keeps the backend's page embeddings in step with local page saves and deletions
// ABOUTME: Events are queued without blocking the writer and drained by a fixed worker pool

package embeddings

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/labki-org/mwassistant-gateway/internal/auth"
	"github.com/labki-org/mwassistant-gateway/internal/config"
	"github.com/labki-org/mwassistant-gateway/internal/mcp"
	"github.com/labki-org/mwassistant-gateway/internal/store"
	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

// TimestampLayout is the wiki timestamp format exchanged with the backend.
// Equal-length strings in this layout compare like the times they encode.
const TimestampLayout = "20060102150405"

// FormatTimestamp renders t in TimestampLayout, in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

const (
	defaultCoalesceWindow = 30 * time.Second
	coalesceCapacity      = 4096
	sweepInterval         = time.Minute
)

// Backend is the part of the backend client the indexer drives.
type Backend interface {
	UpdatePageEmbedding(ctx context.Context, who auth.Identity, page mcp.PageEmbedding) error
	DeletePageEmbedding(ctx context.Context, who auth.Identity, title string) error
	EmbeddingStats(ctx context.Context, who auth.Identity) (*mcp.EmbeddingStats, error)
}

// PageSource lists local pages for batch re-embedding.
type PageSource interface {
	ListPages(ctx context.Context, namespace int) ([]store.Page, error)
}

// PageEvent describes a saved or deleted page. Actor is the user whose
// assertion is sent with the backend call.
type PageEvent struct {
	Title      wiki.Title
	Content    string
	RevisionID string
	Touched    time.Time
	Actor      auth.Identity
}

type jobKind int

const (
	jobUpdate jobKind = iota
	jobDelete
)

type job struct {
	kind  jobKind
	event PageEvent
	key   string
}

// Indexer queues embedding work and runs it in the background.
type Indexer struct {
	enabled bool
	backend Backend
	pages   PageSource
	names   wiki.NamespaceNames
	queue   chan job
	workers int
	recent  *coalescer
	logger  *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the indexer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) { ix.logger = logger }
}

// WithCoalesceWindow sets how long a queued (title, revision) pair
// suppresses identical events.
func WithCoalesceWindow(d time.Duration) Option {
	return func(ix *Indexer) { ix.recent = newCoalescer(d, coalesceCapacity) }
}

// NewIndexer builds an indexer. Events are ignored unless both
// assistant.enabled and assistant.auto_embed are set; BatchUpdate works
// either way.
func NewIndexer(cfg *config.Config, backend Backend, pages PageSource, names wiki.NamespaceNames, opts ...Option) *Indexer {
	if names == nil {
		names = wiki.DefaultNamespaces
	}
	queueSize := cfg.Embeddings.QueueSize
	if queueSize <= 0 {
		queueSize = config.DefaultQueueSize
	}
	workers := cfg.Embeddings.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	ix := &Indexer{
		enabled: cfg.Assistant.Enabled && cfg.Assistant.AutoEmbed,
		backend: backend,
		pages:   pages,
		names:   names,
		queue:   make(chan job, queueSize),
		workers: workers,
		recent:  newCoalescer(defaultCoalesceWindow, coalesceCapacity),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = ix.logger.With("component", "embeddings")
	return ix
}

// Embeddable reports whether pages under title are sent to the backend.
// Talk pages, user pages and virtual namespaces are not.
func Embeddable(title wiki.Title) bool {
	return title.Namespace >= 0 && !title.IsTalk() && title.Namespace != wiki.NSUser
}

// PageSaved queues an embedding update. It reports whether work was queued.
func (ix *Indexer) PageSaved(ev PageEvent) bool {
	if !ix.enabled || !Embeddable(ev.Title) {
		return false
	}
	if strings.TrimSpace(ev.Content) == "" {
		return false
	}
	key := "save|" + strconv.Itoa(ev.Title.Namespace) + "|" + ev.Title.DBKey() + "|" + ev.RevisionID
	return ix.enqueue(job{kind: jobUpdate, event: ev, key: key})
}

// PageDeleted queues removal of a page's embedding. It reports whether work
// was queued.
func (ix *Indexer) PageDeleted(ev PageEvent) bool {
	if !ix.enabled || !Embeddable(ev.Title) {
		return false
	}
	key := "delete|" + strconv.Itoa(ev.Title.Namespace) + "|" + ev.Title.DBKey()
	return ix.enqueue(job{kind: jobDelete, event: ev, key: key})
}

func (ix *Indexer) enqueue(j job) bool {
	if ix.recent.seenRecently(j.key) {
		ix.logger.Debug("coalesced duplicate page event", "page", j.event.Title.PrefixedText(ix.names))
		return false
	}
	select {
	case ix.queue <- j:
		return true
	default:
		ix.recent.forget(j.key)
		ix.logger.Warn("embedding queue full, dropping page event", "page", j.event.Title.PrefixedText(ix.names))
		return false
	}
}

// Pending returns the number of queued jobs.
func (ix *Indexer) Pending() int {
	return len(ix.queue)
}

// Run drains the queue until ctx is cancelled.
func (ix *Indexer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < ix.workers; i++ {
		g.Go(func() error {
			ix.work(ctx)
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				ix.recent.sweep()
			}
		}
	})
	return g.Wait()
}

func (ix *Indexer) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-ix.queue:
			ix.process(ctx, j)
		}
	}
}

func (ix *Indexer) process(ctx context.Context, j job) {
	page := j.event.Title.PrefixedText(ix.names)
	var err error
	switch j.kind {
	case jobUpdate:
		err = ix.backend.UpdatePageEmbedding(ctx, j.event.Actor, mcp.PageEmbedding{
			Title:        page,
			Content:      j.event.Content,
			Namespace:    j.event.Title.Namespace,
			LastModified: FormatTimestamp(j.event.Touched),
		})
	case jobDelete:
		err = ix.backend.DeletePageEmbedding(ctx, j.event.Actor, page)
	}
	if err != nil {
		// Allow a retry on the next identical event.
		ix.recent.forget(j.key)
		ix.logger.Error("embedding update failed", "page", page, "error", err)
		return
	}
	ix.logger.Debug("embedding updated", "page", page, "delete", j.kind == jobDelete)
}
