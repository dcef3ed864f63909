// ABOUTME: Gateway orchestrator that wires the store, access gate, backend client and HTTP API
// ABOUTME: Runs the HTTP server alongside the embedding workers and shuts both down together

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/labki-org/mwassistant-gateway/internal/api"
	"github.com/labki-org/mwassistant-gateway/internal/auth"
	"github.com/labki-org/mwassistant-gateway/internal/config"
	"github.com/labki-org/mwassistant-gateway/internal/embeddings"
	"github.com/labki-org/mwassistant-gateway/internal/mcp"
	"github.com/labki-org/mwassistant-gateway/internal/permissions"
	"github.com/labki-org/mwassistant-gateway/internal/store"
	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

// DBPathEnv overrides database.path when set.
const DBPathEnv = "MWASSISTANT_DB_PATH"

const shutdownTimeout = 5 * time.Second

// Gateway owns every long-lived component of the host process.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	engine     *permissions.Engine
	resolver   *auth.NamespaceResolver
	signerMu   sync.Mutex
	signer     *auth.Signer // nil until first needed while the assistant is disabled
	gate       *auth.Gate
	indexer    *embeddings.Indexer
	api        *api.Server
	names      wiki.NamespaceNames
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore opens the SQLite store named by config or the environment.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv(DBPathEnv); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a new Gateway instance with the given configuration.
// A missing backend→host secret aborts construction. The host→backend
// secret, TTL, wiki id and backend base URL are only required while the
// assistant is enabled; otherwise the signer is built on first use.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := build(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

func build(cfg *config.Config, s *store.SQLiteStore, logger *slog.Logger) (*Gateway, error) {
	names, err := s.NamespaceNames(context.Background())
	if err != nil {
		return nil, fmt.Errorf("loading namespaces: %w", err)
	}

	engine := permissions.New(s, logger)
	resolver := auth.NewNamespaceResolver(s, engine, auth.WithResolverLogger(logger))

	verifier, err := auth.NewVerifier(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating token verifier: %w", err)
	}
	gate := auth.NewGate(verifier, engine, engine, logger,
		auth.WithAuditRecorder(s),
		auth.WithSessionCookie(cfg.Auth.SessionCookie),
	)

	gw := &Gateway{
		config:   cfg,
		store:    s,
		engine:   engine,
		resolver: resolver,
		gate:     gate,
		names:    names,
		logger:   logger.With("component", "gateway"),
	}

	// Interface values stay nil while the assistant is off so that nothing
	// downstream sees a typed nil pointer.
	var backend api.Backend
	var embedBackend embeddings.Backend
	if cfg.Assistant.Enabled {
		signer, err := gw.Signer()
		if err != nil {
			return nil, err
		}
		client, err := mcp.NewClient(cfg, signer, engine, mcp.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating backend client: %w", err)
		}
		backend = client
		embedBackend = client
	} else {
		gw.logger.Info("assistant disabled, backend routes will answer 503")
	}

	gw.indexer = embeddings.NewIndexer(cfg, embedBackend, s, names, embeddings.WithLogger(logger))
	gw.api = api.New(api.Deps{
		Config:      cfg,
		Gate:        gate,
		Backend:     backend,
		Embeddings:  gw.indexer,
		Permissions: engine,
		Pages:       s,
		Names:       names,
		Logger:      logger,
	})

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// Handler returns the routed HTTP API.
func (g *Gateway) Handler() http.Handler { return g.httpServer.Handler }

// Store returns the backing store.
func (g *Gateway) Store() *store.SQLiteStore { return g.store }

// Permissions returns the permission engine.
func (g *Gateway) Permissions() *permissions.Engine { return g.engine }

// Signer returns the host→backend token signer, building it on first use.
// Configuration errors wrap config.ErrInvalid.
func (g *Gateway) Signer() (*auth.Signer, error) {
	g.signerMu.Lock()
	defer g.signerMu.Unlock()
	if g.signer != nil {
		return g.signer, nil
	}
	signer, err := auth.NewSigner(g.config, g.resolver)
	if err != nil {
		return nil, fmt.Errorf("creating token signer: %w", err)
	}
	g.signer = signer
	return signer, nil
}

// Indexer returns the embedding indexer.
func (g *Gateway) Indexer() *embeddings.Indexer { return g.indexer }

// Names returns the namespace names loaded at construction.
func (g *Gateway) Names() wiki.NamespaceNames { return g.names }

// Run starts the HTTP server and embedding workers and blocks until ctx is
// canceled. Returns nil on graceful shutdown, or the first server error.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return g.indexer.Run(gctx)
	})
	group.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			g.logger.Info("context canceled, initiating shutdown")
		}
		return g.gracefulShutdown()
	})

	return group.Wait()
}

// gracefulShutdown stops the HTTP server with a fresh context and timeout.
// The caller's context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := g.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// Close releases the store. Call it after Run returns.
func (g *Gateway) Close() error {
	g.logger.Info("closing gateway")
	if pending := g.indexer.Pending(); pending > 0 {
		g.logger.Warn("discarding queued embedding work", "pending", pending)
	}
	if err := g.store.Close(); err != nil {
		return fmt.Errorf("store close: %w", err)
	}
	return nil
}
