// ABOUTME: Resolves which namespaces an identity may read by probing a reserved page per namespace
// ABOUTME: Failures exclude only the namespace that failed; the allow-list never fails open

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

// DefaultProbeConcurrency bounds parallel permission checks per Resolve call.
const DefaultProbeConcurrency = 8

// NamespaceSource lists the known namespace ids.
type NamespaceSource interface {
	Namespaces(ctx context.Context) ([]int, error)
}

// AllowListResolver computes the namespace allow-list embedded in minted
// tokens.
type AllowListResolver interface {
	Resolve(ctx context.Context, who Identity) []int
}

// NamespaceResolver builds namespace allow-lists. It keeps no state between
// calls.
type NamespaceResolver struct {
	source  NamespaceSource
	checker ReadChecker
	logger  *slog.Logger
	limit   int
}

// ResolverOption configures a NamespaceResolver.
type ResolverOption func(*NamespaceResolver)

// WithProbeConcurrency sets how many probes run at once. Values below 1
// mean sequential.
func WithProbeConcurrency(n int) ResolverOption {
	return func(r *NamespaceResolver) {
		if n < 1 {
			n = 1
		}
		r.limit = n
	}
}

// WithResolverLogger sets the logger used for probe failures.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *NamespaceResolver) { r.logger = logger }
}

// NewNamespaceResolver creates a resolver over source and checker.
func NewNamespaceResolver(source NamespaceSource, checker ReadChecker, opts ...ResolverOption) *NamespaceResolver {
	r := &NamespaceResolver{
		source:  source,
		checker: checker,
		logger:  slog.Default(),
		limit:   DefaultProbeConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "namespace-resolver")
	return r
}

// Resolve returns the ascending list of non-negative namespaces who can read.
func (r *NamespaceResolver) Resolve(ctx context.Context, who Identity) []int {
	ids, err := r.source.Namespaces(ctx)
	if err != nil {
		r.logger.Error("listing namespaces failed, allow-list is empty", "error", err)
		return []int{}
	}

	candidates := make([]int, 0, len(ids))
	for _, ns := range ids {
		if ns >= 0 {
			candidates = append(candidates, ns)
		}
	}

	readable := make([]bool, len(candidates))
	g := new(errgroup.Group)
	g.SetLimit(r.limit)
	for i, ns := range candidates {
		i, ns := i, ns
		g.Go(func() error {
			readable[i] = r.probe(ctx, who, ns)
			return nil
		})
	}
	_ = g.Wait()

	allowed := []int{}
	for i, ns := range candidates {
		if readable[i] {
			allowed = append(allowed, ns)
		}
	}
	sort.Ints(allowed)
	return allowed
}

// probe asks whether the reserved page in ns is readable. Errors and panics
// count as unreadable.
func (r *NamespaceResolver) probe(ctx context.Context, who Identity, ns int) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("namespace probe panicked", "namespace", ns, "panic", fmt.Sprint(p))
			ok = false
		}
	}()

	allowed, err := r.checker.CanRead(ctx, who, wiki.ProbeTitle(ns))
	if err != nil {
		r.logger.Warn("namespace probe failed", "namespace", ns, "error", err)
		return false
	}
	return allowed
}
