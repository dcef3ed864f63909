// ABOUTME: Tests for namespace allow-list resolution
// ABOUTME: Engine errors and panics exclude only the failing namespace

package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

type stubNamespaces struct {
	ids []int
	err error
}

func (s stubNamespaces) Namespaces(context.Context) ([]int, error) { return s.ids, s.err }

// probeChecker answers per namespace and records every title it was asked about.
type probeChecker struct {
	mu       sync.Mutex
	answers  map[int]bool
	failing  map[int]bool
	panicky  map[int]bool
	asked    []wiki.Title
	askedFor []Identity
}

func (c *probeChecker) CanRead(_ context.Context, who Identity, title wiki.Title) (bool, error) {
	c.mu.Lock()
	c.asked = append(c.asked, title)
	c.askedFor = append(c.askedFor, who)
	c.mu.Unlock()

	if c.panicky[title.Namespace] {
		panic("engine exploded")
	}
	if c.failing[title.Namespace] {
		return false, errors.New("engine unavailable")
	}
	return c.answers[title.Namespace], nil
}

func allReadable(ids ...int) map[int]bool {
	m := map[int]bool{}
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func TestResolve_SkipsVirtualNamespaces(t *testing.T) {
	checker := &probeChecker{answers: allReadable(-2, -1, 0, 1, 2)}
	r := NewNamespaceResolver(stubNamespaces{ids: []int{-2, -1, 0, 1, 2}}, checker, WithResolverLogger(discardLogger()))

	got := r.Resolve(context.Background(), Identity{Name: "Alice", ID: 7})
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Len(t, checker.asked, 3, "virtual namespaces are never probed")
}

func TestResolve_ProbesReservedTitle(t *testing.T) {
	checker := &probeChecker{answers: allReadable(0, 12)}
	r := NewNamespaceResolver(stubNamespaces{ids: []int{0, 12}}, checker, WithResolverLogger(discardLogger()))
	alice := Identity{Name: "Alice", ID: 7}

	r.Resolve(context.Background(), alice)

	for _, title := range checker.asked {
		assert.Equal(t, wiki.ProbeTitle(title.Namespace), title)
	}
	for _, who := range checker.askedFor {
		assert.Equal(t, alice, who)
	}
}

func TestResolve_FailClosedPerNamespace(t *testing.T) {
	ids := []int{0, 1, 2, 3, 4, 12}
	checker := &probeChecker{
		answers: allReadable(ids...),
		failing: map[int]bool{2: true},
		panicky: map[int]bool{4: true},
	}
	r := NewNamespaceResolver(stubNamespaces{ids: ids}, checker, WithResolverLogger(discardLogger()))

	got := r.Resolve(context.Background(), Anonymous())
	assert.Equal(t, []int{0, 1, 3, 12}, got)
}

func TestResolve_UnreadableExcluded(t *testing.T) {
	checker := &probeChecker{answers: map[int]bool{0: true, 2: false, 14: true}}
	r := NewNamespaceResolver(stubNamespaces{ids: []int{14, 2, 0}}, checker, WithResolverLogger(discardLogger()))

	assert.Equal(t, []int{0, 14}, r.Resolve(context.Background(), Anonymous()))
}

func TestResolve_ListingFailureIsEmpty(t *testing.T) {
	checker := &probeChecker{answers: allReadable(0)}
	r := NewNamespaceResolver(stubNamespaces{err: errors.New("db down")}, checker, WithResolverLogger(discardLogger()))

	got := r.Resolve(context.Background(), Anonymous())
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, checker.asked)
}

func TestResolve_SequentialMatchesConcurrent(t *testing.T) {
	ids := []int{15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	answers := map[int]bool{}
	for _, id := range ids {
		answers[id] = id%3 != 0
	}

	seq := NewNamespaceResolver(stubNamespaces{ids: ids}, &probeChecker{answers: answers},
		WithProbeConcurrency(1), WithResolverLogger(discardLogger()))
	par := NewNamespaceResolver(stubNamespaces{ids: ids}, &probeChecker{answers: answers},
		WithProbeConcurrency(16), WithResolverLogger(discardLogger()))

	want := []int{1, 2, 4, 5, 7, 8, 10, 11, 13, 14}
	assert.Equal(t, want, seq.Resolve(context.Background(), Anonymous()))
	assert.Equal(t, want, par.Resolve(context.Background(), Anonymous()))
}

func TestResolve_NoCachingAcrossCalls(t *testing.T) {
	checker := &probeChecker{answers: allReadable(0)}
	r := NewNamespaceResolver(stubNamespaces{ids: []int{0}}, checker, WithResolverLogger(discardLogger()))

	assert.Equal(t, []int{0}, r.Resolve(context.Background(), Anonymous()))

	checker.mu.Lock()
	checker.answers = map[int]bool{}
	checker.mu.Unlock()

	assert.Empty(t, r.Resolve(context.Background(), Anonymous()))
	assert.Len(t, checker.asked, 2)
}
