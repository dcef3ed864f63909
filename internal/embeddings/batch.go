// ABOUTME: Re-embeds stale pages of one namespace and reports per-namespace sync status
// ABOUTME: Staleness compares local touched timestamps with those the backend reports

package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/labki-org/mwassistant-gateway/internal/auth"
	"github.com/labki-org/mwassistant-gateway/internal/mcp"
	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

// BatchResult counts what a batch run did.
type BatchResult struct {
	Namespace int    `json:"namespace"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	Errors    int    `json:"errors"`
	LastError string `json:"last_error,omitempty"`
}

// NamespaceStatus compares local pages of one namespace with the index.
type NamespaceStatus struct {
	Namespace int    `json:"namespace"`
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Synced    int    `json:"synced"`
	OutOfDate int    `json:"out_of_date"`
	Missing   int    `json:"missing"`
}

// BatchUpdate re-embeds every page in namespace whose local touched time is
// newer than the backend's copy, or which the backend does not have. Pages
// with blank content are skipped. Per-page failures are counted, not
// returned; a stats or listing failure aborts the run.
func (ix *Indexer) BatchUpdate(ctx context.Context, who auth.Identity, namespace int) (BatchResult, error) {
	res := BatchResult{Namespace: namespace}

	stats, err := ix.backend.EmbeddingStats(ctx, who)
	if err != nil {
		return res, fmt.Errorf("fetching embedding stats: %w", err)
	}
	pages, err := ix.pages.ListPages(ctx, namespace)
	if err != nil {
		return res, fmt.Errorf("listing pages: %w", err)
	}

	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		title := p.Title.PrefixedText(ix.names)
		touched := FormatTimestamp(p.Touched)
		if remote, ok := stats.PageTimestamps[title]; ok && remote >= touched {
			res.Skipped++
			continue
		}
		if strings.TrimSpace(p.Content) == "" {
			res.Skipped++
			continue
		}
		err := ix.backend.UpdatePageEmbedding(ctx, who, mcp.PageEmbedding{
			Title:        title,
			Content:      p.Content,
			Namespace:    p.Title.Namespace,
			LastModified: touched,
		})
		if err != nil {
			res.Errors++
			res.LastError = err.Error()
			continue
		}
		res.Updated++
	}

	ix.logger.Info("batch embedding finished",
		"namespace", namespace, "updated", res.Updated, "skipped", res.Skipped, "errors", res.Errors)
	return res, nil
}

// Status reports sync state for every embeddable namespace, along with the
// backend's own stats.
func (ix *Indexer) Status(ctx context.Context, who auth.Identity) (*mcp.EmbeddingStats, []NamespaceStatus, error) {
	stats, err := ix.backend.EmbeddingStats(ctx, who)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching embedding stats: %w", err)
	}

	var out []NamespaceStatus
	for _, ns := range ix.names.IDs() {
		if !Embeddable(wiki.Title{Namespace: ns}) {
			continue
		}
		pages, err := ix.pages.ListPages(ctx, ns)
		if err != nil {
			return nil, nil, fmt.Errorf("listing pages: %w", err)
		}
		row := NamespaceStatus{Namespace: ns, Name: ix.names[ns], Total: len(pages)}
		if row.Name == "" {
			row.Name = "(Main)"
		}
		for _, p := range pages {
			remote, ok := stats.PageTimestamps[p.Title.PrefixedText(ix.names)]
			switch {
			case !ok:
				row.Missing++
			case remote >= FormatTimestamp(p.Touched):
				row.Synced++
			default:
				row.OutOfDate++
			}
		}
		out = append(out, row)
	}
	return stats, out, nil
}
