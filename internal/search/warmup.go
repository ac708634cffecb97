package search

import (
	"context"
	"fmt"
)

// warmupQueries are the retrievals production tooling runs most often.
// Pre-embedding them fills a caching provider so the first interactive
// query skips the round-trip.
var warmupQueries = []string{
	"character introduction",
	"opening scene",
	"action sequence",
	"fight choreography",
	"dialogue between characters",
	"scene transition",
	"flashback sequence",
	"emotional confrontation",
	"character motivation",
	"establishing shot",
	"dramatic reveal",
	"comedic moment",
	"final battle",
	"closing scene",
}

// Warmup pre-embeds the common script queries. Safe to run in the
// background during startup; a failure only costs the cache fill.
func (r *Retriever) Warmup(ctx context.Context) error {
	return r.WarmupCustom(ctx, warmupQueries)
}

// WarmupCustom pre-embeds caller-chosen queries.
func (r *Retriever) WarmupCustom(ctx context.Context, queries []string) error {
	if len(queries) == 0 {
		return nil
	}
	if _, err := r.provider.EmbedBatch(ctx, queries); err != nil {
		return fmt.Errorf("warm up query embeddings: %w", err)
	}
	return nil
}

// WarmupQueries returns a copy of the built-in warmup list.
func WarmupQueries() []string {
	queries := make([]string, len(warmupQueries))
	copy(queries, warmupQueries)
	return queries
}
