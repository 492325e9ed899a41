package dedup

import (
	"context"
	"log/slog"

	"deepresearch.app/agent/internal/embed"
)

// SimilarityThreshold marks two strings as semantic duplicates.
const SimilarityThreshold = 0.86

// Deduper filters new strings that restate existing ones. Questions and
// search keywords both go through here before widening the session state.
type Deduper struct {
	embeddings embed.Provider
}

func New(embeddings embed.Provider) *Deduper {
	return &Deduper{embeddings: embeddings}
}

// Dedup returns the subset of newItems that is semantically distinct from
// existingItems and from the already-accepted new items. On any embedding
// failure it degrades to returning newItems unchanged: a duplicate query is
// cheaper than a lost one.
func (d *Deduper) Dedup(ctx context.Context, newItems, existingItems []string) []string {
	if len(newItems) == 0 {
		return nil
	}
	if len(newItems) == 1 && len(existingItems) == 0 {
		return newItems
	}

	all := make([]string, 0, len(newItems)+len(existingItems))
	all = append(all, newItems...)
	all = append(all, existingItems...)

	vectors, _, err := d.embeddings.Embed(ctx, all, "text-matching")
	if err != nil {
		slog.WarnContext(ctx, "dedup embedding failed, keeping all new items",
			"new_items", len(newItems),
			"error", err)
		return newItems
	}

	newVectors := vectors[:len(newItems)]
	existingVectors := vectors[len(newItems):]

	var unique []string
	var acceptedVectors [][]float64

	for i, item := range newItems {
		if isDuplicate(newVectors[i], existingVectors) || isDuplicate(newVectors[i], acceptedVectors) {
			slog.DebugContext(ctx, "dropping semantic duplicate", "item", item)
			continue
		}
		unique = append(unique, item)
		acceptedVectors = append(acceptedVectors, newVectors[i])
	}

	return unique
}

func isDuplicate(vector []float64, against [][]float64) bool {
	for _, other := range against {
		if embed.Cosine(vector, other) >= SimilarityThreshold {
			return true
		}
	}
	return false
}
