// Package store owns the indexed corpus: the vector index and the
// position-aligned chunk metadata, persisted and loaded as a unit.
package store

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind classifies an ingested document.
type SourceKind string

// KindScript is the only source kind currently ingested.
const KindScript SourceKind = "script"

// Chunk is a contiguous slice of source text with positional metadata.
// Offsets are word indices for word-mode chunking and rune offsets for
// character mode. Chunks are immutable once created and ordered by
// SequenceID in document order.
type Chunk struct {
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	SequenceID  int    `json:"sequence_id"`
}

// SourceRecord identifies one ingested document. Never mutated after creation.
type SourceRecord struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	OriginPath string     `json:"origin_path"`
	Kind       SourceKind `json:"kind"`
	IngestedAt time.Time  `json:"ingested_at"`
}

// NewSourceRecord creates a SourceRecord for a document being ingested now.
func NewSourceRecord(name, originPath string) SourceRecord {
	return SourceRecord{
		ID:         uuid.New(),
		Name:       name,
		OriginPath: originPath,
		Kind:       KindScript,
		IngestedAt: time.Now().UTC(),
	}
}

// ChunkMetadata is the denormalized record attached to every vector index
// entry, so retrieval needs no join against a separate document table.
type ChunkMetadata struct {
	Chunk  Chunk        `json:"chunk"`
	Source SourceRecord `json:"source"`
}
