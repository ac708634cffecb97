// Package vector provides a flat nearest-neighbor index over fixed-dimension embeddings.
package vector

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Common errors for the vector index.
var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidDimension  = errors.New("invalid vector dimension")
)

// Hit is a single nearest-neighbor search result.
type Hit struct {
	// Position is the insertion position of the matched vector.
	Position int `json:"position"`

	// Distance is the squared Euclidean distance to the query.
	Distance float32 `json:"distance"`
}

// Flat is an append-only brute-force index using squared Euclidean distance.
// Positions are assigned in insertion order and are never reused or reassigned.
// Flat is not safe for concurrent mutation.
type Flat struct {
	dim     int
	vectors [][]float32
}

// NewFlat creates an empty index for vectors of the given dimension.
func NewFlat(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	return &Flat{dim: dim}, nil
}

// Dimensions returns the vector dimension fixed at construction.
func (f *Flat) Dimensions() int {
	return f.dim
}

// Size returns the number of stored vectors.
func (f *Flat) Size() int {
	return len(f.vectors)
}

// Insert appends embeddings in input order and returns their assigned positions.
// If any embedding has the wrong dimension, nothing is appended.
func (f *Flat) Insert(embeddings [][]float32) ([]int, error) {
	for i, emb := range embeddings {
		if len(emb) != f.dim {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(emb), f.dim)
		}
	}

	positions := make([]int, len(embeddings))
	base := len(f.vectors)
	for i, emb := range embeddings {
		stored := make([]float32, len(emb))
		copy(stored, emb)
		f.vectors = append(f.vectors, stored)
		positions[i] = base + i
	}
	return positions, nil
}

// Search returns the k nearest vectors to the query, closest first.
// Equal distances are ordered by ascending position. The result length is
// min(k, Size()); k <= 0 returns no hits.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), f.dim)
	}
	if k <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}

	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{Position: i, Distance: squaredL2(query, v)}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Position < hits[j].Position
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// squaredL2 computes the squared Euclidean distance between two vectors.
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// flatSnapshot is the persisted form of a Flat index.
type flatSnapshot struct {
	Dim     int
	Vectors [][]float32
}

// Save writes the index to path. The file is written to a temporary
// location first and renamed into place, so readers never observe a
// partially written index.
func (f *Flat) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(flatSnapshot{Dim: f.dim, Vectors: f.vectors}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

// Load reads an index previously written by Save.
func Load(path string) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	var snap flatSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if snap.Dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, snap.Dim)
	}
	for i, v := range snap.Vectors {
		if len(v) != snap.Dim {
			return nil, fmt.Errorf("%w: stored vector %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), snap.Dim)
		}
	}

	return &Flat{dim: snap.Dim, vectors: snap.Vectors}, nil
}
