package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	vectorsFile  = "vectors.json"
	metadataFile = "metadata.json"
	indexFile    = "index.json"
)

// ErrDimensionMismatch is returned when a batch's vector width differs from
// the width already established by the store.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// SearchResult is one similarity hit.
type SearchResult struct {
	ID       string
	Metadata Metadata
	Score    float64
}

// Stats summarizes the state of a store.
type Stats struct {
	NumVectors int             `json:"num_vectors"`
	Dimension  int             `json:"dimension"`
	StorageDir string          `json:"storage_dir"`
	FilesExist map[string]bool `json:"files_exist"`
}

// Store is an in-memory vector index with disk persistence. The vector
// matrix, the metadata list and the id to row index are kept in lockstep
// under one store-scoped lock; every public method serializes on it for its
// full duration so the structures are never observed torn.
type Store struct {
	mu sync.RWMutex

	dir       string
	vectors   [][]float32
	metadata  []Metadata
	index     map[string]int
	dimension int
	logger    *log.Logger

	now func() time.Time
}

// New opens (or creates) the store rooted at dir and loads whatever artifacts
// already exist there.
func New(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	s := &Store{
		dir:    dir,
		index:  map[string]int{},
		logger: logger,
		now:    time.Now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	return s, nil
}

// Add bulk-inserts vectors with their metadata. The first batch into an empty
// store establishes the dimension; later batches must match it. When ids is
// nil, sequential "item_<n>" ids are assigned. Returns the assigned ids.
func (s *Store) Add(vectors [][]float32, metadata []Metadata, ids []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vectors) == 0 {
		return nil, nil
	}
	if len(vectors) != len(metadata) {
		return nil, fmt.Errorf("got %d vectors but %d metadata entries", len(vectors), len(metadata))
	}
	if ids != nil && len(ids) != len(vectors) {
		return nil, fmt.Errorf("got %d vectors but %d ids", len(vectors), len(ids))
	}

	width := len(vectors[0])
	for i, v := range vectors {
		if len(v) != width {
			return nil, fmt.Errorf("vector %d has dimension %d, batch started with %d: %w", i, len(v), width, ErrDimensionMismatch)
		}
	}
	if width != s.dimension && s.dimension != 0 {
		return nil, fmt.Errorf("batch dimension %d does not match store dimension %d: %w", width, s.dimension, ErrDimensionMismatch)
	}

	// Resolve and validate every id before touching the three structures,
	// so a rejected batch leaves the store exactly as it was.
	assigned := make([]string, 0, len(vectors))
	if ids != nil {
		batch := make(map[string]bool, len(ids))
		for _, id := range ids {
			if _, exists := s.index[id]; exists {
				return nil, fmt.Errorf("duplicate id %q", id)
			}
			if batch[id] {
				return nil, fmt.Errorf("duplicate id %q within batch", id)
			}
			batch[id] = true
		}
		assigned = append(assigned, ids...)
	} else {
		next := len(s.metadata)
		for range vectors {
			var id string
			for {
				id = fmt.Sprintf("item_%d", next)
				next++
				if _, taken := s.index[id]; !taken {
					break
				}
			}
			assigned = append(assigned, id)
		}
	}
	if s.dimension == 0 {
		s.dimension = width
	}

	for i, vec := range vectors {
		meta := metadata[i]
		meta.ID = assigned[i]
		meta.AddedAt = s.now()

		cp := make([]float32, len(vec))
		copy(cp, vec)
		s.vectors = append(s.vectors, cp)
		s.metadata = append(s.metadata, meta)
		s.index[assigned[i]] = len(s.metadata) - 1
	}
	return assigned, nil
}

// Search ranks stored vectors by cosine similarity against query. Zero-norm
// vectors never enter the candidate set, so no score is ever NaN. Results are
// filtered by minSimilarity and the optional metadata filter, sorted
// descending by score with ties kept in insertion order, and truncated to
// topK.
func (s *Store) Search(query []float32, topK int, minSimilarity float64, filter map[string]interface{}) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 || topK <= 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query dimension %d does not match store dimension %d: %w", len(query), s.dimension, ErrDimensionMismatch)
	}
	qn := norm(query)
	if qn == 0 {
		return nil, nil
	}

	type scored struct {
		row   int
		score float64
	}
	candidates := make([]scored, 0, len(s.vectors))
	for row, vec := range s.vectors {
		vn := norm(vec)
		if vn == 0 {
			continue
		}
		score := dot(query, vec) / (qn * vn)
		if score < minSimilarity {
			continue
		}
		if filter != nil && !s.metadata[row].MatchesFilter(filter) {
			continue
		}
		candidates = append(candidates, scored{row: row, score: score})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, SearchResult{
			ID:       s.metadata[c.row].ID,
			Metadata: s.metadata[c.row],
			Score:    c.score,
		})
	}
	return out, nil
}

// GetByID returns the vector and metadata for id, or ok=false when unknown.
func (s *Store) GetByID(id string) ([]float32, Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.index[id]
	if !ok {
		return nil, Metadata{}, false
	}
	vec := make([]float32, len(s.vectors[row]))
	copy(vec, s.vectors[row])
	return vec, s.metadata[row], true
}

// Delete removes the vector and metadata for id and rebuilds the id to row
// index, since every row behind the deleted one shifts. Returns false when
// the id is unknown.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.index[id]
	if !ok {
		return false
	}
	s.vectors = append(s.vectors[:row], s.vectors[row+1:]...)
	s.metadata = append(s.metadata[:row], s.metadata[row+1:]...)
	s.index = make(map[string]int, len(s.metadata))
	for i, meta := range s.metadata {
		s.index[meta.ID] = i
	}
	if len(s.metadata) == 0 {
		s.dimension = 0
	}
	return true
}

// UpdateMetadata replaces the metadata for id while preserving the immutable
// id and added_at fields. Returns false when the id is unknown.
func (s *Store) UpdateMetadata(id string, meta Metadata) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.index[id]
	if !ok {
		return false
	}
	meta.ID = id
	meta.AddedAt = s.metadata[row].AddedAt
	meta.UpdatedAt = s.now()
	s.metadata[row] = meta
	return true
}

// All returns a snapshot of every metadata record in insertion order.
func (s *Store) All() []Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Metadata, len(s.metadata))
	copy(out, s.metadata)
	return out
}

// Len reports the number of stored vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metadata)
}

// Dimension reports the established vector width, 0 when the store is empty.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Clear drops all in-memory data. The on-disk artifacts are untouched until
// the next Save.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.metadata = nil
	s.index = map[string]int{}
	s.dimension = 0
}

// Stats reports store counters and which artifacts exist on disk.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(s.dir, name))
		return err == nil
	}
	return Stats{
		NumVectors: len(s.metadata),
		Dimension:  s.dimension,
		StorageDir: s.dir,
		FilesExist: map[string]bool{
			"vectors":  exists(vectorsFile),
			"metadata": exists(metadataFile),
			"index":    exists(indexFile),
		},
	}
}

// Save writes the three artifacts. Writes are not transactional across the
// files; Load validates their counts against each other instead.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := writeJSON(filepath.Join(s.dir, vectorsFile), s.vectors); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	if err := writeJSON(filepath.Join(s.dir, metadataFile), s.metadata); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	if err := writeJSON(filepath.Join(s.dir, indexFile), s.index); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

// Reload re-reads the artifacts from disk, replacing in-memory state.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.metadata = nil
	s.index = map[string]int{}
	s.dimension = 0
	s.load()
}

// load restores whatever subset of artifacts exists. A missing file is a
// fresh/partial store, not an error. When the three structures disagree on
// length the store is treated as corrupt: it starts empty and the caller is
// expected to re-ingest.
func (s *Store) load() {
	if err := readJSON(filepath.Join(s.dir, vectorsFile), &s.vectors); err != nil {
		s.logger.Printf("load vectors: %v", err)
	}
	if err := readJSON(filepath.Join(s.dir, metadataFile), &s.metadata); err != nil {
		s.logger.Printf("load metadata: %v", err)
	}
	if err := readJSON(filepath.Join(s.dir, indexFile), &s.index); err != nil {
		s.logger.Printf("load index: %v", err)
	}
	if s.index == nil {
		s.index = map[string]int{}
	}

	if len(s.vectors) != len(s.metadata) || len(s.metadata) != len(s.index) {
		s.logger.Printf("artifact mismatch in %s: %d vectors, %d metadata, %d index entries; starting empty, re-ingest required",
			s.dir, len(s.vectors), len(s.metadata), len(s.index))
		s.vectors = nil
		s.metadata = nil
		s.index = map[string]int{}
		s.dimension = 0
		return
	}
	if len(s.vectors) > 0 {
		s.dimension = len(s.vectors[0])
	}
}

func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// readJSON leaves dst untouched when the file does not exist.
func readJSON(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, dst)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
