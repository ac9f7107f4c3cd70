package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/ruhapp/ruh/models"
)

// Catalog is the in-memory registry of chapter reference data. Chapters are
// static after ingest; the only mutation is attaching a lazily generated
// summary.
type Catalog struct {
	mu       sync.RWMutex
	chapters map[int]models.Chapter
	path     string
}

// New creates a catalog backed by the given file, loading it when it exists.
func New(path string) (*Catalog, error) {
	c := &Catalog{chapters: map[int]models.Chapter{}, path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var list []models.Chapter
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for _, ch := range list {
		c.chapters[ch.ID] = ch
	}
	return c, nil
}

// Replace swaps in a full chapter set, as done during re-ingest.
func (c *Catalog) Replace(chapters []models.Chapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chapters = make(map[int]models.Chapter, len(chapters))
	for _, ch := range chapters {
		c.chapters[ch.ID] = ch
	}
}

// Get returns the chapter for id.
func (c *Catalog) Get(id int) (models.Chapter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.chapters[id]
	return ch, ok
}

// All returns every chapter ordered by id.
func (c *Catalog) All() []models.Chapter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Chapter, 0, len(c.chapters))
	for _, ch := range c.chapters {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetSummary attaches a generated summary to a chapter.
func (c *Catalog) SetSummary(id int, summary string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chapters[id]
	if !ok {
		return false
	}
	ch.Summary = summary
	c.chapters[id] = ch
	return true
}

// Len reports the number of chapters.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chapters)
}

// Save persists the chapter set next to the vector store artifacts.
func (c *Catalog) Save() error {
	c.mu.RLock()
	list := make([]models.Chapter, 0, len(c.chapters))
	for _, ch := range c.chapters {
		list = append(list, ch)
	}
	c.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}
