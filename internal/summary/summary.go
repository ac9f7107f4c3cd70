package summary

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ruhapp/ruh/internal/catalog"
	"github.com/ruhapp/ruh/models"
)

// Generator is the opaque text-generation capability. Summary generation is
// a side effect of retrieval presentation, not part of scoring.
type Generator interface {
	GenerateText(ctx context.Context, systemPrompt, prompt string) (string, error)
}

const systemPrompt = "You write one-paragraph summaries of chapters of scripture. " +
	"Be concise, neutral and factual. Respond with the summary text only."

// Service produces chapter summaries lazily and caches them: the same
// chapter id always yields the same summary within a process lifetime. When
// redis is configured the cache additionally survives restarts.
type Service struct {
	catalog *catalog.Catalog
	gen     Generator
	rdb     *redis.Client
	ttl     time.Duration
	logger  *log.Logger

	mu    sync.Mutex
	cache map[int]string
}

func New(cat *catalog.Catalog, gen Generator, rdb *redis.Client, ttl time.Duration, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.Writer(), "[SUMMARY] ", log.LstdFlags)
	}
	return &Service{
		catalog: cat,
		gen:     gen,
		rdb:     rdb,
		ttl:     ttl,
		logger:  logger,
		cache:   map[int]string{},
	}
}

// ChapterSummary returns the summary for chapterID, generating and caching
// it on first access. A chapter that already carries a dataset summary keeps
// it; generation failure degrades to a templated fallback rather than an
// error.
func (s *Service) ChapterSummary(ctx context.Context, chapterID int) (string, error) {
	ch, ok := s.catalog.Get(chapterID)
	if !ok {
		return "", models.ErrChapterNotFound
	}
	if ch.Summary != "" {
		return ch.Summary, nil
	}

	s.mu.Lock()
	if cached, ok := s.cache[chapterID]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	if text, ok := s.fromRedis(ctx, chapterID); ok {
		s.remember(chapterID, text)
		return text, nil
	}

	text := s.generate(ctx, ch)

	// First writer wins so concurrent first-callers agree on one summary.
	s.mu.Lock()
	if prior, ok := s.cache[chapterID]; ok {
		text = prior
	} else {
		s.cache[chapterID] = text
	}
	s.mu.Unlock()

	s.toRedis(ctx, chapterID, text)
	s.catalog.SetSummary(chapterID, text)
	return text, nil
}

func (s *Service) generate(ctx context.Context, ch models.Chapter) string {
	fallback := fmt.Sprintf("%s is a chapter of %d passages revealed in %s.", ch.Name, ch.PassageCount, ch.OriginPlace)
	if s.gen == nil {
		return fallback
	}
	prompt := fmt.Sprintf("Summarize the chapter %q (%d passages, origin: %s).", ch.Name, ch.PassageCount, ch.OriginPlace)
	if ch.Themes != "" {
		prompt += fmt.Sprintf(" Known themes: %s.", ch.Themes)
	}
	text, err := s.gen.GenerateText(ctx, systemPrompt, prompt)
	if err != nil || text == "" {
		s.logger.Printf("summary generation for chapter %d failed, using fallback: %v", ch.ID, err)
		return fallback
	}
	return text
}

func (s *Service) remember(chapterID int, text string) {
	s.mu.Lock()
	if _, ok := s.cache[chapterID]; !ok {
		s.cache[chapterID] = text
	}
	s.mu.Unlock()
}

func redisKey(chapterID int) string {
	return fmt.Sprintf("ruh:summary:%d", chapterID)
}

func (s *Service) fromRedis(ctx context.Context, chapterID int) (string, bool) {
	if s.rdb == nil {
		return "", false
	}
	text, err := s.rdb.Get(ctx, redisKey(chapterID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Printf("summary cache read failed: %v", err)
		}
		return "", false
	}
	return text, text != ""
}

func (s *Service) toRedis(ctx context.Context, chapterID int, text string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, redisKey(chapterID), text, s.ttl).Err(); err != nil {
		s.logger.Printf("summary cache write failed: %v", err)
	}
}
