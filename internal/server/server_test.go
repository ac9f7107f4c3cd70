package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/ruhapp/ruh/config"
	"github.com/ruhapp/ruh/engine"
	"github.com/ruhapp/ruh/internal/vectorstore"
	"github.com/ruhapp/ruh/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:  config.ServerConfig{Address: ":0"},
		Storage: config.StorageConfig{Dir: t.TempDir()},
		// No API key: the embedding path fails fast on first use and
		// retrieval serves from the substring fallback. No network.
		Embedding: config.EmbeddingConfig{Model: "test-model", Timeout: time.Second},
		Retrieval: config.RetrievalConfig{
			MinSimilarity:      0.1,
			OverfetchFactor:    8,
			OverfetchCap:       100,
			KeywordBoost:       0.1,
			WeightAvgSim:       0.4,
			WeightMaxSim:       0.3,
			WeightDensity:      0.15,
			WeightContextual:   0.10,
			WeightDiversity:    0.05,
			FallbackScore:      0.5,
			PassagesPerChapter: 3,
		},
		Summary: config.SummaryConfig{Enabled: false, TTL: time.Hour},
	}
}

func testServer(t *testing.T) *echo.Echo {
	t.Helper()
	cfg := testConfig(t)
	eng, err := engine.New(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	_, err = eng.Store.Add(
		[][]float32{{1, 0}, {0, 1}},
		[]vectorstore.Metadata{
			{ID: "1:1", ChapterID: 1, ChapterName: "The Opening", Text: "ar-rahman", Translation: "the most merciful, full of mercy"},
			{ID: "2:1", ChapterID: 2, ChapterName: "The Cow", Text: "ash-shams", Translation: "the sun rises in the east"},
		},
		[]string{"1:1", "2:1"},
	)
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	eng.Catalog.Replace([]models.Chapter{
		{ID: 1, Name: "The Opening", OriginPlace: "Mecca", PassageCount: 7},
		{ID: 2, Name: "The Cow", OriginPlace: "Medina", PassageCount: 286, Summary: "the longest chapter"},
	})
	return New(eng, cfg)
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestHealthz(t *testing.T) {
	e := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestSearchVerses(t *testing.T) {
	e := testServer(t)
	rec, body := doJSON(t, e, http.MethodPost, "/api/verses/search", `{"theme": "mercy"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["count"].(float64) != 1 {
		t.Fatalf("count = %v, want 1", body["count"])
	}
	results := body["results"].([]interface{})
	first := results[0].(map[string]interface{})
	passage := first["passage"].(map[string]interface{})
	if passage["id"] != "1:1" {
		t.Fatalf("wrong passage: %v", passage)
	}
}

func TestSearchVersesValidation(t *testing.T) {
	e := testServer(t)
	rec, body := doJSON(t, e, http.MethodPost, "/api/verses/search", `{"theme": "mercy", "min_similarity": 1.5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body["error"] == nil {
		t.Fatalf("error body missing: %v", body)
	}

	rec, _ = doJSON(t, e, http.MethodPost, "/api/verses/search", `{"theme": "mercy", "max_results": -1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSearchChaptersFallback(t *testing.T) {
	e := testServer(t)
	// Semantic search is unavailable, so chapter search degrades to the
	// attribute match against the catalog.
	rec, body := doJSON(t, e, http.MethodPost, "/api/chapters/search", `{"theme": "cow"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["count"].(float64) != 1 {
		t.Fatalf("count = %v, want 1", body["count"])
	}
	results := body["results"].([]interface{})
	first := results[0].(map[string]interface{})
	if first["score"].(float64) != 0.5 {
		t.Fatalf("fallback score = %v, want 0.5", first["score"])
	}
}

func TestSearchChaptersSortByValidation(t *testing.T) {
	e := testServer(t)
	rec, _ := doJSON(t, e, http.MethodPost, "/api/chapters/search", `{"theme": "mercy", "sort_by": "alphabetical"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDetectCategories(t *testing.T) {
	e := testServer(t)
	rec, body := doJSON(t, e, http.MethodPost, "/api/wellness/categories", `{"text": "I feel so anxious and stressed about my exam"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	matches := body["matches"].([]interface{})
	if len(matches) == 0 {
		t.Fatal("no categories detected")
	}
	found := false
	for _, m := range matches {
		cat := m.(map[string]interface{})["category"].(map[string]interface{})
		if cat["id"] == "anxiety_stress" {
			found = true
		}
	}
	if !found {
		t.Fatalf("anxiety_stress missing: %v", matches)
	}
}

func TestCategoryPassagesUnknown(t *testing.T) {
	e := testServer(t)
	rec, _ := doJSON(t, e, http.MethodGet, "/api/wellness/categories/nope/passages", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestChapterSummary(t *testing.T) {
	e := testServer(t)
	rec, body := doJSON(t, e, http.MethodGet, "/api/chapters/2/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["summary"] != "the longest chapter" {
		t.Fatalf("summary = %v", body["summary"])
	}

	// No generator configured: the templated fallback still serves.
	rec, body = doJSON(t, e, http.MethodGet, "/api/chapters/1/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["summary"] != "The Opening is a chapter of 7 passages revealed in Mecca." {
		t.Fatalf("fallback summary = %v", body["summary"])
	}

	rec, _ = doJSON(t, e, http.MethodGet, "/api/chapters/999/summary", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	rec, _ = doJSON(t, e, http.MethodGet, "/api/chapters/abc/summary", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCompareSearch(t *testing.T) {
	e := testServer(t)
	rec, body := doJSON(t, e, http.MethodPost, "/api/search/compare", `{"theme": "mercy"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	semantic := body["semantic"].(map[string]interface{})
	if semantic["degraded"] != true {
		t.Fatalf("semantic side should be degraded without a model: %v", semantic)
	}
	if _, ok := body["keyword"]; !ok {
		t.Fatalf("keyword side missing: %v", body)
	}
}

func TestStats(t *testing.T) {
	e := testServer(t)
	rec, body := doJSON(t, e, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["chapters"].(float64) != 2 {
		t.Fatalf("chapters = %v, want 2", body["chapters"])
	}
}
