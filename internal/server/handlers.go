package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/ruhapp/ruh/config"
	"github.com/ruhapp/ruh/engine"
	"github.com/ruhapp/ruh/models"
)

const defaultMaxResults = 5

// Handler exposes the retrieval engine over HTTP. It is a thin consumer of
// the core: validation and shaping only, no retrieval logic.
type Handler struct {
	engine *engine.Engine
	cfg    *config.Config
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/verses/search", h.searchVerses)
	g.POST("/chapters/search", h.searchChapters)
	g.POST("/search/compare", h.compareSearch)
	g.POST("/wellness/categories", h.detectCategories)
	g.GET("/wellness/categories/:id/passages", h.categoryPassages)
	g.GET("/chapters/:id/summary", h.chapterSummary)
	g.GET("/stats", h.stats)
}

type verseSearchRequest struct {
	Theme         string   `json:"theme"`
	MaxResults    int      `json:"max_results,omitempty"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
}

func (r *verseSearchRequest) validate(cfg *config.Config) (int, float64, error) {
	maxResults := r.MaxResults
	if maxResults == 0 {
		maxResults = defaultMaxResults
	}
	if maxResults < 0 {
		return 0, 0, errors.New("max_results must be > 0")
	}
	minSim := cfg.Retrieval.MinSimilarity
	if r.MinSimilarity != nil {
		minSim = *r.MinSimilarity
		if minSim < 0 || minSim > 1 {
			return 0, 0, errors.New("min_similarity must be in [0, 1]")
		}
	}
	return maxResults, minSim, nil
}

func (h *Handler) searchVerses(c echo.Context) error {
	var req verseSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	maxResults, minSim, err := req.validate(h.cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	results := h.engine.Retriever.SearchByTheme(c.Request().Context(), req.Theme, maxResults, minSim)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"theme":   req.Theme,
		"results": results,
		"count":   len(results),
	})
}

type chapterSearchRequest struct {
	Theme      string `json:"theme"`
	MaxResults int    `json:"max_results,omitempty"`
	SortBy     string `json:"sort_by,omitempty"`
}

func (h *Handler) searchChapters(c echo.Context) error {
	var req chapterSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MaxResults == 0 {
		req.MaxResults = defaultMaxResults
	}
	if req.MaxResults < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "max_results must be > 0")
	}
	sortBy := models.SortByRelevance
	switch req.SortBy {
	case "", string(models.SortByRelevance):
	case string(models.SortByID):
		sortBy = models.SortByID
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "sort_by must be \"relevance\" or \"id\"")
	}
	results := h.engine.Aggregator.SearchChaptersByTheme(c.Request().Context(), req.Theme, req.MaxResults, sortBy)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"theme":   req.Theme,
		"results": results,
		"count":   len(results),
	})
}

func (h *Handler) compareSearch(c echo.Context) error {
	var req verseSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	maxResults, _, err := req.validate(h.cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.engine.CompareSearch(c.Request().Context(), req.Theme, maxResults))
}

type detectRequest struct {
	Text string `json:"text"`
}

func (h *Handler) detectCategories(c echo.Context) error {
	var req detectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	matches := h.engine.Wellness.DetectCategories(req.Text)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
}

func (h *Handler) categoryPassages(c echo.Context) error {
	maxResults := defaultMaxResults
	if raw := c.QueryParam("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "max_results must be a positive integer")
		}
		maxResults = n
	}
	passages, err := h.engine.Wellness.CategoryPassages(c.Request().Context(), c.Param("id"), maxResults)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"category": c.Param("id"),
		"passages": passages,
		"count":    len(passages),
	})
}

func (h *Handler) chapterSummary(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "chapter id must be an integer")
	}
	text, err := h.engine.Summaries.ChapterSummary(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrChapterNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "chapter not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"chapter_id": id,
		"summary":    text,
	})
}

func (h *Handler) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Stats())
}
