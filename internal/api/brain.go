package api

import (
	"net/http"
	"strconv"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/auth"
	"github.com/joenofro/revenue-api/internal/brain"

	"github.com/gin-gonic/gin"
)

type searchRequest struct {
	Query      string `json:"query" binding:"required,min=1,max=500"`
	Collection string `json:"collection"`
	Limit      int    `json:"limit" binding:"omitempty,min=1,max=20"`
}

func (s *Server) BrainStatusHandler(c *gin.Context) {
	var tier string
	if info := auth.KeyInfoFrom(c); info != nil {
		tier = info.Tier
	}
	st, err := s.brain.Status(c.Request.Context(), tier)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) BrainGoalsHandler(c *gin.Context) {
	goals, err := s.brain.Goals(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

func (s *Server) BrainLearningsHandler(c *gin.Context) {
	limit, ok := queryInt(c, "limit", brain.DefaultLearningLimit)
	if !ok {
		s.respondError(c, apperr.Invalid("limit must be an integer"))
		return
	}
	learnings, err := s.brain.Learnings(c.Request.Context(), c.Query("category"), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"learnings": learnings, "count": len(learnings)})
}

func (s *Server) BrainQueryHandler(c *gin.Context) {
	var req brain.QueryRequest
	if !s.bindJSON(c, &req) {
		return
	}
	res, err := s.brain.Query(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) SearchHandler(c *gin.Context) {
	var req searchRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.Collection == "" {
		req.Collection = "aidan_memory"
	}
	if req.Limit == 0 {
		req.Limit = 5
	}
	hits, err := s.vectors.Search(c.Request.Context(), req.Collection, req.Query, req.Limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"collection": req.Collection,
		"query":      req.Query,
		"count":      len(hits),
		"results":    hits,
	})
}

// queryInt reads an integer query parameter, falling back to def when absent.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}
