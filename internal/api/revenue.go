package api

import (
	"net/http"
	"strconv"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/revenue"

	"github.com/gin-gonic/gin"
)

func streamID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apperr.Invalid("Invalid stream id")
	}
	return uint(id), nil
}

func (s *Server) CreateStreamHandler(c *gin.Context) {
	var in revenue.StreamInput
	if !s.bindJSON(c, &in) {
		return
	}
	id, err := s.revenue.CreateStream(c.Request.Context(), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stream_id": id, "message": "Revenue stream created successfully"})
}

func (s *Server) ListStreamsHandler(c *gin.Context) {
	streams, err := s.revenue.ListStreams(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, streams)
}

func (s *Server) GetStreamHandler(c *gin.Context) {
	id, err := streamID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	stream, err := s.revenue.GetStream(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stream)
}

func (s *Server) UpdateStreamHandler(c *gin.Context) {
	id, err := streamID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var patch revenue.StreamPatch
	if !s.bindJSON(c, &patch) {
		return
	}
	if err := s.revenue.UpdateStream(c.Request.Context(), id, patch); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Revenue stream updated successfully"})
}

func (s *Server) RevenueSummaryHandler(c *gin.Context) {
	summary, err := s.revenue.Summary(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) RevenueTransactionsHandler(c *gin.Context) {
	tx, err := s.revenue.Transactions(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (s *Server) RevenueDashboardHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.revenue.Dashboard(c.Request.Context()))
}
