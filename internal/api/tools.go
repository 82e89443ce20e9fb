package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/markets"
	"github.com/joenofro/revenue-api/internal/monitor"
	"github.com/joenofro/revenue-api/internal/payments"

	"github.com/gin-gonic/gin"
)

// multipartSlack covers form boundaries and part headers around the file.
const multipartSlack = 1 << 20

func (s *Server) PDFExtractHandler(c *gin.Context) {
	// Bound the body before the multipart parser spools it to disk.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.pdf.MaxBytes()+multipartSlack)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(c, s.pdf.TooLarge())
			return
		}
		s.respondError(c, apperr.Wrap(apperr.InvalidInput, "A PDF file is required in the 'file' field", err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.respondError(c, apperr.Wrap(apperr.InvalidInput, "Failed to read upload", err))
		return
	}
	defer f.Close()

	doc, err := s.pdf.Extract(f, fh.Filename)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) PriceMonitorHandler(c *gin.Context) {
	var req monitor.Request
	if !s.bindJSON(c, &req) {
		return
	}
	created, err := s.monitor.Create(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) ListMarketsHandler(c *gin.Context) {
	limit, ok := queryInt(c, "limit", markets.DefaultLimit)
	if !ok {
		s.respondError(c, apperr.Invalid("limit must be an integer"))
		return
	}
	activeOnly := true
	if raw, ok := c.GetQuery("active_only"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.respondError(c, apperr.Invalid("active_only must be a boolean"))
			return
		}
		activeOnly = v
	}

	list, err := s.markets.List(c.Request.Context(), c.Query("category"), activeOnly, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var updated any
	if len(list) > 0 {
		updated = list[0].UpdatedAt
	}
	c.JSON(http.StatusOK, gin.H{
		"markets":      list,
		"count":        len(list),
		"timestamp":    s.now().UTC().Format(time.RFC3339),
		"data_updated": updated,
	})
}

func (s *Server) GetMarketHandler(c *gin.Context) {
	m, err := s.markets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"market": m})
}

func (s *Server) ProductsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.payments.Products())
}

func (s *Server) CreateIntentHandler(c *gin.Context) {
	var req payments.IntentRequest
	if !s.bindJSON(c, &req) {
		return
	}
	intent, err := s.payments.CreateIntent(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *Server) GetPaymentHandler(c *gin.Context) {
	p, err := s.payments.Get(c.Request.Context(), c.Param("intent_id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
