package pdftext

import (
	"bytes"
	"strings"
	"testing"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestExtractRejectsOversizedUpload(t *testing.T) {
	e := NewExtractor(config.PDFConfig{MaxBytes: 16, MaxPages: 1, MaxChars: 10})
	payload := append([]byte("%PDF-1.4"), bytes.Repeat([]byte("x"), 20)...)

	_, err := e.Extract(bytes.NewReader(payload), "big.pdf")
	assert.True(t, apperr.Is(err, apperr.PayloadTooLarge))
}

func TestExtractRejectsNonPDF(t *testing.T) {
	e := NewExtractor(config.PDFConfig{MaxBytes: 1 << 20, MaxPages: 1, MaxChars: 10})

	_, err := e.Extract(strings.NewReader("GIF89a not a pdf"), "image.pdf")
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestExtractCorruptPDF(t *testing.T) {
	e := NewExtractor(config.PDFConfig{MaxBytes: 1 << 20, MaxPages: 1, MaxChars: 10})

	_, err := e.Extract(strings.NewReader("%PDF-1.7\ngarbage without xref"), "broken.pdf")
	assert.True(t, apperr.Is(err, apperr.Internal))
	assert.Equal(t, "PDF extraction failed", apperr.Public(err))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "", Truncate("abc", 0))
}
