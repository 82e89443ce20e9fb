package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/config"

	"github.com/ledongthuc/pdf"
)

var magic = []byte("%PDF")

// Document is the text pulled from an uploaded PDF.
type Document struct {
	Filename string `json:"filename"`
	Pages    int    `json:"pages"`
	Text     string `json:"text"`
}

// Extractor bounds the work done on an upload by size, page count and
// output length.
type Extractor struct {
	maxBytes int64
	maxPages int
	maxChars int
}

func NewExtractor(cfg config.PDFConfig) *Extractor {
	return &Extractor{maxBytes: cfg.MaxBytes, maxPages: cfg.MaxPages, maxChars: cfg.MaxChars}
}

// MaxBytes is the largest accepted file.
func (e *Extractor) MaxBytes() int64 {
	return e.maxBytes
}

func (e *Extractor) TooLarge() error {
	return apperr.New(apperr.PayloadTooLarge, fmt.Sprintf("File too large (max %dMB)", e.maxBytes>>20))
}

// Extract reads at most maxBytes+1 from r and returns its text. The content
// type is judged by magic bytes, never by what the client claims.
func (e *Extractor) Extract(r io.Reader, filename string) (*Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "Failed to read upload", err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, e.TooLarge()
	}
	if !bytes.HasPrefix(data, magic) {
		return nil, apperr.New(apperr.InvalidInput, "File must be a valid PDF")
	}

	pages, text, err := e.text(data)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "PDF extraction failed", err)
	}
	return &Document{Filename: filename, Pages: pages, Text: Truncate(text, e.maxChars)}, nil
}

// text recovers from parser panics on malformed input.
func (e *Extractor) text(data []byte) (pages int, text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, "", fmt.Errorf("open pdf: %w", err)
	}

	pages = reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= pages && i <= e.maxPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return 0, "", fmt.Errorf("page %d: %w", i, err)
		}
		sb.WriteString(content)
		if sb.Len() > e.maxChars*4 {
			break
		}
	}
	return pages, sb.String(), nil
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
