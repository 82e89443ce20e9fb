package vector

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Hit is one nearest-neighbour match.
type Hit struct {
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata"`
	Distance float64        `json:"distance"`
}

type collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type queryRequest struct {
	QueryTexts []string `json:"query_texts"`
	NResults   int      `json:"n_results"`
	Include    []string `json:"include"`
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Client talks to a Chroma server over its REST API.
type Client struct {
	http        *resty.Client
	ids         *cache.Cache
	collections []string
	log         *zap.Logger
}

func NewClient(cfg config.VectorConfig, log *zap.Logger) *Client {
	c := &Client{
		ids:         cache.New(10*time.Minute, 20*time.Minute),
		collections: cfg.Collections,
		log:         log,
	}
	if cfg.URL != "" {
		c.http = resty.New().
			SetBaseURL(cfg.URL).
			SetTimeout(cfg.TimeoutDuration()).
			SetHeader("Accept", "application/json")
	}
	return c
}

// Configured reports whether a server URL was given.
func (c *Client) Configured() bool {
	return c != nil && c.http != nil
}

// Allowed reports whether name is a searchable collection.
func (c *Client) Allowed(name string) bool {
	return slices.Contains(c.collections, name)
}

func (c *Client) Collections() []string {
	return c.collections
}

// Search returns the n nearest documents to text.
func (c *Client) Search(ctx context.Context, name, text string, n int) ([]Hit, error) {
	if !c.Configured() {
		return nil, apperr.New(apperr.Unavailable, "Search service not available")
	}
	if !c.Allowed(name) {
		return nil, apperr.Invalid("Invalid collection. Use: %v", c.collections)
	}

	id, err := c.collectionID(ctx, name)
	if err != nil {
		return nil, err
	}

	var out queryResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(queryRequest{
			QueryTexts: []string{text},
			NResults:   n,
			Include:    []string{"documents", "metadatas", "distances"},
		}).
		SetResult(&out).
		Post("/api/v1/collections/" + id + "/query")
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "Search service not available", err)
	}
	if resp.IsError() {
		return nil, apperr.Wrap(apperr.Internal, "Search failed", fmt.Errorf("query %s: %s", name, resp.Status()))
	}
	return flatten(&out), nil
}

func flatten(out *queryResponse) []Hit {
	hits := []Hit{}
	if len(out.Documents) == 0 {
		return hits
	}
	for i, doc := range out.Documents[0] {
		hit := Hit{Document: doc, Metadata: map[string]any{}}
		if len(out.Metadatas) > 0 && i < len(out.Metadatas[0]) && out.Metadatas[0][i] != nil {
			hit.Metadata = out.Metadatas[0][i]
		}
		if len(out.Distances) > 0 && i < len(out.Distances[0]) {
			hit.Distance = out.Distances[0][i]
		}
		hits = append(hits, hit)
	}
	return hits
}

func (c *Client) collectionID(ctx context.Context, name string) (string, error) {
	if id, ok := c.ids.Get(name); ok {
		return id.(string), nil
	}
	var col collection
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&col).
		Get("/api/v1/collections/" + name)
	if err != nil {
		return "", apperr.Wrap(apperr.Unavailable, "Search service not available", err)
	}
	if resp.IsError() || col.ID == "" {
		return "", apperr.Wrap(apperr.Internal, "Search failed", fmt.Errorf("get collection %s: %s", name, resp.Status()))
	}
	c.ids.SetDefault(name, col.ID)
	return col.ID, nil
}

// Count sums entries across every collection on the server. Any failure
// yields zero.
func (c *Client) Count(ctx context.Context) int64 {
	if !c.Configured() {
		return 0
	}
	var cols []collection
	resp, err := c.http.R().SetContext(ctx).SetResult(&cols).Get("/api/v1/collections")
	if err != nil || resp.StatusCode() != http.StatusOK {
		c.log.Debug("vector count unavailable", zap.Error(err))
		return 0
	}

	var total int64
	for _, col := range cols {
		var n int64
		resp, err := c.http.R().SetContext(ctx).SetResult(&n).Get("/api/v1/collections/" + col.ID + "/count")
		if err != nil || resp.IsError() {
			c.log.Debug("vector count unavailable", zap.String("collection", col.Name), zap.Error(err))
			return 0
		}
		total += n
	}
	return total
}
