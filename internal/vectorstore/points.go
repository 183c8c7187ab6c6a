package vectorstore

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/darkangelpraha/dropindex/pkg/types"
)

// PayloadIndexes are the fields indexed for filtering
var PayloadIndexes = []struct {
	Field  string
	Schema string
}{
	{"path", "keyword"},
	{"name", "keyword"},
	{"source", "keyword"},
	{"mtime", "integer"},
	{"chunk_index", "integer"},
}

// PointID derives the stable point id of a file's chunk. The md5 of
// "path::index" is read as a UUID, so re-indexing a file overwrites its
// points in place.
func PointID(path string, chunkIndex int) string {
	sum := md5.Sum([]byte(path + "::" + strconv.Itoa(chunkIndex)))
	id, _ := uuid.FromBytes(sum[:])
	return id.String()
}

// VectorSize returns the dimension of the collection. exists is false when
// the collection has not been created.
func (c *Client) VectorSize(ctx context.Context) (size int, exists bool, err error) {
	const op = "collection_info"
	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err = c.call(ctx, op, http.MethodGet, c.collectionPath(""), nil, &result)
	if statusCode(err) == http.StatusNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return result.Config.Params.Vectors.Size, true, nil
}

// EnsureCollection creates the collection with cosine distance when it is
// missing. An existing collection with another dimension is an error.
func (c *Client) EnsureCollection(ctx context.Context, vectorSize int) error {
	const op = "ensure_collection"
	if vectorSize <= 0 {
		return opErr(op, OperationErrorValidation, "vector size must be positive", nil)
	}

	size, exists, err := c.VectorSize(ctx)
	if err != nil {
		return err
	}
	if exists {
		if size != 0 && size != vectorSize {
			return &OperationError{
				Code:      OperationErrorValidation,
				Operation: op,
				Message: fmt.Sprintf("collection %q exists with size %d, expected %d; choose a new collection name",
					c.collection, size, vectorSize),
				Cause: ErrVectorSizeMismatch,
			}
		}
		return nil
	}

	req := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	if err := c.call(ctx, op, http.MethodPut, c.collectionPath(""), req, nil); err != nil {
		return err
	}
	c.log.Info("created collection", "collection", c.collection, "vector_size", vectorSize)
	return nil
}

// CreatePayloadIndex indexes a payload field. An index that already exists
// is not an error.
func (c *Client) CreatePayloadIndex(ctx context.Context, field, schema string) error {
	const op = "create_payload_index"
	req := map[string]any{"field_name": field, "field_schema": schema}
	err := c.call(ctx, op, http.MethodPut, c.collectionPath("/index?wait=true"), req, nil)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return nil
	}
	return err
}

// CreatePayloadIndexes creates every index in PayloadIndexes. Failures are
// logged and joined; indexing works without them.
func (c *Client) CreatePayloadIndexes(ctx context.Context) error {
	var errs []error
	for _, idx := range PayloadIndexes {
		if err := c.CreatePayloadIndex(ctx, idx.Field, idx.Schema); err != nil {
			c.log.Warn("payload index failed", "field", idx.Field, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type point struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload types.Payload `json:"payload"`
}

// Upsert writes points and waits until they are persisted
func (c *Client) Upsert(ctx context.Context, points []types.VectorPoint) error {
	const op = "upsert"
	if len(points) == 0 {
		return nil
	}

	body := make([]point, 0, len(points))
	for i := range points {
		p := &points[i]
		if err := p.Validate(); err != nil {
			return opErr(op, OperationErrorValidation, fmt.Sprintf("point %q: %v", p.ID, err), err)
		}
		body = append(body, point{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
	}

	return c.call(ctx, op, http.MethodPut, c.collectionPath("/points?wait=true"), map[string]any{"points": body}, nil)
}

// DeleteByPath removes the points of path whose chunk_index >= minChunk.
// minChunk 0 removes every point of the path.
func (c *Client) DeleteByPath(ctx context.Context, path string, minChunk int) error {
	const op = "delete"
	if path == "" {
		return opErr(op, OperationErrorValidation, "path is required", nil)
	}

	must := []any{
		map[string]any{"key": "path", "match": map[string]any{"value": path}},
	}
	if minChunk > 0 {
		must = append(must, map[string]any{"key": "chunk_index", "range": map[string]any{"gte": minChunk}})
	}
	req := map[string]any{"filter": map[string]any{"must": must}}

	return c.call(ctx, op, http.MethodPost, c.collectionPath("/points/delete?wait=true"), req, nil)
}

type searchHit struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload types.Payload   `json:"payload"`
}

// Search returns the nearest neighbours of vector, best first
func (c *Client) Search(ctx context.Context, vector []float32, limit int) ([]types.SearchResult, error) {
	const op = "search"
	if len(vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if limit <= 0 {
		limit = 10
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	var hits []searchHit
	if err := c.call(ctx, op, http.MethodPost, c.collectionPath("/points/search"), req, &hits); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, types.SearchResult{
			PointID:    decodePointID(h.ID),
			Path:       h.Payload.Path,
			ChunkIndex: h.Payload.ChunkIndex,
			ChunkTotal: h.Payload.ChunkTotal,
			Rank:       len(results) + 1,
			Score:      h.Score,
			Source:     "vector",
			Origin:     h.Payload.Source,
			Preview:    h.Payload.Preview,
		})
	}
	return results, nil
}

func decodePointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return strings.TrimSpace(string(raw))
}
