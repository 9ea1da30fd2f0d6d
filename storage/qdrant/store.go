package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/poiesic/chronicle/core"
	"github.com/poiesic/chronicle/storage"
)

const (
	// DefaultTimeout bounds a single REST call.
	DefaultTimeout = 30 * time.Second
	distanceCosine = "Cosine"
)

// Config identifies the Qdrant collection to use.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Store implements storage.PointStore against the Qdrant REST API.
type Store struct {
	client     *resty.Client
	collection string
	logger     *slog.Logger
}

var _ storage.PointStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store for cfg.Collection at cfg.URL.
func New(cfg Config, opts ...Option) (*Store, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("qdrant: url is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}

	s := &Store{
		client:     client,
		collection: cfg.Collection,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "qdrant", "collection", cfg.Collection)
	return s, nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.GetClient().CloseIdleConnections()
	return nil
}

// EnsureCollection creates the collection with cosine distance if it is
// missing, and checks the vector size of an existing one.
func (s *Store) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", storage.ErrInvalidQuery, dimensions)
	}

	var info response[collectionInfo]
	resp, err := s.request(ctx).SetResult(&info).Get(s.path(""))
	if err != nil {
		return fmt.Errorf("get collection: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		s.logger.Info("creating collection", "dimensions", dimensions, "distance", distanceCosine)
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimensions,
				"distance": distanceCosine,
			},
		}
		return s.do(ctx, http.MethodPut, s.path(""), body, nil)
	case resp.IsError():
		return apiError(resp)
	}

	if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != dimensions {
		return fmt.Errorf("%w: collection has %d, requested %d", storage.ErrDimensionMismatch, size, dimensions)
	}
	return nil
}

// CreateIndex creates a keyword payload index on field.
func (s *Store) CreateIndex(ctx context.Context, field string) error {
	body := map[string]any{
		"field_name":   field,
		"field_schema": "keyword",
	}
	err := s.do(ctx, http.MethodPut, s.path("/index?wait=true"), body, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "already exists") {
		return storage.ErrIndexExists
	}
	return err
}

// Upsert writes points with their payloads.
func (s *Store) Upsert(ctx context.Context, points []core.Point) error {
	if len(points) == 0 {
		return nil
	}
	wire := make([]pointStruct, len(points))
	for i := range points {
		wire[i] = pointStruct{
			ID:      points[i].ID,
			Vector:  points[i].Vector,
			Payload: points[i].Payload(),
		}
	}
	return s.do(ctx, http.MethodPut, s.path("/points?wait=true"), map[string]any{"points": wire}, nil)
}

// Scroll returns one page of points, payload only.
func (s *Store) Scroll(ctx context.Context, req storage.ScrollRequest) (*storage.ScrollPage, error) {
	if req.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	body := map[string]any{
		"limit":        req.Limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if f := buildFilter(req.Filter); f != nil {
		body["filter"] = f
	}
	if req.Cursor != "" {
		body["offset"] = offsetValue(req.Cursor)
	}

	var out response[scrollResult]
	if err := s.do(ctx, http.MethodPost, s.path("/points/scroll"), body, &out); err != nil {
		return nil, err
	}

	page := &storage.ScrollPage{Points: make([]core.Point, 0, len(out.Result.Points))}
	for _, rec := range out.Result.Points {
		id := formatOffset(rec.ID)
		p, err := core.PointFromPayload(id, rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", id, err)
		}
		page.Points = append(page.Points, p)
	}
	page.Next = formatOffset(out.Result.NextPageOffset)
	return page, nil
}

// Delete removes points by id.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.do(ctx, http.MethodPost, s.path("/points/delete?wait=true"), map[string]any{"points": ids}, nil)
}

// Count returns the exact number of points matching filter.
func (s *Store) Count(ctx context.Context, filter storage.Filter) (int, error) {
	body := map[string]any{"exact": true}
	if f := buildFilter(filter); f != nil {
		body["filter"] = f
	}
	var out response[countResult]
	if err := s.do(ctx, http.MethodPost, s.path("/points/count"), body, &out); err != nil {
		return 0, err
	}
	return out.Result.Count, nil
}

func (s *Store) path(suffix string) string {
	return "/collections/" + url.PathEscape(s.collection) + suffix
}

func (s *Store) request(ctx context.Context) *resty.Request {
	return s.client.R().SetContext(ctx).SetError(&errorBody{})
}

// do performs a request and maps non-2xx responses to *APIError.
func (s *Store) do(ctx context.Context, method, path string, body, result any) error {
	req := s.request(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return apiError(resp)
	}
	s.logger.Debug("qdrant request completed", "method", method, "path", path, "status", resp.StatusCode())
	return nil
}

func buildFilter(f storage.Filter) map[string]any {
	must := make([]any, 0, 2)
	if f.SourceName != "" {
		must = append(must, matchKeyword(core.FieldSourceName, f.SourceName))
	}
	if f.SequenceKey != "" {
		must = append(must, matchKeyword(core.FieldSequenceKey, f.SequenceKey))
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func matchKeyword(key, value string) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

// formatOffset renders a next-page offset, which is a UUID string or an
// unsigned integer id, as a cursor. Integer ids keep their exact digits.
func formatOffset(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// offsetValue turns a cursor back into the JSON type Qdrant issued it as.
// UUID ids never parse as unsigned integers.
func offsetValue(cursor string) any {
	if _, err := strconv.ParseUint(cursor, 10, 64); err == nil {
		return json.Number(cursor)
	}
	return cursor
}
