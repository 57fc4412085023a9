package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/loci-offline-sync/internal/types"
)

var _ Client = (*HTTPClient)(nil)

// HTTPClientConfig configures the REST document store adapter.
type HTTPClientConfig struct {
	BaseURL string
	// AuthToken, when set, is sent as a bearer token on every request.
	AuthToken string
	// Timeout bounds a single HTTP round trip. Defaults to 15s.
	Timeout time.Duration
	// RequestsPerSecond throttles outgoing calls; 0 disables throttling.
	RequestsPerSecond float64
	// MaxRetries bounds transport-level retries on 5xx/429 responses.
	// The sync layer itself never retries; this is transport hygiene only.
	MaxRetries uint64
}

// HTTPClient talks to the document store over its REST surface:
//
//	GET {base}/v1/{collection}
//	GET {base}/v1/{collection}/{id}/{child}
//	PUT {base}/v1/{collection}/{id}
//	POST {base}/v1/{collection}/{id}/{child}/{childID}
//
// Collections serialize as [{"id": "...", "fields": {...}}]; field values are
// plain JSON and decoded into the Value union.
type HTTPClient struct {
	logger  *slog.Logger
	base    string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	retries uint64
}

// NewHTTPClient builds the REST adapter.
func NewHTTPClient(cfg HTTPClientConfig, logger *slog.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &HTTPClient{
		logger:  logger,
		base:    cfg.BaseURL,
		token:   cfg.AuthToken,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		retries: cfg.MaxRetries,
	}
}

type wireDocument struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

func (c *HTTPClient) FetchCollection(ctx context.Context, name string) ([]Document, error) {
	return c.fetch(ctx, path(name))
}

func (c *HTTPClient) FetchSubcollection(ctx context.Context, parentCollection, parentID, child string) ([]Document, error) {
	return c.fetch(ctx, path(parentCollection, parentID, child))
}

func (c *HTTPClient) CreateDocument(ctx context.Context, collection, id string, fields map[string]Value) error {
	return c.write(ctx, http.MethodPut, path(collection, id), fields)
}

func (c *HTTPClient) CreateSubdocument(ctx context.Context, parentCollection, parentID, child, id string, fields map[string]Value) error {
	return c.write(ctx, http.MethodPost, path(parentCollection, parentID, child, id), fields)
}

func (c *HTTPClient) fetch(ctx context.Context, p string) ([]Document, error) {
	ctx, span := otel.Tracer("RemoteHTTPClient").Start(ctx, "fetch")
	defer span.End()
	span.SetAttributes(attribute.String("remote.path", p))

	l := c.logger.With(slog.String("method", "fetch"), slog.String("path", p))

	var body []byte
	err := c.withRetry(ctx, func(ctx context.Context) error {
		b, err := c.do(ctx, http.MethodGet, p, nil)
		body = b
		return err
	})
	if err != nil {
		l.ErrorContext(ctx, "remote fetch failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote fetch failed")
		return nil, fmt.Errorf("fetching %s: %w", p, err)
	}

	var wire []wireDocument
	if err := json.Unmarshal(body, &wire); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed response body")
		return nil, fmt.Errorf("decoding %s response: %w", p, err)
	}

	docs := make([]Document, 0, len(wire))
	for _, w := range wire {
		doc := Document{ID: w.ID, Fields: make(map[string]Value, len(w.Fields))}
		for k, v := range w.Fields {
			doc.Fields[k] = FromAny(v)
		}
		docs = append(docs, doc)
	}

	l.InfoContext(ctx, "remote fetch completed", slog.Int("count", len(docs)))
	span.SetAttributes(attribute.Int("remote.documents", len(docs)))
	span.SetStatus(codes.Ok, "fetched")
	return docs, nil
}

func (c *HTTPClient) write(ctx context.Context, method, p string, fields map[string]Value) error {
	ctx, span := otel.Tracer("RemoteHTTPClient").Start(ctx, "write")
	defer span.End()
	span.SetAttributes(attribute.String("remote.path", p))

	payload, err := json.Marshal(struct {
		Fields map[string]any `json:"fields"`
	}{Fields: toWireFields(fields)})
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", p, err)
	}

	err = c.withRetry(ctx, func(ctx context.Context) error {
		_, err := c.do(ctx, method, p, payload)
		return err
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "remote write failed",
			slog.String("path", p), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote write failed")
		return fmt.Errorf("writing %s: %w", p, err)
	}

	span.SetStatus(codes.Ok, "written")
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, p string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+p, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.RetryableError(err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return b, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, retry.RetryableError(fmt.Errorf("remote store returned %s", resp.Status))
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: remote store returned %s", types.ErrNotFound, resp.Status)
	default:
		return nil, fmt.Errorf("remote store returned %s", resp.Status)
	}
}

func (c *HTTPClient) withRetry(ctx context.Context, fn func(context.Context) error) error {
	if c.retries == 0 {
		return fn(ctx)
	}
	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(250*time.Millisecond))
	return retry.Do(ctx, backoff, fn)
}

func toWireFields(fields map[string]Value) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = toWireValue(v)
	}
	return out
}

func toWireValue(v Value) any {
	switch v.Kind() {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, 0, len(v.list))
		for _, e := range v.list {
			out = append(out, toWireValue(e))
		}
		return out
	default:
		return nil
	}
}

func path(parts ...string) string {
	p := "/v1"
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}
