// Package vector is a REST client for the Qdrant point index. Payloads
// attached to points are opaque to this package; the publish engine owns
// their schema.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/docloom/docloom/internal/common"
)

// Point is one indexed entry.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Filter matches points whose payload fields equal the given values.
// Nested fields use dot notation, e.g. "doc.source_id".
type Filter map[string]interface{}

// ScrollResult is one page of points plus the offset for the next page.
type ScrollResult struct {
	Points     []Point
	NextOffset interface{}
}

// Index is the vector store contract used by the publish engine.
type Index interface {
	Available() bool
	Collection() string
	SetCollection(name string)
	EnsureCollection(ctx context.Context, dim int) error
	Upsert(ctx context.Context, points []Point) error
	DeleteByFilter(ctx context.Context, filter Filter) error
	DeletePoints(ctx context.Context, ids []string) error
	Scroll(ctx context.Context, filter Filter, limit int, offset interface{}) (*ScrollResult, error)
	Count(ctx context.Context, filter Filter) (int, error)
	SetPayload(ctx context.Context, filter Filter, payload map[string]interface{}) error
}

// Client talks to Qdrant over its REST API.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport

	baseURL    string
	collection string
	apiKey     string
	available  bool

	mu sync.RWMutex
}

var (
	errNotFound = errors.New("resource not found")
	errConflict = errors.New("resource conflict")
)

func NewFromEnv(ctx context.Context) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New constructs a client using the provided configuration. An
// unreachable server is logged but does not fail construction; the
// client reports unavailable until a later call succeeds.
func New(ctx context.Context, cfg Config) (*Client, error) {
	logger := common.Logger()
	logger.Info("vector: initializing qdrant client", "host", cfg.Host, "port", cfg.Port, "collection", cfg.Collection)
	transport := &http.Transport{
		MaxIdleConns:        cfg.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPMaxIdlePerHost,
		IdleConnTimeout:     cfg.HTTPIdleConnTimeout,
	}
	client := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		transport:  transport,
		baseURL:    fmt.Sprintf("%s://%s:%s", cfg.Scheme, cfg.Host, cfg.Port),
		collection: cfg.Collection,
		apiKey:     cfg.APIKey,
	}
	if err := client.health(ctx); err != nil {
		logger.Warn("vector: qdrant unreachable at startup", "error", err)
		return client, nil
	}
	client.setAvailable(true)
	logger.Info("vector: qdrant connection established")
	return client, nil
}

func (c *Client) Available() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

func (c *Client) setAvailable(v bool) {
	c.mu.Lock()
	c.available = v
	c.mu.Unlock()
}

func (c *Client) Collection() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collection
}

func (c *Client) SetCollection(name string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return
	}
	c.mu.Lock()
	c.collection = trimmed
	c.mu.Unlock()
}

func (c *Client) health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, c.baseURL+"/readyz", nil, nil)
}

// EnsureCollection creates the collection with cosine distance when it
// does not exist. Dimensionality is fixed at creation time.
func (c *Client) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("invalid vector dimension")
	}
	endpoint := c.collectionURL("")
	err := c.doRequest(ctx, http.MethodGet, endpoint, nil, nil)
	if err == nil {
		c.setAvailable(true)
		return nil
	}
	if !errors.Is(err, errNotFound) {
		return err
	}
	body := map[string]interface{}{
		"vectors": map[string]interface{}{"size": dim, "distance": "Cosine"},
	}
	if err := c.doRequest(ctx, http.MethodPut, endpoint, body, nil); err != nil && !errors.Is(err, errConflict) {
		return err
	}
	c.setAvailable(true)
	return nil
}

func (c *Client) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]interface{}{"points": points}
	return c.doRequest(ctx, http.MethodPut, c.collectionURL("/points?wait=true"), body, nil)
}

func (c *Client) DeleteByFilter(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return errors.New("delete filter required")
	}
	body := map[string]interface{}{"filter": buildFilter(filter)}
	return c.doRequest(ctx, http.MethodPost, c.collectionURL("/points/delete?wait=true"), body, nil)
}

func (c *Client) DeletePoints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]interface{}{"points": ids}
	return c.doRequest(ctx, http.MethodPost, c.collectionURL("/points/delete?wait=true"), body, nil)
}

func (c *Client) Scroll(ctx context.Context, filter Filter, limit int, offset interface{}) (*ScrollResult, error) {
	if limit <= 0 {
		limit = 64
	}
	body := map[string]interface{}{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if len(filter) > 0 {
		body["filter"] = buildFilter(filter)
	}
	if offset != nil {
		body["offset"] = offset
	}
	var resp struct {
		Result struct {
			Points []struct {
				ID      interface{}            `json:"id"`
				Payload map[string]interface{} `json:"payload"`
			} `json:"points"`
			NextPageOffset interface{} `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := c.doRequest(ctx, http.MethodPost, c.collectionURL("/points/scroll"), body, &resp); err != nil {
		return nil, err
	}
	result := &ScrollResult{NextOffset: resp.Result.NextPageOffset}
	for _, p := range resp.Result.Points {
		result.Points = append(result.Points, Point{ID: fmt.Sprint(p.ID), Payload: p.Payload})
	}
	return result, nil
}

func (c *Client) Count(ctx context.Context, filter Filter) (int, error) {
	body := map[string]interface{}{"exact": true}
	if len(filter) > 0 {
		body["filter"] = buildFilter(filter)
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := c.doRequest(ctx, http.MethodPost, c.collectionURL("/points/count"), body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (c *Client) SetPayload(ctx context.Context, filter Filter, payload map[string]interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	body := map[string]interface{}{"payload": payload}
	if len(filter) > 0 {
		body["filter"] = buildFilter(filter)
	}
	return c.doRequest(ctx, http.MethodPost, c.collectionURL("/points/payload?wait=true"), body, nil)
}

// Close releases pooled transport resources.
func (c *Client) Close() error {
	if c != nil && c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	return nil
}

func buildFilter(filter Filter) map[string]interface{} {
	must := make([]map[string]interface{}, 0, len(filter))
	for key, value := range filter {
		must = append(must, map[string]interface{}{
			"key":   key,
			"match": map[string]interface{}{"value": value},
		})
	}
	return map[string]interface{}{"must": must}
}

func (c *Client) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", c.baseURL, url.PathEscape(c.Collection()), suffix)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	if c == nil {
		return errors.New("qdrant client not configured")
	}
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setAvailable(false)
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusConflict:
		return errConflict
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant %s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	return decoder.Decode(out)
}

var _ Index = (*Client)(nil)
