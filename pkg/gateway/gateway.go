// Package gateway is the client for the hosted data platform: row CRUD over
// REST, RPC functions, object storage and the auth session. Realtime lives in
// pkg/realtime and shares the same credentials.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Row is a raw gateway row as decoded from the REST response. Shapes are
// table-specific; pkg/normalize turns rows into view models.
type Row map[string]any

type Config struct {
	// BaseURL is the root of the hosted gateway, e.g. https://x.example.co.
	BaseURL string
	// APIKey is the public (anon) key sent with every request.
	APIKey string

	HTTP   *http.Client
	Logger *zap.Logger
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger

	auth authState
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway: BaseURL is required")
	}
	httpc := cfg.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpc,
		log:     logger,
	}, nil
}

// SelectOpts narrows a Select. Filters are equality predicates on columns.
type SelectOpts struct {
	Filters map[string]string
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Select fetches rows from a table. Returns an empty slice, not an error,
// when nothing matches.
func (c *Client) Select(ctx context.Context, table string, opts SelectOpts) ([]Row, error) {
	q := url.Values{}
	for col, val := range opts.Filters {
		q.Set(col, "eq."+val)
	}
	if opts.OrderBy != "" {
		dir := "asc"
		if opts.Desc {
			dir = "desc"
		}
		q.Set("order", opts.OrderBy+"."+dir)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	body, err := c.do(ctx, http.MethodGet, "/rest/v1/"+table+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("gateway: decoding %s rows: %w", table, err)
	}
	return rows, nil
}

// Insert creates a row and returns the server's representation of it,
// including server-assigned id and timestamps.
func (c *Client) Insert(ctx context.Context, table string, row Row) (Row, error) {
	body, err := c.do(ctx, http.MethodPost, "/rest/v1/"+table, row)
	if err != nil {
		return nil, err
	}
	return firstRow(body, table)
}

// Update patches all rows matching the filters and returns them.
func (c *Client) Update(ctx context.Context, table string, filters map[string]string, patch Row) ([]Row, error) {
	body, err := c.do(ctx, http.MethodPatch, "/rest/v1/"+table+"?"+filterQuery(filters), patch)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("gateway: decoding %s rows: %w", table, err)
	}
	return rows, nil
}

// Delete removes all rows matching the filters.
func (c *Client) Delete(ctx context.Context, table string, filters map[string]string) error {
	_, err := c.do(ctx, http.MethodDelete, "/rest/v1/"+table+"?"+filterQuery(filters), nil)
	return err
}

// RPC calls a named server-side function (e.g. increment_view_count).
func (c *Client) RPC(ctx context.Context, fn string, args map[string]any) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/"+fn, args)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func filterQuery(filters map[string]string) string {
	q := url.Values{}
	for col, val := range filters {
		q.Set(col, "eq."+val)
	}
	return q.Encode()
}

func firstRow(body []byte, table string) (Row, error) {
	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		// Some endpoints return a bare object instead of a one-element array.
		var row Row
		if err2 := json.Unmarshal(body, &row); err2 == nil {
			return row, nil
		}
		return nil, fmt.Errorf("gateway: decoding %s row: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("gateway: encoding request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Prefer", "return=representation")
	if s := c.Session(); s != nil {
		req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("gateway request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
