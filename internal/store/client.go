// Package store implements the REST record-store client and the typed
// accessors for the staging, production, job, county and source tables. The
// data service speaks a PostgREST-style protocol: filtered select, insert
// with optional merge-on-conflict, filtered patch, exact-count headers, and
// stored procedures under /rpc. The store is the only shared state between
// repeto processes.
package store

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
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	restPath = "/rest/v1"
	rpcPath  = "/rest/v1/rpc"
)

// Client is a REST record-store client.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new record-store client. The service key authenticates
// every request as a static bearer credential.
func NewClient(baseURL, serviceKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Filter is a single column predicate in the store's filter syntax
// (eq.value, is.null, lt.value, not.in.(a,b)).
type Filter struct {
	Column string
	Value  string
}

// Eq builds an equality filter.
func Eq(column string, value interface{}) Filter {
	return Filter{Column: column, Value: fmt.Sprintf("eq.%v", value)}
}

// Is builds an identity filter (is.null, is.true, is.false).
func Is(column, value string) Filter {
	return Filter{Column: column, Value: "is." + value}
}

// Lt builds a less-than filter.
func Lt(column string, value interface{}) Filter {
	return Filter{Column: column, Value: fmt.Sprintf("lt.%v", value)}
}

// Lte builds a less-than-or-equal filter.
func Lte(column string, value interface{}) Filter {
	return Filter{Column: column, Value: fmt.Sprintf("lte.%v", value)}
}

// Gte builds a greater-than-or-equal filter.
func Gte(column string, value interface{}) Filter {
	return Filter{Column: column, Value: fmt.Sprintf("gte.%v", value)}
}

// In builds a membership filter.
func In(column string, values ...string) Filter {
	return Filter{Column: column, Value: fmt.Sprintf("in.(%s)", strings.Join(values, ","))}
}

// Contains builds an array-contains filter: cs.{a,b}.
func Contains(column string, values ...string) Filter {
	return Filter{Column: column, Value: fmt.Sprintf("cs.{%s}", strings.Join(values, ","))}
}

// Or builds a disjunction of predicates: or=(a.is.null,a.lte.now).
func Or(predicates ...string) Filter {
	return Filter{Column: "or", Value: fmt.Sprintf("(%s)", strings.Join(predicates, ","))}
}

// Query describes a filtered select.
type Query struct {
	Select  string
	Filters []Filter
	Order   string
	Limit   int
	Offset  int
}

func (q Query) values() url.Values {
	params := url.Values{}
	sel := q.Select
	if sel == "" {
		sel = "*"
	}
	params.Set("select", sel)
	for _, f := range q.Filters {
		params.Add(f.Column, f.Value)
	}
	if q.Order != "" {
		params.Set("order", q.Order)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	return params
}

// Select runs a filtered select against a table and decodes the rows into
// result (a pointer to a slice).
func (c *Client) Select(ctx context.Context, table string, q Query, result interface{}) error {
	endpoint := fmt.Sprintf("%s%s/%s?%s", c.baseURL, restPath, table, q.values().Encode())

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", table, err)
	}
	return nil
}

// Count returns the exact row count for the filtered table using a HEAD
// request and the Content-Range response header ("0-24/1234").
func (c *Client) Count(ctx context.Context, table string, filters ...Filter) (int, error) {
	q := Query{Filters: filters}
	endpoint := fmt.Sprintf("%s%s/%s?%s", c.baseURL, restPath, table, q.values().Encode())

	resp, err := c.do(ctx, http.MethodHead, endpoint, nil, map[string]string{
		"Prefer": "count=exact",
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return 0, err
	}

	contentRange := resp.Header.Get("Content-Range")
	idx := strings.LastIndex(contentRange, "/")
	if idx < 0 {
		return 0, fmt.Errorf("missing count in Content-Range header %q", contentRange)
	}
	total := contentRange[idx+1:]
	if total == "*" {
		return 0, fmt.Errorf("store returned unknown count for %s", table)
	}
	count, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Range header %q: %w", contentRange, err)
	}
	return count, nil
}

// Insert writes rows into a table. With upsert set, the store merges on
// conflict with the primary key instead of rejecting duplicates.
func (c *Client) Insert(ctx context.Context, table string, rows interface{}, upsert bool) error {
	endpoint := fmt.Sprintf("%s%s/%s", c.baseURL, restPath, table)

	prefer := "return=minimal"
	if upsert {
		prefer = "return=minimal,resolution=merge-duplicates"
	}

	resp, err := c.do(ctx, http.MethodPost, endpoint, rows, map[string]string{
		"Prefer": prefer,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

// Update patches all rows matching the filters.
func (c *Client) Update(ctx context.Context, table string, filters []Filter, fields interface{}) error {
	params := url.Values{}
	for _, f := range filters {
		params.Add(f.Column, f.Value)
	}
	endpoint := fmt.Sprintf("%s%s/%s?%s", c.baseURL, restPath, table, params.Encode())

	resp, err := c.do(ctx, http.MethodPatch, endpoint, fields, map[string]string{
		"Prefer": "return=minimal",
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

// RPC invokes a stored procedure. A nil result discards the response body.
func (c *Client) RPC(ctx context.Context, fn string, args interface{}, result interface{}) error {
	endpoint := fmt.Sprintf("%s%s/%s", c.baseURL, rpcPath, fn)

	resp, err := c.do(ctx, http.MethodPost, endpoint, args, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode rpc %s response: %w", fn, err)
	}
	return nil
}

// do executes one authenticated request after waiting on the rate limiter.
func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}, headers map[string]string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if c.logger != nil {
		c.logger.Trace().
			Str("method", method).
			Str("url", endpoint).
			Msg("Record store request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store request failed: %w", err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
