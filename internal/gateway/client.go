// Package gateway is the single path from the bridge to the Notion REST API.
//
// A Client owns one long-lived HTTP client, the bearer credential and a
// client-side rate limiter. Every call goes through Execute, which applies the
// retry policy (reads retry on network errors, 429 and 5xx; writes retry only
// when nothing reached the wire), follows pagination cursors and maps HTTP
// failures onto the errkind taxonomy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/ggoodman/notion-mcp/internal/config"
	"github.com/ggoodman/notion-mcp/internal/errkind"
)

const (
	defaultBaseURL     = "https://api.notion.com/v1"
	defaultVersion     = "2022-06-28"
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 8 * time.Second
	maxErrorBody       = 64 << 10
)

// Request is one logical backend call.
type Request struct {
	// Op names an entry of the operation table.
	Op string
	// ID fills the {id} path segment.
	ID string
	// Body is JSON-encoded as the request body. For paginated POST operations
	// it must encode to a JSON object.
	Body any
	// Query is appended to the URL.
	Query url.Values
	// MaxItems caps a paginated result; zero means no cap.
	MaxItems int
}

// Result of Execute. Body is set for single-object operations, Items for
// paginated ones.
type Result struct {
	Body      json.RawMessage
	Items     []json.RawMessage
	Truncated bool
}

// Client executes backend operations. It is safe for concurrent use; all
// fields are read-only after New.
type Client struct {
	http        *http.Client
	baseURL     string
	version     string
	credential  string
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
	limiter     *rate.Limiter
	log         *slog.Logger
	sleep       func(context.Context, time.Duration) error
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBaseURL overrides the configured base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithMaxRetries overrides the configured retry bound.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBackoff sets the base and cap of the exponential backoff.
func WithBackoff(base, limit time.Duration) Option {
	return func(c *Client) { c.backoffBase, c.backoffMax = base, limit }
}

// WithRateLimit sets the client-side request rate and burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New builds a Client. It fails with MissingCredential when no API key is
// configured so the process can refuse to start.
func New(cfg config.Notion, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		err := errkind.New(errkind.MissingCredential, "no Notion API key configured")
		return nil, errors.WithHint(err, "Set NOTION_API_KEY to the integration token.")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 3
	}
	c := &Client{
		http:        &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		version:     cfg.Version,
		credential:  cfg.APIKey,
		maxRetries:  cfg.MaxRetries,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		limiter:     rate.NewLimiter(rate.Limit(rps), max(1, int(rps))),
		log:         slog.Default(),
		sleep:       sleepContext,
		now:         time.Now,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.version == "" {
		c.version = defaultVersion
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	return c, nil
}

// Execute runs one logical operation: a single request, or for paginated
// operations the full cursor loop.
func (c *Client) Execute(ctx context.Context, req Request) (*Result, error) {
	op, ok := operations[req.Op]
	if !ok {
		return nil, errkind.New(errkind.InvalidRequest, "unknown backend operation %q", req.Op)
	}
	if op.needsID() && strings.TrimSpace(req.ID) == "" {
		return nil, errkind.New(errkind.InvalidRequest, "%s: missing object id", op.Name)
	}
	if op.Paginated {
		return c.paginate(ctx, op, req)
	}
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: encode body", op.Name)
	}
	resp, err := c.do(ctx, op, c.url(op, req.ID, req.Query), body)
	if err != nil {
		return nil, err
	}
	return &Result{Body: resp}, nil
}

type listPage struct {
	Results    []json.RawMessage `json:"results"`
	NextCursor *string           `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
}

func (c *Client) paginate(ctx context.Context, op Operation, req Request) (*Result, error) {
	var base map[string]json.RawMessage
	if op.Method != http.MethodGet {
		if req.Body != nil {
			raw, err := encodeBody(req.Body)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: encode body", op.Name)
			}
			if err := json.Unmarshal(raw, &base); err != nil {
				return nil, errkind.Mark(errors.Wrapf(err, "%s: paginated body must be an object", op.Name), errkind.InvalidRequest)
			}
		}
		if base == nil {
			base = map[string]json.RawMessage{}
		}
	}

	res := &Result{Items: []json.RawMessage{}}
	cursor := ""
	for {
		size := maxPageSize
		if req.MaxItems > 0 {
			size = min(size, req.MaxItems-len(res.Items))
		}

		var body []byte
		query := cloneValues(req.Query)
		if op.Method == http.MethodGet {
			query.Set("page_size", strconv.Itoa(size))
			if cursor != "" {
				query.Set("start_cursor", cursor)
			}
		} else {
			base["page_size"] = json.RawMessage(strconv.Itoa(size))
			delete(base, "start_cursor")
			if cursor != "" {
				enc, _ := json.Marshal(cursor)
				base["start_cursor"] = enc
			}
			var err error
			if body, err = json.Marshal(base); err != nil {
				return nil, errors.Wrapf(err, "%s: encode body", op.Name)
			}
		}

		raw, err := c.do(ctx, op, c.url(op, req.ID, query), body)
		if err != nil {
			return nil, err
		}
		var page listPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, errors.Wrapf(err, "%s: decode list response", op.Name)
		}
		res.Items = append(res.Items, page.Results...)

		if req.MaxItems > 0 && len(res.Items) >= req.MaxItems {
			if len(res.Items) > req.MaxItems || page.HasMore {
				res.Truncated = true
			}
			res.Items = res.Items[:req.MaxItems]
			return res, nil
		}
		if !page.HasMore || page.NextCursor == nil || *page.NextCursor == "" {
			return res, nil
		}
		cursor = *page.NextCursor
	}
}

// do sends one request with the retry policy applied and returns the response
// body of a 2xx response.
func (c *Client) do(ctx context.Context, op Operation, u string, body []byte) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, transportError(op.Name, err)
		}

		start := c.now()
		status, header, respBody, sent, err := c.attempt(ctx, op, u, body)
		attrs := []any{
			slog.String("op", op.Name),
			slog.Int("attempt", attempt+1),
			slog.Int64("dur_ms", c.now().Sub(start).Milliseconds()),
		}
		if status != 0 {
			attrs = append(attrs, slog.Int("status", status))
		}

		if err == nil && status >= 200 && status < 300 {
			c.log.InfoContext(ctx, "gateway.request.ok", append(attrs, slog.String("outcome", "success"))...)
			return respBody, nil
		}

		var retryable bool
		var wait time.Duration
		var hasWait bool
		var final error
		switch {
		case err != nil:
			final = transportError(op.Name, err)
			retryable = ctx.Err() == nil && (!op.Write || !sent)
		case status == http.StatusTooManyRequests || status >= 500:
			final = statusError(op.Name, status, respBody)
			retryable = !op.Write
			wait, hasWait = retryAfter(header, c.now())
		default:
			final = statusError(op.Name, status, respBody)
		}

		if retryable && attempt < c.maxRetries {
			if !hasWait {
				wait = backoff(c.backoffBase, c.backoffMax, attempt)
			}
			c.log.WarnContext(ctx, "gateway.request.retry", append(attrs,
				slog.String("outcome", "retry"),
				slog.Int64("wait_ms", wait.Milliseconds()),
				slog.String("reason", errkind.Of(final)),
			)...)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, transportError(op.Name, err)
			}
			continue
		}

		if retryable {
			final = errors.Wrapf(final, "giving up after %d attempts", attempt+1)
		}
		c.log.WarnContext(ctx, "gateway.request.fail", append(attrs,
			slog.String("outcome", "failure"),
			slog.String("kind", errkind.Of(final)),
		)...)
		return nil, final
	}
}

func (c *Client) attempt(ctx context.Context, op Operation, u string, body []byte) (status int, header http.Header, respBody []byte, sent bool, err error) {
	var tracker sendTracker
	tctx := httptrace.WithClientTrace(ctx, tracker.trace())

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(tctx, op.Method, u, rdr)
	if err != nil {
		return 0, nil, nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.credential)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, tracker.sent(), err
	}
	defer resp.Body.Close()

	limit := int64(-1)
	if resp.StatusCode >= 300 {
		limit = maxErrorBody
	}
	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit)
	}
	respBody, err = io.ReadAll(r)
	if err != nil {
		// The server answered; a truncated body is a transport failure after send.
		return 0, nil, nil, true, err
	}
	return resp.StatusCode, resp.Header, respBody, true, nil
}

func (c *Client) url(op Operation, id string, query url.Values) string {
	u := c.baseURL + op.path(id)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func encodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(v)
	}
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
