package streaminghttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/notion-mcp/auth"
	"github.com/ggoodman/notion-mcp/internal/engine"
	"github.com/ggoodman/notion-mcp/internal/jsonrpc"
	"github.com/ggoodman/notion-mcp/internal/logctx"
)

var _ http.Handler = (*Handler)(nil)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")

	streamMediaTypes  = []contenttype.MediaType{eventStreamMediaType}
	oneShotMediaTypes = []contenttype.MediaType{eventStreamMediaType, jsonMediaType}
)

const (
	sessionIDParam        = "sessionId"
	wwwAuthenticateHeader = "WWW-Authenticate"
	maxBodyBytes          = 4 << 20
	defaultKeepAlive      = 25 * time.Second
	defaultQueueSize      = 64
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections before a JSON-RPC
// message exchange is possible. We do NOT claim JSON-RPC framing here; this is
// transport-level. Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithPath sets the endpoint path. Defaults to "/sse".
func WithPath(p string) Option {
	return func(h *Handler) {
		if p != "" {
			h.path = p
		}
	}
}

// WithInterceptors installs the auth gate. Every interceptor must accept a
// request before it is served.
func WithInterceptors(ics ...auth.Interceptor) Option {
	return func(h *Handler) { h.interceptors = append(h.interceptors, ics...) }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(h *Handler) { h.realm = strings.TrimSpace(realm) }
}

// WithKeepAlive sets the interval of SSE comment frames on idle streams.
// Zero disables them.
func WithKeepAlive(d time.Duration) Option {
	return func(h *Handler) { h.keepAlive = d }
}

// buildBearerChallenge builds a standardized Bearer challenge header value.
// Format:
//
//	Bearer realm="<realm>", error="...", error_description="..."
//
// Realm is omitted if empty.
func buildBearerChallenge(realm, errCode, description string) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace
	pieces := make([]string, 0, 3)
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if errCode != "" {
		pieces = append(pieces, fmt.Sprintf(`error="%s"`, esc(errCode)))
	}
	if description != "" {
		pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc(description)))
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

// Handler implements the remote MCP binding: a long-lived SSE stream per
// client plus a POST endpoint for client messages.
type Handler struct {
	e            *engine.Engine
	log          *slog.Logger
	path         string
	interceptors []auth.Interceptor
	realm        string
	keepAlive    time.Duration

	mu      sync.Mutex
	conns   map[string]*sseConn
	closing chan struct{}
	closed  bool
}

// New constructs a Handler serving e.
func New(e *engine.Engine, opts ...Option) *Handler {
	h := &Handler{
		e:         e,
		log:       slog.Default(),
		path:      "/sse",
		realm:     "notion-mcp",
		keepAlive: defaultKeepAlive,
		conns:     make(map[string]*sseConn),
		closing:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	r = r.WithContext(ctx)

	if r.URL.Path != h.path {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.handleStream(w, r)
	case http.MethodPost:
		h.handlePost(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// Close ends every open stream. http.Server.Shutdown does not interrupt
// long-lived responses, so call Close first.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.closing)
	}
}

// Connections reports the number of open streams.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// authenticate runs the interceptors. On rejection it writes the 401 and
// returns false.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (auth.UserInfo, bool) {
	ctx := r.Context()
	var ui auth.UserInfo
	for _, ic := range h.interceptors {
		got, err := ic.Intercept(r)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
				w.Header().Set(wwwAuthenticateHeader, buildBearerChallenge(h.realm, "invalid_token", "missing or invalid credentials"))
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return nil, false
			}
			h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "authentication failed")
			return nil, false
		}
		ui = got
	}
	if ui != nil {
		h.log.DebugContext(ctx, "auth.ok", slog.String("user_id", ui.UserID()))
	}
	return ui, true
}

// handleStream handles GET <path>: it opens the SSE stream of a new
// connection and announces the POST endpoint bound to it.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	conn := newSSEConn(uuid.NewString(), defaultQueueSize)
	ctx = logctx.WithConnData(ctx, &logctx.ConnData{ConnID: conn.id, Transport: "sse"})

	if _, ok := h.authenticate(w, r); !ok {
		conn.close()
		return
	}
	if len(h.interceptors) > 0 {
		conn.advance(stateAuthenticated)
	}

	if _, _, err := contenttype.GetAcceptableMediaType(r, streamMediaTypes); err != nil {
		conn.close()
		writeJSONError(w, http.StatusNotAcceptable, "client must accept text/event-stream")
		h.log.WarnContext(ctx, "http.get.not_acceptable")
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		conn.close()
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	if !h.register(conn) {
		conn.close()
		writeJSONError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	}
	defer h.unregister(conn)

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: r.Context()}

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	endpoint := (&url.URL{Path: h.path, RawQuery: url.Values{sessionIDParam: {conn.id}}.Encode()}).String()
	if err := writeSSEEvent(wf, "endpoint", []byte(endpoint)); err != nil {
		h.log.WarnContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
		return
	}
	conn.advance(stateStreaming)
	h.log.InfoContext(ctx, "sse.stream.start")

	// Calls outlive the request: a client hanging up must not abort backend
	// work that is already under way. Their responses are then dropped.
	go func() {
		if err := h.e.Serve(context.WithoutCancel(ctx), conn, engine.Concurrently()); err != nil {
			h.log.ErrorContext(ctx, "sse.serve.fail", slog.String("err", err.Error()))
		}
	}()

	var tick <-chan time.Time
	if h.keepAlive > 0 {
		t := time.NewTicker(h.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	reason := "client"
loop:
	for {
		select {
		case b := <-conn.out:
			if err := writeSSEEvent(wf, "message", b); err != nil {
				h.log.WarnContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
				reason = "write"
				break loop
			}
			h.log.DebugContext(ctx, "sse.message.deliver")
		case <-tick:
			if _, err := wf.Write([]byte(": keep-alive\n\n")); err != nil {
				reason = "write"
				break loop
			}
			wf.Flush()
		case <-r.Context().Done():
			break loop
		case <-h.closing:
			reason = "shutdown"
			break loop
		}
	}

	conn.close()
	h.log.InfoContext(ctx, "sse.stream.end",
		slog.String("reason", reason),
		slog.Bool("authenticated", conn.passed(stateAuthenticated)),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
}

// handlePost handles POST <path>. With a sessionId the message is queued on
// that connection and answered over its stream; without one the response is
// written back directly.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		h.log.WarnContext(ctx, "http.body.read_fail", slog.String("err", err.Error()))
		return
	}
	if len(body) > maxBodyBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "message too large")
		return
	}
	trimmed := strings.TrimSpace(string(body))
	if !json.Valid([]byte(trimmed)) {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		h.log.WarnContext(ctx, "json.decode.fail")
		return
	}
	if strings.HasPrefix(trimmed, "[") {
		writeJSONError(w, http.StatusBadRequest, "JSON-RPC batch arrays are not supported")
		h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		return
	}
	msg := jsonrpc.Message(trimmed)

	if id := r.URL.Query().Get(sessionIDParam); id != "" {
		h.postToSession(w, r, id, msg)
		return
	}
	h.postOneShot(w, r, msg)
}

func (h *Handler) postToSession(w http.ResponseWriter, r *http.Request, id string, msg jsonrpc.Message) {
	ctx := logctx.WithConnData(r.Context(), &logctx.ConnData{ConnID: id, Transport: "sse"})

	h.mu.Lock()
	conn := h.conns[id]
	h.mu.Unlock()

	if conn == nil || conn.state() != stateStreaming {
		writeJSONError(w, http.StatusNotFound, "unknown or closed session")
		h.log.InfoContext(ctx, "session.lookup.miss")
		return
	}
	if !conn.enqueue(r.Context(), msg) {
		writeJSONError(w, http.StatusNotFound, "unknown or closed session")
		h.log.InfoContext(ctx, "session.enqueue.closed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
	h.log.DebugContext(ctx, "http.post.accepted")
}

func (h *Handler) postOneShot(w http.ResponseWriter, r *http.Request, msg jsonrpc.Message) {
	ctx := r.Context()

	mt, _, err := contenttype.GetAcceptableMediaType(r, oneShotMediaTypes)
	if err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "client must accept application/json or text/event-stream")
		h.log.WarnContext(ctx, "http.post.not_acceptable")
		return
	}

	res := h.e.HandleMessage(context.WithoutCancel(ctx), msg)
	if res == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		h.log.ErrorContext(ctx, "http.post.encode_fail", slog.String("err", err.Error()))
		return
	}

	if mt.Matches(jsonMediaType) {
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(append(b, '\n'))
		return
	}

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	wf := &lockedWriteFlusher{Writer: w, ctx: ctx}
	if f, ok := w.(http.Flusher); ok {
		wf.Flusher = f
	}
	if err := writeSSEEvent(wf, "message", b); err != nil {
		h.log.WarnContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) register(c *sseConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c.id] = c
	return true
}

func (h *Handler) unregister(c *sseConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.id)
}

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an optional context.
// It serializes concurrent writes/flushes and avoids writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Flusher == nil || (l.ctx != nil && l.ctx.Err() != nil) {
		return
	}
	l.Flusher.Flush()
}

// writeSSEEvent writes one Server-Sent Event and flushes it. payload must not
// contain newlines; JSON from encoding/json and URLs never do.
func writeSSEEvent(wf *lockedWriteFlusher, event string, payload []byte) error {
	if event != "" {
		if _, err := fmt.Fprintf(wf, "event: %s\n", event); err != nil {
			return errors.Wrap(err, "failed to write SSE event name")
		}
	}
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return errors.Wrap(err, "failed to write SSE data prefix")
	}
	if _, err := wf.Write(payload); err != nil {
		return errors.Wrap(err, "failed to write SSE payload")
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return errors.Wrap(err, "failed to write SSE frame terminator")
	}
	wf.Flush()
	return nil
}

type connState int32

const (
	stateConnecting connState = iota
	stateAuthenticated
	stateStreaming
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticated:
		return "authenticated"
	case stateStreaming:
		return "streaming"
	default:
		return "closed"
	}
}

// sseConn is one SSE client as the engine sees it. POSTs feed in; the
// stream loop drains out.
type sseConn struct {
	id   string
	st   atomic.Int32
	seen atomic.Int32 // bit per state entered
	in   chan jsonrpc.Message
	out  chan []byte
	done chan struct{}
	once sync.Once
}

var _ engine.Conn = (*sseConn)(nil)

func newSSEConn(id string, queue int) *sseConn {
	return &sseConn{
		id:   id,
		in:   make(chan jsonrpc.Message, queue),
		out:  make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

func (c *sseConn) state() connState { return connState(c.st.Load()) }

// passed reports whether the connection ever entered s.
func (c *sseConn) passed(s connState) bool { return c.seen.Load()&(1<<s) != 0 }

// advance moves the connection forward. States never go back and Closed is
// terminal.
func (c *sseConn) advance(to connState) bool {
	for {
		cur := c.st.Load()
		if connState(cur) >= to {
			return false
		}
		if c.st.CompareAndSwap(cur, int32(to)) {
			c.seen.Or(1 << to)
			return true
		}
	}
}

func (c *sseConn) close() {
	c.once.Do(func() {
		c.advance(stateClosed)
		close(c.done)
	})
}

func (c *sseConn) enqueue(ctx context.Context, msg jsonrpc.Message) bool {
	select {
	case c.in <- msg:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *sseConn) Receive(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *sseConn) Send(ctx context.Context, res *jsonrpc.Response) error {
	if c.state() != stateStreaming {
		return engine.ErrConnClosed
	}
	b, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "encode response")
	}
	select {
	case c.out <- b:
		return nil
	case <-c.done:
		return engine.ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
