package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ggoodman/notion-mcp/internal/engine"
	"github.com/ggoodman/notion-mcp/internal/jsonrpc"
	"github.com/ggoodman/notion-mcp/internal/logctx"
)

const (
	defaultQueueSize = 64
	maxLineBytes     = 16 << 20
)

// Handler is a single-connection stdio transport that reads newline-delimited
// JSON-RPC messages from an io.Reader and writes responses to an io.Writer.
// By default, it uses os.Stdin and os.Stdout.
//
// Requests are handled one at a time in arrival order. Responses go through a
// buffered queue drained by a dedicated writer goroutine so a slow reader on
// the other end never stalls the read loop.
type Handler struct {
	e     *engine.Engine
	r     io.Reader
	w     io.Writer
	l     *slog.Logger
	queue int
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(e *engine.Engine, opts ...Option) *Handler {
	h := &Handler{
		e:     e,
		r:     os.Stdin,
		w:     os.Stdout,
		l:     slog.Default(),
		queue: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled. It is safe to call at most once per Handler. Queued responses are
// flushed before Serve returns.
func (h *Handler) Serve(ctx context.Context) error {
	ctx = logctx.WithConnData(ctx, &logctx.ConnData{ConnID: uuid.NewString(), Transport: "stdio"})

	c := newConn(h.r, h.w, h.queue, h.l)
	h.l.InfoContext(ctx, "stdio.serve.start")

	err := h.e.Serve(ctx, c)
	c.close()

	if err != nil && !errors.Is(err, context.Canceled) {
		h.l.ErrorContext(ctx, "stdio.serve.fail", slog.String("err", err.Error()))
		return err
	}
	h.l.InfoContext(ctx, "stdio.serve.stop")
	return nil
}

type readResult struct {
	msg jsonrpc.Message
	err error
}

// conn adapts the line streams to engine.Conn.
type conn struct {
	in  chan readResult
	out chan []byte
	log *slog.Logger

	mu     sync.RWMutex
	closed bool

	done       chan struct{}
	writerDone chan struct{}
}

func newConn(r io.Reader, w io.Writer, queue int, log *slog.Logger) *conn {
	c := &conn{
		in:         make(chan readResult),
		out:        make(chan []byte, queue),
		log:        log,
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go c.readLoop(r)
	go c.writeLoop(w)
	return c
}

// readLoop is not tied to a context: a blocked read on stdin cannot be
// interrupted, so the goroutine lives until the reader returns.
func (c *conn) readLoop(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !c.deliver(readResult{msg: append(jsonrpc.Message(nil), line...)}) {
			return
		}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	c.deliver(readResult{err: err})
}

func (c *conn) deliver(rr readResult) bool {
	select {
	case c.in <- rr:
		return true
	case <-c.done:
		return false
	}
}

func (c *conn) writeLoop(w io.Writer) {
	defer close(c.writerDone)
	bw := bufio.NewWriter(w)
	for b := range c.out {
		if _, err := bw.Write(b); err != nil {
			c.log.Error("stdio.write.fail", slog.String("err", err.Error()))
			continue
		}
		// Flush when the queue is drained so bursts share a syscall.
		if len(c.out) == 0 {
			if err := bw.Flush(); err != nil {
				c.log.Error("stdio.write.fail", slog.String("err", err.Error()))
			}
		}
	}
	_ = bw.Flush()
}

func (c *conn) Receive(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case rr := <-c.in:
		return rr.msg, rr.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conn) Send(ctx context.Context, res *jsonrpc.Response) error {
	b, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "encode response")
	}
	b = append(b, '\n')

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return engine.ErrConnClosed
	}
	select {
	case c.out <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting responses and waits for the queue to drain.
func (c *conn) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.out)
		close(c.done)
	}
	c.mu.Unlock()
	<-c.writerDone
}
