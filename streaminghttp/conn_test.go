package streaminghttp

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ggoodman/notion-mcp/auth"
	"github.com/ggoodman/notion-mcp/internal/dispatch"
	"github.com/ggoodman/notion-mcp/internal/engine"
	"github.com/ggoodman/notion-mcp/internal/jsonrpc"
)

func TestConnStatesOnlyMoveForward(t *testing.T) {
	c := newSSEConn("c1", 1)
	if c.state() != stateConnecting {
		t.Fatalf("new connection in state %s", c.state())
	}
	if !c.advance(stateStreaming) {
		t.Fatal("advance to streaming refused")
	}
	if c.advance(stateAuthenticated) {
		t.Fatal("connection moved backwards")
	}
	if c.passed(stateAuthenticated) {
		t.Fatal("authenticated recorded without being entered")
	}

	c.close()
	if c.state() != stateClosed || c.advance(stateStreaming) {
		t.Fatalf("closed is not terminal: %s", c.state())
	}
	err := c.Send(context.Background(), jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInternalError, "x", nil))
	if !errors.Is(err, engine.ErrConnClosed) {
		t.Fatalf("send on closed connection: %v", err)
	}
}

// openConn opens a stream on h and returns the registered connection once the
// endpoint event arrived.
func openConn(t *testing.T, h *Handler, credential string) *sseConn {
	t.Helper()
	srv := httptest.NewServer(h)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		h.Close()
		srv.Close()
	})

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	req.Header.Set("Accept", "text/event-stream")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { res.Body.Close() })
	if res.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", res.StatusCode)
	}
	line, err := bufio.NewReader(res.Body).ReadString('\n')
	if err != nil || !strings.HasPrefix(line, "event: endpoint") {
		t.Fatalf("unexpected first line %q: %v", line, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		for _, c := range h.conns {
			if c.state() == stateStreaming {
				h.mu.Unlock()
				return c
			}
		}
		h.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no streaming connection registered")
	return nil
}

func TestAuthenticatedStateFollowsGate(t *testing.T) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	newHandler := func(opts ...Option) *Handler {
		d := dispatch.NewDispatcher(dispatch.Builtin(), dispatch.Env{}, dispatch.WithLogger(discard))
		return New(engine.New(d, engine.WithLogger(discard)), append(opts, WithLogger(discard), WithKeepAlive(0))...)
	}

	t.Run("no gate skips authenticated", func(t *testing.T) {
		c := openConn(t, newHandler(), "")
		if c.passed(stateAuthenticated) {
			t.Fatal("connection without a gate passed through authenticated")
		}
	})

	t.Run("gate enters authenticated", func(t *testing.T) {
		c := openConn(t, newHandler(WithInterceptors(auth.StaticSecret("Authorization", "s3cret"))), "s3cret")
		if !c.passed(stateAuthenticated) {
			t.Fatal("gated connection never entered authenticated")
		}
	})
}
