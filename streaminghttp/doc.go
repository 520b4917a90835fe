// Package streaminghttp implements the remote MCP binding over HTTP with
// Server-Sent Events. It mounts as a standard net/http handler on a single
// path.
//
// # Protocol
//
//	GET  <path>                  open an event stream; the first event is
//	                             "endpoint" whose data is <path>?sessionId=<id>
//	POST <path>?sessionId=<id>   deliver one JSON-RPC message; answered 202,
//	                             the response arrives as a "message" event
//	POST <path>                  deliver one message and receive its response
//	                             directly (JSON or a single SSE event)
//
// Every request passes the configured auth.Interceptors first. A rejected
// request is answered 401 and never reaches the engine.
//
// # Lifetimes
//
// Each stream moves through connecting, authenticated, streaming and closed.
// Calls on a stream run concurrently and are correlated by JSON-RPC id, so a
// slow call never holds back a fast one. Backend work is detached from the
// HTTP request: when a client disconnects, calls already in flight finish and
// their responses are dropped.
//
// http.Server.Shutdown waits for active responses, so call Handler.Close
// first to end open streams:
//
//	h := streaminghttp.New(e, streaminghttp.WithInterceptors(auth.StaticSecret("", secret)))
//	srv := &http.Server{Addr: addr, Handler: h}
//	...
//	h.Close()
//	_ = srv.Shutdown(ctx)
package streaminghttp
