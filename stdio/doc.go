// Package stdio implements the local MCP binding over stdin/stdout. It is
// intended for running the bridge as a subprocess of an MCP client.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Auth             : none (the parent process is trusted)
//	Framing          : one JSON-RPC message per line
//	Ordering         : requests handled sequentially, in arrival order
//
// Stdout carries protocol traffic only; logs must go to stderr.
//
// Example:
//
//	h := stdio.NewHandler(eng, stdio.WithLogger(logger))
//	if err := h.Serve(ctx); err != nil { log.Fatal(err) }
//
// Remote clients should use the streaminghttp binding instead.
package stdio
