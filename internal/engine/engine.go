// Package engine routes MCP methods to the dispatcher. It is transport
// neutral: bindings decode framing, hand each raw message to HandleMessage
// (or drive a Conn through Serve) and write back whatever response comes out.
//
// The engine keeps no per-session state. Every call is independent and
// carries everything it needs, so the stdio and HTTP bindings share one
// instance.
package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ggoodman/notion-mcp/internal/dispatch"
	"github.com/ggoodman/notion-mcp/internal/errkind"
	"github.com/ggoodman/notion-mcp/internal/jsonrpc"
	"github.com/ggoodman/notion-mcp/internal/logctx"
	"github.com/ggoodman/notion-mcp/mcp"
)

// ErrConnClosed is returned by Conn.Send once the peer has gone away.
var ErrConnClosed = errors.New("connection closed")

// Conn is one client connection as a binding exposes it.
type Conn interface {
	// Receive blocks until the next inbound message. io.EOF ends the
	// connection cleanly.
	Receive(ctx context.Context) (jsonrpc.Message, error)
	// Send delivers a response. Implementations return ErrConnClosed when the
	// peer is gone; the response is dropped.
	Send(ctx context.Context, res *jsonrpc.Response) error
}

const defaultInstructions = "Tools and resources for a Notion workspace. Only pages and databases shared with the integration are visible."

// Engine is the MCP method router.
type Engine struct {
	d            *dispatch.Dispatcher
	info         mcp.ImplementationInfo
	instructions string
	log          *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithServerInfo overrides the implementation info reported by initialize.
func WithServerInfo(info mcp.ImplementationInfo) EngineOption {
	return func(e *Engine) { e.info = info }
}

// WithInstructions overrides the instructions reported by initialize.
func WithInstructions(s string) EngineOption {
	return func(e *Engine) { e.instructions = s }
}

// New returns an Engine serving d.
func New(d *dispatch.Dispatcher, opts ...EngineOption) *Engine {
	e := &Engine{
		d:            d,
		info:         mcp.ImplementationInfo{Name: "notion-mcp", Version: "dev"},
		instructions: defaultInstructions,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

type serveConfig struct {
	concurrent bool
}

// ServeOption configures Serve.
type ServeOption func(*serveConfig)

// Concurrently handles each message on its own goroutine. Responses may then
// be sent out of order; the id correlates them.
func Concurrently() ServeOption {
	return func(c *serveConfig) { c.concurrent = true }
}

// Serve pumps messages from conn through HandleMessage until Receive fails.
// By default messages are handled strictly in arrival order. Serve returns
// nil on io.EOF and waits for in-flight calls before returning.
func (e *Engine) Serve(ctx context.Context, conn Conn, opts ...ServeOption) error {
	var cfg serveConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	handle := func(msg jsonrpc.Message) {
		res := e.HandleMessage(ctx, msg)
		if res == nil {
			return
		}
		if err := conn.Send(ctx, res); err != nil {
			if errors.Is(err, ErrConnClosed) {
				e.log.DebugContext(ctx, "engine.send.dropped")
				return
			}
			e.log.WarnContext(ctx, "engine.send.fail", slog.String("err", err.Error()))
		}
	}

	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !cfg.concurrent {
			handle(msg)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle(msg)
		}()
	}
}

// HandleMessage decodes one JSON-RPC message and produces its response.
// Notifications and stray responses yield nil. Malformed input yields a
// parse or invalid-request error with a null id.
func (e *Engine) HandleMessage(ctx context.Context, msg jsonrpc.Message) *jsonrpc.Response {
	in, err := jsonrpc.Decode(msg)
	if err != nil {
		e.log.InfoContext(ctx, "engine.message.reject", slog.String("err", err.Error()))
		return jsonrpc.Rejection(err)
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: in.Method,
		ID:     in.ID.String(),
		Type:   in.Type(),
	})

	switch in.Type() {
	case jsonrpc.TypeNotification:
		e.HandleNotification(ctx, in.AsRequest())
		return nil
	case jsonrpc.TypeResponse:
		// The server never issues requests, so there is nothing to correlate.
		e.log.DebugContext(ctx, "engine.response.ignored")
		return nil
	}

	res, err := e.HandleRequest(ctx, in.AsRequest())
	if err != nil {
		e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(in.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	return res
}

// HandleNotification acknowledges client notifications. None of them change
// server state.
func (e *Engine) HandleNotification(ctx context.Context, note *jsonrpc.Request) {
	switch mcp.Method(note.Method) {
	case mcp.InitializedNotificationMethod:
		e.log.InfoContext(ctx, "engine.session.initialized")
	case mcp.CancelledNotificationMethod:
		e.log.DebugContext(ctx, "engine.notification.cancelled")
	default:
		e.log.DebugContext(ctx, "engine.notification.ignored")
	}
}

// HandleRequest answers a single request.
func (e *Engine) HandleRequest(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		return e.handleInitialize(ctx, req)
	case mcp.PingMethod:
		return jsonrpc.NewResultResponse(req.ID, mcp.EmptyResult{})
	case mcp.ToolsListMethod:
		return e.handleToolsList(ctx, req)
	case mcp.ToolsCallMethod:
		return e.handleToolCall(ctx, req)
	case mcp.ResourcesListMethod:
		return e.handleResourcesList(ctx, req)
	case mcp.ResourcesTemplatesListMethod:
		return e.handleResourcesTemplatesList(ctx, req)
	case mcp.ResourcesReadMethod:
		return e.handleResourcesRead(ctx, req)
	}

	e.log.InfoContext(ctx, "engine.handle_request.unknown_method")
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found: "+req.Method, nil), nil
}

func (e *Engine) handleInitialize(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.InitializeRequest
	if err := decodeParams(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	version := params.ProtocolVersion
	if !mcp.IsSupportedProtocolVersion(version) {
		version = mcp.LatestProtocolVersion
	}

	e.log.InfoContext(ctx, "engine.initialize",
		slog.String("client_name", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
		slog.String("requested_version", params.ProtocolVersion),
		slog.String("protocol_version", version),
	)

	return jsonrpc.NewResultResponse(req.ID, &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities: mcp.ServerCapabilities{
			Tools:     &mcp.ToolsCapability{},
			Resources: &mcp.ResourcesCapability{},
		},
		ServerInfo:   e.info,
		Instructions: e.instructions,
	})
}

func (e *Engine) handleToolsList(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.ListToolsRequest
	if err := decodeParams(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	descs := e.d.Catalog().Tools()
	tools := make([]mcp.Tool, len(descs))
	for i, d := range descs {
		tools[i] = d.Tool()
	}
	return jsonrpc.NewResultResponse(req.ID, &mcp.ListToolsResult{Tools: tools})
}

func (e *Engine) handleToolCall(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()

	var params mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}
	if params.Name == "" {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing tool name"))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params: missing tool name", nil), nil
	}

	res := e.d.DispatchTool(ctx, params.Name, params.Arguments)

	e.log.InfoContext(ctx, "engine.handle_request.ok",
		slog.String("tool", params.Name),
		slog.Bool("is_error", !res.OK()),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return jsonrpc.NewResultResponse(req.ID, toolResult(res))
}

// toolResult renders a dispatch result for tools/call. Failures are reported
// in-band with isError so the model can read and correct them.
func toolResult(res dispatch.Result) *mcp.CallToolResult {
	if !res.OK() {
		text := res.Error.Kind + ": " + res.Error.Message
		if res.Error.Hint != "" {
			text += "\nHint: " + res.Error.Hint
		}
		return &mcp.CallToolResult{
			Content:           []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: text}},
			IsError:           true,
			StructuredContent: map[string]any{"error": res.Error},
		}
	}

	if s, ok := res.Payload.(string); ok {
		return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: s}}}
	}
	b, err := json.MarshalIndent(res.Payload, "", "  ")
	if err != nil {
		return toolResult(dispatch.Result{Error: &dispatch.Error{
			Kind:    errkind.Of(errkind.Internal),
			Message: "encode result: " + err.Error(),
		}})
	}
	return &mcp.CallToolResult{
		Content:           []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: string(b)}},
		StructuredContent: res.Payload,
	}
}

func (e *Engine) handleResourcesList(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.ListResourcesRequest
	if err := decodeParams(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	resources := []mcp.Resource{}
	for _, d := range e.d.Catalog().Resources() {
		if d.URI != "" {
			resources = append(resources, d.Resource())
		}
	}
	return jsonrpc.NewResultResponse(req.ID, &mcp.ListResourcesResult{Resources: resources})
}

func (e *Engine) handleResourcesTemplatesList(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	templates := []mcp.ResourceTemplate{}
	for _, d := range e.d.Catalog().Resources() {
		if d.URITemplate != "" {
			templates = append(templates, d.Template())
		}
	}
	return jsonrpc.NewResultResponse(req.ID, &mcp.ListResourceTemplatesResult{ResourceTemplates: templates})
}

func (e *Engine) handleResourcesRead(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()

	var params mcp.ReadResourceRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}
	if strings.TrimSpace(params.URI) == "" {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing uri"))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params: missing uri", nil), nil
	}

	desc, res := e.d.ReadResource(ctx, params.URI)
	if !res.OK() {
		e.log.InfoContext(ctx, "engine.handle_request.fail",
			slog.String("kind", res.Error.Kind),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		)
		return resourceError(req.ID, params.URI, res.Error), nil
	}

	text, ok := res.Payload.(string)
	if !ok {
		b, err := json.Marshal(res.Payload)
		if err != nil {
			return nil, errors.Wrap(err, "encode resource")
		}
		text = string(b)
	}

	e.log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return jsonrpc.NewResultResponse(req.ID, &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{{URI: params.URI, MimeType: desc.MimeType, Text: text}},
	})
}

// resourceError maps a failure kind onto a JSON-RPC error code. The kind,
// hint and uri travel in the error data.
func resourceError(id *jsonrpc.RequestID, uri string, fail *dispatch.Error) *jsonrpc.Response {
	code := jsonrpc.ErrorCodeServerError
	switch fail.Kind {
	case errkind.Of(errkind.NotFound):
		code = jsonrpc.ErrorCodeResourceNotFound
	case errkind.Of(errkind.InvalidArguments):
		code = jsonrpc.ErrorCodeInvalidParams
	}
	data := map[string]any{"kind": fail.Kind, "uri": uri}
	if fail.Hint != "" {
		data["hint"] = fail.Hint
	}
	return jsonrpc.NewErrorResponse(id, code, fail.Message, data)
}

// decodeParams tolerates absent params for methods whose params are all
// optional.
func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
