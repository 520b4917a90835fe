// Package dispatch holds the fixed catalog of tools and resources the bridge
// exposes and the Dispatcher that routes a call by name to its handler.
//
// Every call is validated against the operation's argument schema before the
// handler runs, so malformed calls never reach the backend. Handlers return a
// payload or an error; the Dispatcher folds both, and any panic, into a
// uniform Result envelope.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ggoodman/notion-mcp/internal/content"
	"github.com/ggoodman/notion-mcp/internal/errkind"
	"github.com/ggoodman/notion-mcp/internal/gateway"
	"github.com/ggoodman/notion-mcp/internal/logctx"
)

// Backend is the subset of the gateway client the handlers use.
type Backend interface {
	Search(ctx context.Context, query string, maxItems int) ([]content.Page, bool, error)
	RecentPages(ctx context.Context, n int) ([]content.Page, error)
	GetPage(ctx context.Context, id string) (content.Page, error)
	CreatePage(ctx context.Context, parent gateway.Parent, props map[string]json.RawMessage, children []content.Block) (content.Page, error)
	UpdatePage(ctx context.Context, id string, props map[string]json.RawMessage, archived *bool) (content.Page, error)
	ListBlockChildren(ctx context.Context, id string, depth int) ([]content.Block, error)
	AppendBlocks(ctx context.Context, id string, blocks []content.Block) ([]content.Block, error)
	GetDatabase(ctx context.Context, id string) (content.Database, error)
	QueryDatabase(ctx context.Context, id string, filter, sorts json.RawMessage, maxItems int) ([]content.Page, bool, error)
}

var _ Backend = (*gateway.Client)(nil)

// Env is what a handler sees of the process: the backend and the resolution
// policy for omitted parents.
type Env struct {
	Backend Backend
	// ParentFallback lets create_page nest under the most recently edited
	// page when no parent is given.
	ParentFallback bool
}

// Error is the structured failure half of a Result.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func (e *Error) Error() string { return e.Kind + ": " + e.Message }

// Result is the uniform envelope every dispatch returns. Exactly one of
// Payload and Error is set.
type Result struct {
	Payload any
	Error   *Error
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Error == nil }

// Dispatcher routes calls to catalog handlers. It holds no mutable state and
// is safe for concurrent use.
type Dispatcher struct {
	catalog *Catalog
	env     Env
	log     *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// NewDispatcher binds a catalog to an environment.
func NewDispatcher(catalog *Catalog, env Env, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{catalog: catalog, env: env, log: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Catalog returns the catalog the dispatcher serves.
func (d *Dispatcher) Catalog() *Catalog { return d.catalog }

// Dispatch runs the operation registered under name with args. Unknown names
// fail with UnknownOperation and schema violations with InvalidArguments,
// both before any backend call.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) (res Result) {
	desc, ok := d.catalog.Lookup(name)
	if !ok {
		return failure(errkind.New(errkind.UnknownOperation, "unknown operation %q", name))
	}
	ctx = logctx.WithOpData(ctx, &logctx.OpData{Name: name, Kind: desc.Kind.String()})

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			d.log.ErrorContext(ctx, "dispatch.call.panic",
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			res = failure(errkind.Mark(errors.Newf("operation %s failed: %v", name, p), errkind.Internal))
		}
		attrs := []any{slog.Int64("dur_ms", time.Since(start).Milliseconds())}
		if res.Error != nil {
			d.log.WarnContext(ctx, "dispatch.call.fail", append(attrs, slog.String("kind", res.Error.Kind))...)
		} else {
			d.log.InfoContext(ctx, "dispatch.call.ok", attrs...)
		}
	}()

	if err := validateArgs(desc.schema, args); err != nil {
		return failure(err)
	}
	payload, err := desc.handler(ctx, d.env, args)
	if err != nil {
		return failure(err)
	}
	return Result{Payload: payload}
}

// DispatchTool is Dispatch restricted to tool descriptors; resource names are
// unknown operations here.
func (d *Dispatcher) DispatchTool(ctx context.Context, name string, args json.RawMessage) Result {
	if desc, ok := d.catalog.Lookup(name); ok && desc.Kind != KindTool {
		return failure(errkind.New(errkind.UnknownOperation, "unknown tool %q", name))
	}
	return d.Dispatch(ctx, name, args)
}

// ReadResource resolves uri against the catalog's resources and dispatches
// the match. A uri that matches nothing fails with NotFound.
func (d *Dispatcher) ReadResource(ctx context.Context, uri string) (Descriptor, Result) {
	name, args, ok := d.catalog.ResolveURI(uri)
	if !ok {
		known := make([]string, 0, len(d.catalog.Resources()))
		for _, r := range d.catalog.Resources() {
			if r.URI != "" {
				known = append(known, r.URI)
			} else {
				known = append(known, r.URITemplate)
			}
		}
		err := errkind.New(errkind.NotFound, "no resource matches %q", uri)
		err = errors.WithHintf(err, "Known resources: %s.", strings.Join(known, ", "))
		return Descriptor{}, failure(err)
	}
	desc, _ := d.catalog.Lookup(name)
	return desc, d.Dispatch(ctx, name, args)
}

func failure(err error) Result {
	return Result{Error: &Error{
		Kind:    errkind.Of(err),
		Message: err.Error(),
		Hint:    errkind.Hint(err),
	}}
}

func invalidArguments(format string, args ...any) error {
	return errkind.Mark(errors.Newf("invalid arguments: "+format, args...), errkind.InvalidArguments)
}
