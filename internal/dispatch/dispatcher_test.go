package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggoodman/notion-mcp/internal/config"
	"github.com/ggoodman/notion-mcp/internal/gateway"
)

type call struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeNotion routes "METHOD /path" to canned responses and records every
// request it receives.
type fakeNotion struct {
	mu     sync.Mutex
	calls  []call
	routes map[string]func(body map[string]any) (int, string)
}

func (f *fakeNotion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call{Method: r.Method, Path: r.URL.Path, Body: body})
	route := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if route == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"object":"error","status":404,"code":"object_not_found","message":"Could not find object."}`))
		return
	}
	status, resp := route(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(resp))
}

func (f *fakeNotion) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func static(status int, body string) func(map[string]any) (int, string) {
	return func(map[string]any) (int, string) { return status, body }
}

func newTestDispatcher(t *testing.T, routes map[string]func(map[string]any) (int, string), fallback bool) (*Dispatcher, *fakeNotion) {
	t.Helper()
	fake := &fakeNotion{routes: routes}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := gateway.New(
		config.Notion{APIKey: "secret_dispatch_test", BaseURL: srv.URL, MaxRetries: 3, RateLimit: 1000},
		gateway.WithLogger(discard),
		gateway.WithBackoff(time.Millisecond, time.Millisecond),
	)
	require.NoError(t, err)

	d := NewDispatcher(Builtin(), Env{Backend: client, ParentFallback: fallback}, WithLogger(discard))
	return d, fake
}

func TestSearchPagesCombinesAllResultPages(t *testing.T) {
	d, fake := newTestDispatcher(t, map[string]func(map[string]any) (int, string){
		"POST /search": func(body map[string]any) (int, string) {
			if body["start_cursor"] == nil {
				return 200, `{"object":"list","results":[{"object":"page","id":"p1","url":"https://notion.so/p1","properties":{"title":{"type":"title","title":[{"plain_text":"Meeting notes 1","text":{"content":"Meeting notes 1"}}]}}}],"has_more":true,"next_cursor":"c2"}`
			}
			return 200, `{"object":"list","results":[{"object":"page","id":"p2","url":"https://notion.so/p2","properties":{"title":{"type":"title","title":[{"plain_text":"Meeting notes 2","text":{"content":"Meeting notes 2"}}]}}}],"has_more":false,"next_cursor":null}`
		},
	}, true)

	res := d.Dispatch(context.Background(), ToolSearchPages, json.RawMessage(`{"query":"meeting notes"}`))
	require.True(t, res.OK(), "%+v", res.Error)

	list, ok := res.Payload.(pageList)
	require.True(t, ok)
	assert.Equal(t, 2, list.Count)
	assert.False(t, list.Truncated)
	require.Len(t, list.Results, 2)
	assert.Equal(t, "p1", list.Results[0].ID)
	assert.Equal(t, "Meeting notes 1", list.Results[0].Title)
	assert.Equal(t, "p2", list.Results[1].ID)

	calls := fake.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "meeting notes", calls[0].Body["query"])
	assert.Equal(t, "c2", calls[1].Body["start_cursor"])
}

func TestCreateDatabaseEntryRejectsUnknownProperty(t *testing.T) {
	d, fake := newTestDispatcher(t, map[string]func(map[string]any) (int, string){
		"GET /databases/db1": static(200, `{"object":"database","id":"db1","title":[{"plain_text":"Tasks"}],"properties":{
			"Name":{"id":"title","name":"Name","type":"title","title":{}},
			"Done":{"id":"a1","name":"Done","type":"checkbox","checkbox":{}}
		}}`),
	}, true)

	res := d.Dispatch(context.Background(), ToolCreateDatabaseEntry,
		json.RawMessage(`{"database_id":"db1","properties":{"Status":{"select":{"name":"Todo"}}}}`))
	require.False(t, res.OK())
	assert.Equal(t, "InvalidRequest", res.Error.Kind)
	assert.Contains(t, res.Error.Message, `"Status"`)
	assert.Contains(t, res.Error.Hint, "Done, Name")

	calls := fake.recorded()
	require.Len(t, calls, 1, "no page is created")
	assert.Equal(t, "/databases/db1", calls[0].Path)
}

func TestAppendToMissingPageIsNotFound(t *testing.T) {
	d, fake := newTestDispatcher(t, nil, true)

	res := d.Dispatch(context.Background(), ToolAppendToPage, json.RawMessage(`{"page_id":"missing"}`))
	require.False(t, res.OK())
	assert.Equal(t, "NotFound", res.Error.Kind)
	assert.Contains(t, res.Error.Hint, "shared with the integration")
	assert.NotContains(t, res.Error.Message, "secret_dispatch_test")

	calls := fake.recorded()
	require.Len(t, calls, 1, "404 is not retried")
	assert.Equal(t, http.MethodPatch, calls[0].Method)
	assert.Equal(t, "/blocks/missing/children", calls[0].Path)
}

func TestValidationHappensBeforeBackend(t *testing.T) {
	cases := []struct {
		name     string
		op       string
		args     string
		contains string
	}{
		{"missing required", ToolSearchPages, `{}`, `missing required field "query"`},
		{"null required", ToolSearchPages, `{"query":null}`, `missing required field "query"`},
		{"wrong type", ToolSearchPages, `{"query":5}`, `"query" must be of type string, got number`},
		{"unknown field", ToolSearchPages, `{"query":"x","limit":3}`, `unknown field "limit"`},
		{"below minimum", ToolSearchPages, `{"query":"x","max_results":0}`, `"max_results" must be at least 1`},
		{"not an integer", ToolSearchPages, `{"query":"x","max_results":1.5}`, `"max_results" must be an integer`},
		{"blank id", ToolAppendToPage, `{"page_id":"  "}`, `"page_id" must not be empty`},
		{"wrong bool", ToolUpdatePage, `{"page_id":"p","archived":"yes"}`, `"archived" must be of type boolean`},
		{"no update", ToolUpdatePage, `{"page_id":"p"}`, `no update given`},
		{"properties not object", ToolCreateDatabaseEntry, `{"database_id":"db1","properties":[]}`, `"properties" must be of type object, got array`},
		{"sorts not array", ToolQueryDatabase, `{"database_id":"db1","sorts":{}}`, `"sorts" must be of type array`},
		{"sort item not object", ToolQueryDatabase, `{"database_id":"db1","sorts":["x"]}`, `"sorts[0]" must be of type object`},
		{"not an object", ToolGetPageContent, `["p1"]`, `arguments must be a JSON object`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, fake := newTestDispatcher(t, nil, true)
			res := d.Dispatch(context.Background(), tc.op, json.RawMessage(tc.args))
			require.False(t, res.OK())
			assert.Equal(t, "InvalidArguments", res.Error.Kind)
			assert.Contains(t, res.Error.Message, tc.contains)
			assert.Empty(t, fake.recorded(), "backend must not be called")
		})
	}
}

func TestUnknownOperation(t *testing.T) {
	d, fake := newTestDispatcher(t, nil, true)
	res := d.Dispatch(context.Background(), "delete_workspace", nil)
	require.False(t, res.OK())
	assert.Equal(t, "UnknownOperation", res.Error.Kind)
	assert.Contains(t, res.Error.Message, "delete_workspace")
	assert.Empty(t, fake.recorded())
}

func TestPanicsBecomeInternalErrors(t *testing.T) {
	boom := NewTool("boom", func(context.Context, Env, noArgs) (any, error) {
		panic("handler exploded")
	})
	c, err := NewCatalog(boom)
	require.NoError(t, err)
	d := NewDispatcher(c, Env{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	res := d.Dispatch(context.Background(), "boom", nil)
	require.False(t, res.OK())
	assert.Equal(t, "Internal", res.Error.Kind)
	assert.Contains(t, res.Error.Message, "handler exploded")
}
