package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggoodman/notion-mcp/internal/content"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

type recorder struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (r *recorder) add(req *http.Request) map[string]any {
	var body map[string]any
	_ = json.NewDecoder(req.Body).Decode(&body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, recordedRequest{Method: req.Method, Path: req.URL.Path, Body: body})
	return body
}

func (r *recorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.reqs...)
}

func TestSearchFiltersPages(t *testing.T) {
	rec := &recorder{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		_, _ = w.Write([]byte(`{"object":"list","results":[
			{"object":"page","id":"p1","properties":{"title":{"type":"title","title":[{"type":"text","text":{"content":"Meeting notes"}}]}}}
		],"has_more":false,"next_cursor":null}`))
	}))

	pages, truncated, err := c.Search(context.Background(), "meeting", 10)
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, pages, 1)
	assert.Equal(t, "Meeting notes", pages[0].Title)

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/search", reqs[0].Path)
	assert.Equal(t, "meeting", reqs[0].Body["query"])
	assert.Equal(t, map[string]any{"property": "object", "value": "page"}, reqs[0].Body["filter"])
}

func TestRecentPagesSortsByLastEdited(t *testing.T) {
	rec := &recorder{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		_, _ = w.Write([]byte(`{"object":"list","results":[{"object":"page","id":"p1"}],"has_more":false}`))
	}))

	pages, err := c.RecentPages(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	body := rec.all()[0].Body
	assert.Equal(t, map[string]any{"direction": "descending", "timestamp": "last_edited_time"}, body["sort"])
	assert.Equal(t, float64(1), body["page_size"])
}

func TestCreatePageSplitsLargeBodies(t *testing.T) {
	rec := &recorder{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := rec.add(r)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/pages":
			_, _ = w.Write([]byte(`{"object":"page","id":"new"}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/blocks/new/children":
			children, _ := body["children"].([]any)
			results := make([]string, len(children))
			for i := range children {
				results[i] = fmt.Sprintf(`{"object":"block","id":"b%d","type":"paragraph","paragraph":{"rich_text":[]}}`, i)
			}
			_, _ = w.Write([]byte(`{"object":"list","results":[` + strings.Join(results, ",") + `]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	blocks := make([]content.Block, 150)
	for i := range blocks {
		blocks[i] = content.Block{Type: content.BlockParagraph, RichText: content.TextSpans(fmt.Sprint(i))}
	}
	title, err := content.ToPropertyValue(content.PropTitle, "Big")
	require.NoError(t, err)

	page, err := c.CreatePage(context.Background(), Parent{PageID: "parent"}, map[string]json.RawMessage{"title": title}, blocks)
	require.NoError(t, err)
	assert.Equal(t, "new", page.ID)

	reqs := rec.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, map[string]any{"page_id": "parent"}, reqs[0].Body["parent"])
	assert.Len(t, reqs[0].Body["children"], 100)
	assert.Len(t, reqs[1].Body["children"], 50)
}

func TestListBlockChildrenRecurses(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/blocks/page/children":
			_, _ = w.Write([]byte(`{"object":"list","has_more":false,"results":[
				{"object":"block","id":"a","type":"bulleted_list_item","has_children":true,"bulleted_list_item":{"rich_text":[{"type":"text","text":{"content":"parent"}}]}},
				{"object":"block","id":"b","type":"divider","divider":{}}
			]}`))
		case "/blocks/a/children":
			_, _ = w.Write([]byte(`{"object":"list","has_more":false,"results":[
				{"object":"block","id":"c","type":"bulleted_list_item","bulleted_list_item":{"rich_text":[{"type":"text","text":{"content":"child"}}]}}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	blocks, err := c.ListBlockChildren(context.Background(), "page", 0)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Len(t, blocks[0].Children, 1)
	assert.Equal(t, "- parent\n    - child\n\n---", content.FromBlocks(blocks))
}

func TestQueryDatabasePassesFilter(t *testing.T) {
	rec := &recorder{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		_, _ = w.Write([]byte(`{"object":"list","results":[{"object":"page","id":"e1"},{"object":"page","id":"e2"}],"has_more":true,"next_cursor":"x"}`))
	}))

	pages, truncated, err := c.QueryDatabase(context.Background(), "db1",
		json.RawMessage(`{"property":"Done","checkbox":{"equals":false}}`), nil, 2)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, pages, 2)

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/databases/db1/query", reqs[0].Path)
	assert.Equal(t, map[string]any{"property": "Done", "checkbox": map[string]any{"equals": false}}, reqs[0].Body["filter"])
	assert.NotContains(t, reqs[0].Body, "sorts")
}
