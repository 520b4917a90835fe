package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(descs []Descriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.Name
	}
	return out
}

func TestBuiltinCatalog(t *testing.T) {
	c := Builtin()

	assert.Equal(t, []string{
		ToolAppendToPage,
		ToolCreateDatabaseEntry,
		ToolCreatePage,
		ToolGetPageContent,
		ToolQueryDatabase,
		ToolSearchPages,
		ToolUpdatePage,
	}, names(c.Tools()))
	assert.Equal(t, []string{ResourcePageContent, ResourceRecentPages}, names(c.Resources()))

	for _, d := range append(c.Tools(), c.Resources()...) {
		assert.NotEmpty(t, d.Description, d.Name)
	}

	for _, name := range []string{ToolCreatePage, ToolUpdatePage, ToolAppendToPage, ToolCreateDatabaseEntry} {
		d, ok := c.Lookup(name)
		require.True(t, ok)
		assert.True(t, d.Write, name)
	}
	d, _ := c.Lookup(ToolSearchPages)
	assert.False(t, d.Write)
}

func TestToolInputSchema(t *testing.T) {
	d, ok := Builtin().Lookup(ToolCreatePage)
	require.True(t, ok)

	schema := d.Tool().InputSchema
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"title"}, schema.Required)
	require.Contains(t, schema.Properties, "parent_page_id")
	assert.Equal(t, "string", schema.Properties["parent_page_id"].Type)
	assert.NotEmpty(t, schema.Properties["content"].Description)

	d, _ = Builtin().Lookup(ToolQueryDatabase)
	schema = d.Tool().InputSchema
	assert.Equal(t, "array", schema.Properties["sorts"].Type)
	require.NotNil(t, schema.Properties["sorts"].Items)
	assert.Equal(t, "object", schema.Properties["sorts"].Items.Type)

	maxResults := schema.Properties["max_results"]
	require.NotNil(t, maxResults.Minimum)
	require.NotNil(t, maxResults.Maximum)
	assert.Equal(t, 1.0, *maxResults.Minimum)
	assert.Equal(t, 1000.0, *maxResults.Maximum)

	raw, err := json.Marshal(d.Tool())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"inputSchema"`)
	assert.Contains(t, string(raw), `"maximum":1000`)
}

func TestResourceDescriptors(t *testing.T) {
	c := Builtin()

	recent, _ := c.Lookup(ResourceRecentPages)
	assert.Equal(t, "notion://recent-pages", recent.Resource().URI)
	assert.Equal(t, "text/markdown", recent.Resource().MimeType)

	page, _ := c.Lookup(ResourcePageContent)
	assert.Equal(t, "notion://pages/{page_id}", page.Template().URITemplate)
	assert.Empty(t, page.URI)
}

func TestResolveURI(t *testing.T) {
	c := Builtin()

	name, args, ok := c.ResolveURI("notion://recent-pages")
	require.True(t, ok)
	assert.Equal(t, ResourceRecentPages, name)
	assert.Nil(t, args)

	name, args, ok = c.ResolveURI("notion://pages/1a2b3c")
	require.True(t, ok)
	assert.Equal(t, ResourcePageContent, name)
	assert.JSONEq(t, `{"page_id":"1a2b3c"}`, string(args))

	name, args, ok = c.ResolveURI("notion://pages/a%20b")
	require.True(t, ok)
	assert.Equal(t, ResourcePageContent, name)
	assert.JSONEq(t, `{"page_id":"a b"}`, string(args))

	for _, uri := range []string{"notion://pages/", "notion://pages/a/b", "notion://databases/x", "https://notion.so"} {
		_, _, ok = c.ResolveURI(uri)
		assert.False(t, ok, uri)
	}
}

func TestNewCatalogRejectsInvalidDescriptors(t *testing.T) {
	noop := func(context.Context, Env, noArgs) (any, error) { return nil, nil }

	_, err := NewCatalog(NewTool("dup", noop), NewResource("dup", "x://dup", noop))
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewCatalog(Descriptor{Name: "bare"})
	assert.ErrorContains(t, err, "missing name or handler")

	_, err = NewCatalog(NewResource("nowhere", "", noop))
	assert.ErrorContains(t, err, "missing uri")
}
