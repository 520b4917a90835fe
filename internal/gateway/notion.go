package gateway

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/ggoodman/notion-mcp/internal/content"
)

// Parent identifies where a new page is created: under a page or as an entry
// of a database.
type Parent struct {
	PageID     string
	DatabaseID string
}

func (p Parent) wire() map[string]string {
	if p.DatabaseID != "" {
		return map[string]string{"database_id": p.DatabaseID}
	}
	return map[string]string{"page_id": p.PageID}
}

var pagesOnly = map[string]string{"property": "object", "value": "page"}

// Search returns pages whose title matches query, in backend order.
func (c *Client) Search(ctx context.Context, query string, maxItems int) ([]content.Page, bool, error) {
	res, err := c.Execute(ctx, Request{
		Op:       OpSearch,
		Body:     map[string]any{"query": query, "filter": pagesOnly},
		MaxItems: maxItems,
	})
	if err != nil {
		return nil, false, err
	}
	pages, err := content.DecodePages(res.Items)
	return pages, res.Truncated, err
}

// RecentPages returns the n most recently edited pages, newest first.
func (c *Client) RecentPages(ctx context.Context, n int) ([]content.Page, error) {
	if n <= 0 {
		n = defaultRecentPageCount
	}
	res, err := c.Execute(ctx, Request{
		Op: OpSearch,
		Body: map[string]any{
			"filter": pagesOnly,
			"sort":   map[string]string{"direction": "descending", "timestamp": "last_edited_time"},
		},
		MaxItems: n,
	})
	if err != nil {
		return nil, err
	}
	return content.DecodePages(res.Items)
}

// GetPage retrieves a page and its properties.
func (c *Client) GetPage(ctx context.Context, id string) (content.Page, error) {
	res, err := c.Execute(ctx, Request{Op: OpGetPage, ID: id})
	if err != nil {
		return content.Page{}, err
	}
	return content.DecodePage(res.Body)
}

// CreatePage creates a page with the given properties and body. Bodies longer
// than one request allows are appended in follow-up requests.
func (c *Client) CreatePage(ctx context.Context, parent Parent, props map[string]json.RawMessage, children []content.Block) (content.Page, error) {
	first, rest := splitBlocks(children, maxChildrenPerRequest)
	body := map[string]any{
		"parent":     parent.wire(),
		"properties": props,
	}
	if len(first) > 0 {
		body["children"] = first
	}
	res, err := c.Execute(ctx, Request{Op: OpCreatePage, Body: body})
	if err != nil {
		return content.Page{}, err
	}
	page, err := content.DecodePage(res.Body)
	if err != nil {
		return content.Page{}, err
	}
	if len(rest) > 0 {
		if _, err := c.AppendBlocks(ctx, page.ID, rest); err != nil {
			return page, errors.Wrapf(err, "page %s created but appending remaining content failed", page.ID)
		}
	}
	return page, nil
}

// UpdatePage sets properties and, when archived is non-nil, the archived flag.
func (c *Client) UpdatePage(ctx context.Context, id string, props map[string]json.RawMessage, archived *bool) (content.Page, error) {
	body := map[string]any{}
	if len(props) > 0 {
		body["properties"] = props
	}
	if archived != nil {
		body["archived"] = *archived
	}
	res, err := c.Execute(ctx, Request{Op: OpUpdatePage, ID: id, Body: body})
	if err != nil {
		return content.Page{}, err
	}
	return content.DecodePage(res.Body)
}

// ListBlockChildren returns the blocks under id. Blocks with children are
// expanded recursively up to depth levels; zero means the default depth.
func (c *Client) ListBlockChildren(ctx context.Context, id string, depth int) ([]content.Block, error) {
	if depth <= 0 {
		depth = defaultChildrenDepth
	}
	res, err := c.Execute(ctx, Request{Op: OpListBlockChildren, ID: id})
	if err != nil {
		return nil, err
	}
	blocks, err := content.DecodeBlocks(res.Items)
	if err != nil {
		return nil, errors.Wrap(err, "decode blocks")
	}
	if depth == 1 {
		return blocks, nil
	}
	for i := range blocks {
		if !blocks[i].HasChildren || blocks[i].ID == "" {
			continue
		}
		children, err := c.ListBlockChildren(ctx, blocks[i].ID, depth-1)
		if err != nil {
			return nil, err
		}
		blocks[i].Children = children
	}
	return blocks, nil
}

// AppendBlocks appends blocks to the end of a page or block, in batches the
// backend accepts. It returns the created blocks.
func (c *Client) AppendBlocks(ctx context.Context, id string, blocks []content.Block) ([]content.Block, error) {
	var created []content.Block
	for len(blocks) > 0 {
		var batch []content.Block
		batch, blocks = splitBlocks(blocks, maxChildrenPerRequest)
		res, err := c.Execute(ctx, Request{
			Op:   OpAppendBlockChildren,
			ID:   id,
			Body: map[string]any{"children": batch},
		})
		if err != nil {
			return created, err
		}
		var list struct {
			Results []json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(res.Body, &list); err != nil {
			return created, errors.Wrap(err, "decode append response")
		}
		out, err := content.DecodeBlocks(list.Results)
		if err != nil {
			return created, errors.Wrap(err, "decode blocks")
		}
		created = append(created, out...)
	}
	return created, nil
}

// GetDatabase retrieves a database schema.
func (c *Client) GetDatabase(ctx context.Context, id string) (content.Database, error) {
	res, err := c.Execute(ctx, Request{Op: OpGetDatabase, ID: id})
	if err != nil {
		return content.Database{}, err
	}
	return content.DecodeDatabase(res.Body)
}

// QueryDatabase returns the entries of a database matching filter, ordered by
// sorts. filter and sorts are passed through in backend syntax.
func (c *Client) QueryDatabase(ctx context.Context, id string, filter, sorts json.RawMessage, maxItems int) ([]content.Page, bool, error) {
	body := map[string]any{}
	if len(filter) > 0 {
		body["filter"] = filter
	}
	if len(sorts) > 0 {
		body["sorts"] = sorts
	}
	res, err := c.Execute(ctx, Request{Op: OpQueryDatabase, ID: id, Body: body, MaxItems: maxItems})
	if err != nil {
		return nil, false, err
	}
	pages, err := content.DecodePages(res.Items)
	return pages, res.Truncated, err
}

func splitBlocks(blocks []content.Block, n int) ([]content.Block, []content.Block) {
	if len(blocks) <= n {
		return blocks, nil
	}
	return blocks[:n], blocks[n:]
}
