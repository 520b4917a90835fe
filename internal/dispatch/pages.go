package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ggoodman/notion-mcp/internal/content"
	"github.com/ggoodman/notion-mcp/internal/errkind"
	"github.com/ggoodman/notion-mcp/internal/gateway"
)

const (
	defaultSearchResults = 10
	untitled             = "Untitled"
)

type pageResult struct {
	PageID         string `json:"page_id"`
	URL            string `json:"url,omitempty"`
	Title          string `json:"title,omitempty"`
	ParentID       string `json:"parent_id,omitempty"`
	ParentInferred bool   `json:"parent_inferred,omitempty"`
	Archived       bool   `json:"archived,omitempty"`
	Message        string `json:"message"`
}

type pageSummary struct {
	ID         string                           `json:"id"`
	Title      string                           `json:"title"`
	URL        string                           `json:"url,omitempty"`
	LastEdited time.Time                        `json:"last_edited"`
	Properties map[string]content.PropertyValue `json:"properties,omitempty"`
}

type pageList struct {
	Count     int           `json:"count"`
	Results   []pageSummary `json:"results"`
	Truncated bool          `json:"truncated,omitempty"`
}

func summarize(pages []content.Page, withProps bool) []pageSummary {
	out := make([]pageSummary, 0, len(pages))
	for _, p := range pages {
		s := pageSummary{ID: p.ID, Title: titleOf(p), URL: p.URL, LastEdited: p.LastEdited}
		if withProps {
			s.Properties = p.Properties
		}
		out = append(out, s)
	}
	return out
}

func titleOf(p content.Page) string {
	if p.Title == "" {
		return untitled
	}
	return p.Title
}

type createPageArgs struct {
	Title        string `json:"title" jsonschema_description:"Title of the new page."`
	Content      string `json:"content,omitempty" jsonschema_description:"Page body as markdown: headings, lists, to-dos, quotes, code fences and inline styles are converted to blocks."`
	ParentPageID string `json:"parent_page_id,omitempty" jsonschema_description:"ID of the parent page. When omitted the most recently edited page is used if the server allows it."`
}

func createPage(ctx context.Context, env Env, args createPageArgs) (any, error) {
	parent := args.ParentPageID
	inferred := false
	if parent == "" {
		if !env.ParentFallback {
			return nil, invalidArguments("missing required field %q (automatic parent selection is disabled)", "parent_page_id")
		}
		recent, err := env.Backend.RecentPages(ctx, 1)
		if err != nil {
			return nil, errors.Wrap(err, "select parent page")
		}
		if len(recent) == 0 {
			err := errkind.New(errkind.NotFound, "no parent page given and no page is visible to the integration")
			return nil, errors.WithHint(err, "Pass parent_page_id or share at least one page with the integration.")
		}
		parent, inferred = recent[0].ID, true
	}

	title, err := content.ToPropertyValue(content.PropTitle, args.Title)
	if err != nil {
		return nil, err
	}
	page, err := env.Backend.CreatePage(ctx,
		gateway.Parent{PageID: parent},
		map[string]json.RawMessage{"title": title},
		content.ToBlocks(args.Content),
	)
	if err != nil {
		return nil, err
	}
	return pageResult{
		PageID:         page.ID,
		URL:            page.URL,
		Title:          args.Title,
		ParentID:       parent,
		ParentInferred: inferred,
		Message:        fmt.Sprintf("Page %q created", args.Title),
	}, nil
}

type updatePageArgs struct {
	PageID     string         `json:"page_id" jsonschema_description:"ID of the page to update."`
	Title      *string        `json:"title,omitempty" jsonschema_description:"New title."`
	Archived   *bool          `json:"archived,omitempty" jsonschema_description:"Archive (true) or restore (false) the page."`
	Properties map[string]any `json:"properties,omitempty" jsonschema_description:"Property values keyed by property name. Simple values are encoded using the page's property types; values already in backend shape are sent as is."`
}

func updatePage(ctx context.Context, env Env, args updatePageArgs) (any, error) {
	if args.Title == nil && args.Archived == nil && len(args.Properties) == 0 {
		return nil, invalidArguments("no update given: set title, archived or properties")
	}

	var props map[string]json.RawMessage
	if args.Title != nil || len(args.Properties) > 0 {
		current, err := env.Backend.GetPage(ctx, args.PageID)
		if err != nil {
			return nil, err
		}
		types := make(map[string]string, len(current.Properties))
		for name, v := range current.Properties {
			types[name] = v.Wire
			if v.Wire == "" {
				types[name] = v.Type
			}
		}
		props, err = encodeProperties(args.Properties, types, func(name string) error {
			return errkind.New(errkind.InvalidRequest, "page %s has no property %q", args.PageID, name)
		})
		if err != nil {
			return nil, err
		}
		if args.Title != nil {
			name := current.TitleProperty
			if name == "" {
				name = "title"
			}
			if props[name], err = content.ToPropertyValue(content.PropTitle, *args.Title); err != nil {
				return nil, err
			}
		}
	}

	page, err := env.Backend.UpdatePage(ctx, args.PageID, props, args.Archived)
	if err != nil {
		return nil, err
	}
	return pageResult{
		PageID:   page.ID,
		URL:      page.URL,
		Title:    page.Title,
		Archived: page.Archived,
		Message:  "Page updated",
	}, nil
}

type searchPagesArgs struct {
	Query      string `json:"query" jsonschema_description:"Text to match against page titles."`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=100" jsonschema_description:"Maximum number of pages to return (default 10)."`
}

func searchPages(ctx context.Context, env Env, args searchPagesArgs) (any, error) {
	n := args.MaxResults
	if n <= 0 {
		n = defaultSearchResults
	}
	pages, truncated, err := env.Backend.Search(ctx, args.Query, n)
	if err != nil {
		return nil, err
	}
	results := summarize(pages, false)
	return pageList{Count: len(results), Results: results, Truncated: truncated}, nil
}

type appendToPageArgs struct {
	PageID  string `json:"page_id" jsonschema_description:"ID of the page to append to."`
	Content string `json:"content,omitempty" jsonschema_description:"Markdown to append. An empty value appends an empty paragraph."`
}

func appendToPage(ctx context.Context, env Env, args appendToPageArgs) (any, error) {
	blocks := content.ToBlocks(args.Content)
	if len(blocks) == 0 {
		blocks = []content.Block{{Type: content.BlockParagraph, RichText: []content.RichText{}}}
	}
	created, err := env.Backend.AppendBlocks(ctx, args.PageID, blocks)
	if err != nil {
		return nil, err
	}
	return struct {
		PageID         string `json:"page_id"`
		BlocksAppended int    `json:"blocks_appended"`
		Message        string `json:"message"`
	}{args.PageID, len(created), fmt.Sprintf("Content appended to page %s", args.PageID)}, nil
}

type pageIDArgs struct {
	PageID string `json:"page_id" jsonschema_description:"ID of the page."`
}

type pageContent struct {
	PageID     string    `json:"page_id"`
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	LastEdited time.Time `json:"last_edited"`
	Content    string    `json:"content"`
}

func fetchPageContent(ctx context.Context, env Env, id string) (pageContent, error) {
	page, err := env.Backend.GetPage(ctx, id)
	if err != nil {
		return pageContent{}, err
	}
	blocks, err := env.Backend.ListBlockChildren(ctx, id, 0)
	if err != nil {
		return pageContent{}, err
	}
	return pageContent{
		PageID:     page.ID,
		Title:      titleOf(page),
		URL:        page.URL,
		LastEdited: page.LastEdited,
		Content:    content.FromBlocks(blocks),
	}, nil
}

func getPageContent(ctx context.Context, env Env, args pageIDArgs) (any, error) {
	return fetchPageContent(ctx, env, args.PageID)
}
