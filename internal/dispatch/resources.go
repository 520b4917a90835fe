package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ggoodman/notion-mcp/internal/content"
)

const recentPageCount = 20

type noArgs struct{}

func recentPages(ctx context.Context, env Env, _ noArgs) (any, error) {
	pages, err := env.Backend.RecentPages(ctx, recentPageCount)
	if err != nil {
		return nil, err
	}
	return renderPageList("Recently Edited Pages", pages), nil
}

func renderPageList(heading string, pages []content.Page) string {
	var sb strings.Builder
	sb.WriteString("# " + heading + "\n")
	if len(pages) == 0 {
		sb.WriteString("\nNo pages are shared with the integration.\n")
		return sb.String()
	}
	for _, p := range pages {
		sb.WriteString("\n- **" + titleOf(p) + "**\n")
		fmt.Fprintf(&sb, "  - ID: `%s`\n", p.ID)
		if p.URL != "" {
			fmt.Fprintf(&sb, "  - URL: %s\n", p.URL)
		}
		if !p.LastEdited.IsZero() {
			fmt.Fprintf(&sb, "  - Last edited: %s\n", p.LastEdited.UTC().Format(time.RFC3339))
		}
	}
	return sb.String()
}

func pageContentResource(ctx context.Context, env Env, args pageIDArgs) (any, error) {
	pc, err := fetchPageContent(ctx, env, args.PageID)
	if err != nil {
		return nil, err
	}
	if pc.Content == "" {
		return "# " + pc.Title + "\n", nil
	}
	return "# " + pc.Title + "\n\n" + pc.Content + "\n", nil
}
