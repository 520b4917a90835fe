// Command notion-mcp exposes a Notion workspace to MCP clients over stdio or
// HTTP with Server-Sent Events.
package main

import (
	"fmt"
	"os"

	"github.com/ggoodman/notion-mcp/internal/errkind"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "notion-mcp: %v\n", err)
		if hint := errkind.Hint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
