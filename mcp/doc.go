// Package mcp contains the Model Context Protocol wire types the bridge
// speaks: lifecycle, tools and resources. It mirrors the wire representation
// while keeping the surface Go-friendly (exported structs with json tags,
// string constants for method names).
//
// The package is free of transport logic. The stdio and streaminghttp
// bindings implement their own framing and authentication and hand decoded
// messages to the engine, which builds responses from these types.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod).
//
// # Versions
//
// LatestProtocolVersion is answered to clients that ask for a revision the
// server does not know. Known revisions are echoed back unchanged.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
package mcp
