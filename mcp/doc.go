// Package mcp contains the protocol data types and constants exchanged with
// connected agents. It mirrors the wire representation of the Model Context
// Protocol subset served by this module (initialization, ping and tools) while
// keeping the surface Go-friendly: exported structs with json tags and string
// constants for method names.
//
// The package is free of transport logic. The SSE and stdio transports import
// these types but implement their own framing, and the engine serializes them
// into JSON-RPC envelopes.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
package mcp
