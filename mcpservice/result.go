package mcpservice

import (
	"encoding/json"
	"fmt"

	"github.com/ggoodman/shiprocket-mcp-go/mcp"
)

// FailureKind classifies why an invocation did not succeed.
type FailureKind string

const (
	FailureUnknownTool    FailureKind = "unknown_tool"
	FailureInvalidInput   FailureKind = "invalid_input"
	FailureSessionExpired FailureKind = "session_expired"
	FailureUpstream       FailureKind = "upstream_error"
	FailureInternal       FailureKind = "internal_error"
)

// Failure is a typed invocation failure. It implements error so handlers can
// return it directly.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Errorf builds a Failure of the given kind.
func Errorf(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// UpstreamError builds an upstream_error Failure carrying a caller-safe message.
func UpstreamError(msg string) *Failure {
	return &Failure{Kind: FailureUpstream, Message: msg}
}

// Result is the outcome of one invocation: content on success, Failure
// otherwise.
type Result struct {
	Content []mcp.ContentBlock
	Failure *Failure
}

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.Failure == nil }

// TextResult returns a successful result with one text block.
func TextResult(text string) Result {
	return Result{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: text}}}
}

// JSONResult marshals v and returns it as a single text block.
func JSONResult(v any) (Result, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("marshal tool result: %w", err)
	}
	return TextResult(string(b)), nil
}

// FailureResult wraps f as a Result.
func FailureResult(f *Failure) Result {
	return Result{Failure: f}
}

// CallToolResult converts r into its wire form. Failures are rendered as an
// error result whose text is the JSON encoding of the Failure and whose
// structured content carries the same fields.
func (r Result) CallToolResult() *mcp.CallToolResult {
	if r.Failure == nil {
		content := r.Content
		if content == nil {
			content = []mcp.ContentBlock{}
		}
		return &mcp.CallToolResult{Content: content}
	}

	b, _ := json.Marshal(r.Failure)
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: string(b)}},
		IsError: true,
		StructuredContent: map[string]any{
			"kind":    string(r.Failure.Kind),
			"message": r.Failure.Message,
		},
	}
}
