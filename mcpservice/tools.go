package mcpservice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/shiprocket-mcp-go/sessions"
)

// ToolHandler runs one invocation. The payload has already passed schema
// validation.
type ToolHandler func(ctx context.Context, cred sessions.CredentialContext, payload json.RawMessage) (Result, error)

// ToolDescriptor is a registered tool.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      *InputSchema
	Handler     ToolHandler
}

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties controls whether unknown fields are
// allowed. When false (default) the schema sets additionalProperties=false and
// payloads with unknown fields fail validation.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool constructs a ToolDescriptor from a typed argument struct A. The
// schema is reflected from A and the validated payload is decoded into A
// before fn runs.
func NewTool[A any](name string, fn func(ctx context.Context, cred sessions.CredentialContext, args A) (Result, error), opts ...ToolOption) (ToolDescriptor, error) {
	if name == "" {
		return ToolDescriptor{}, fmt.Errorf("tool name is required")
	}
	if fn == nil {
		return ToolDescriptor{}, fmt.Errorf("tool %q: handler is required", name)
	}

	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	schema, err := reflectInputSchema[A](cfg.allowAdditionalProperties)
	if err != nil {
		return ToolDescriptor{}, fmt.Errorf("tool %q: %w", name, err)
	}

	handler := func(ctx context.Context, cred sessions.CredentialContext, payload json.RawMessage) (Result, error) {
		var a A
		if len(payload) > 0 && string(payload) != "null" {
			if err := json.Unmarshal(payload, &a); err != nil {
				return Result{}, Errorf(FailureInvalidInput, "decode arguments: %v", err)
			}
		}
		return fn(ctx, cred, a)
	}

	return ToolDescriptor{
		Name:        name,
		Description: cfg.description,
		Schema:      schema,
		Handler:     handler,
	}, nil
}
