package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggoodman/shiprocket-mcp-go/sessions"
)

type rateArgs struct {
	Pickup   string   `json:"pickup_postcode" jsonschema:"description=Pickup postcode"`
	Delivery string   `json:"delivery_postcode"`
	Weight   float64  `json:"weight_in_kg"`
	Mode     string   `json:"cod_or_prepaid" jsonschema:"enum=COD,enum=PREPAID"`
	Note     string   `json:"note,omitempty"`
	Parcel   *parcel  `json:"parcel,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type parcel struct {
	Length int `json:"length"`
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func newRateTool(t *testing.T, fn func(context.Context, sessions.CredentialContext, rateArgs) (Result, error)) ToolDescriptor {
	t.Helper()
	tool, err := NewTool("rate", fn, WithToolDescription("rates"))
	require.NoError(t, err)
	return tool
}

func TestNewTool_SchemaShape(t *testing.T) {
	tool := newRateTool(t, func(context.Context, sessions.CredentialContext, rateArgs) (Result, error) {
		return TextResult("ok"), nil
	})

	var doc map[string]any
	require.NoError(t, json.Unmarshal(tool.Schema.JSON(), &doc))

	assert.Equal(t, "object", doc["type"])
	assert.NotContains(t, doc, "$schema")
	assert.NotContains(t, doc, "$id")
	assert.Equal(t, false, doc["additionalProperties"])
	assert.ElementsMatch(t,
		[]any{"pickup_postcode", "delivery_postcode", "weight_in_kg", "cod_or_prepaid"},
		doc["required"])

	props := doc["properties"].(map[string]any)
	mode := props["cod_or_prepaid"].(map[string]any)
	assert.Equal(t, []any{"COD", "PREPAID"}, mode["enum"])
	weight := props["weight_in_kg"].(map[string]any)
	assert.Equal(t, "number", weight["type"])
	pickup := props["pickup_postcode"].(map[string]any)
	assert.Equal(t, "Pickup postcode", pickup["description"])
}

func TestInputSchema_Validate(t *testing.T) {
	tool := newRateTool(t, func(context.Context, sessions.CredentialContext, rateArgs) (Result, error) {
		return TextResult("ok"), nil
	})

	valid := `{"pickup_postcode":"110001","delivery_postcode":"560001","weight_in_kg":1.5,"cod_or_prepaid":"COD"}`
	require.NoError(t, tool.Schema.Validate(raw(valid)))
	require.NoError(t, tool.Schema.Validate(raw(`{"pickup_postcode":"1","delivery_postcode":"2","weight_in_kg":1,"cod_or_prepaid":"PREPAID","parcel":{"length":3},"tags":["a"]}`)))

	cases := map[string]string{
		"missing required": `{"pickup_postcode":"110001"}`,
		"wrong type":       `{"pickup_postcode":"110001","delivery_postcode":"560001","weight_in_kg":"heavy","cod_or_prepaid":"COD"}`,
		"bad enum":         `{"pickup_postcode":"110001","delivery_postcode":"560001","weight_in_kg":1,"cod_or_prepaid":"CASH"}`,
		"unknown field":    `{"pickup_postcode":"110001","delivery_postcode":"560001","weight_in_kg":1,"cod_or_prepaid":"COD","extra":true}`,
		"nested type":      `{"pickup_postcode":"1","delivery_postcode":"2","weight_in_kg":1,"cod_or_prepaid":"COD","parcel":{"length":"long"}}`,
		"array items":      `{"pickup_postcode":"1","delivery_postcode":"2","weight_in_kg":1,"cod_or_prepaid":"COD","tags":[1]}`,
		"not an object":    `[1,2,3]`,
		"not json":         `{`,
		"empty payload":    ``,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, tool.Schema.Validate(raw(payload)))
		})
	}
}

func TestNewTool_HandlerDecodesArgs(t *testing.T) {
	var got rateArgs
	var gotCred sessions.CredentialContext
	tool := newRateTool(t, func(_ context.Context, cred sessions.CredentialContext, a rateArgs) (Result, error) {
		got, gotCred = a, cred
		return TextResult("done"), nil
	})

	cred := sessions.CredentialContext{SessionID: "s1", Credential: "tok"}
	res, err := tool.Handler(context.Background(), cred,
		raw(`{"pickup_postcode":"110001","delivery_postcode":"560001","weight_in_kg":2.5,"cod_or_prepaid":"PREPAID"}`))
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "110001", got.Pickup)
	assert.InDelta(t, 2.5, got.Weight, 0.0001)
	assert.Equal(t, cred, gotCred)
}

func TestNewTool_RejectsMissingPieces(t *testing.T) {
	_, err := NewTool[rateArgs]("", func(context.Context, sessions.CredentialContext, rateArgs) (Result, error) {
		return Result{}, nil
	})
	require.Error(t, err)

	_, err = NewTool[rateArgs]("x", nil)
	require.Error(t, err)
}

func TestToolRegistry(t *testing.T) {
	noop := func(context.Context, sessions.CredentialContext, struct{}) (Result, error) {
		return TextResult(""), nil
	}
	a, err := NewTool("a", noop, WithToolDescription("first"))
	require.NoError(t, err)
	b, err := NewTool("b", noop)
	require.NoError(t, err)

	reg, err := NewToolRegistry(a, b)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	got, ok := reg.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "first", got.Description)
	_, ok = reg.Lookup("missing")
	assert.False(t, ok)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.JSONEq(t, string(a.Schema.JSON()), string(list[0].InputSchema))

	_, err = NewToolRegistry(a, a)
	require.True(t, errors.Is(err, ErrDuplicateTool))

	_, err = NewToolRegistry(ToolDescriptor{Name: "x"})
	require.Error(t, err)
}

func TestResult_CallToolResult(t *testing.T) {
	ok := TextResult("hello").CallToolResult()
	assert.False(t, ok.IsError)
	require.Len(t, ok.Content, 1)
	assert.Equal(t, "hello", ok.Content[0].Text)

	fail := FailureResult(UpstreamError("boom")).CallToolResult()
	assert.True(t, fail.IsError)
	assert.JSONEq(t, `{"kind":"upstream_error","message":"boom"}`, fail.Content[0].Text)
	assert.Equal(t, "upstream_error", fail.StructuredContent["kind"])

	empty := Result{}.CallToolResult()
	b, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[]}`, string(b))

	var f *Failure
	require.True(t, errors.As(error(Errorf(FailureInvalidInput, "bad %s", "x")), &f))
	assert.Equal(t, "bad x", f.Message)
}
