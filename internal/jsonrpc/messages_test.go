package jsonrpc

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClassifiesMessages(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "request"},
		{"string id", `{"jsonrpc":"2.0","id":"a","method":"ping"}`, "request"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification"},
		{"response", `{"jsonrpc":"2.0","id":1,"result":{}}`, "response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Parse([]byte(tc.in))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got := msg.Type(); got != tc.want {
				t.Fatalf("Type() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseRejectsStructuralViolations(t *testing.T) {
	cases := []string{
		`{"jsonrpc":"1.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`,
		`{"jsonrpc":"2.0","id":1}`,
	}
	for _, in := range cases {
		if _, err := Parse([]byte(in)); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("Parse(%s) err = %v, want ErrInvalidMessage", in, err)
		}
	}
	if _, err := Parse([]byte(`{"jsonrpc":`)); err == nil || errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected syntax error, got %v", err)
	}
}

func TestResponseEncodesNullID(t *testing.T) {
	b, err := json.Marshal(NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"jsonrpc":"2.0","error":{"code":-32700,"message":"parse error"},"id":null}`
	if string(b) != want {
		t.Fatalf("got %s, want %s", b, want)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	var msg AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":42,"method":"ping"}`), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.ID.String() != "42" {
		t.Fatalf("id = %q", msg.ID.String())
	}
	b, _ := json.Marshal(msg.ID)
	if string(b) != "42" {
		t.Fatalf("marshal id = %s", b)
	}
}
