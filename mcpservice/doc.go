// Package mcpservice holds the tool side of the server: typed tool
// construction, the read-only tool registry and the outcome types tools
// return.
//
// Tools are declared with NewTool using a Go struct as the argument type.
// The struct is reflected into a JSON Schema (github.com/invopop/jsonschema)
// which is both advertised through tools/list and compiled into a validator
// (github.com/google/jsonschema-go). Payloads are validated before the
// handler runs, so handlers only ever see well-formed arguments.
//
// Example:
//
//	type echoArgs struct {
//	    Text string `json:"text" jsonschema:"description=Text to echo"`
//	}
//
//	echo, err := mcpservice.NewTool("echo",
//	    func(ctx context.Context, cred sessions.CredentialContext, a echoArgs) (mcpservice.Result, error) {
//	        return mcpservice.TextResult(a.Text), nil
//	    },
//	    mcpservice.WithToolDescription("Echo text back"),
//	)
//
// A handler that returns a *Failure keeps its failure kind; any other error is
// reported to the caller as an internal error without detail.
package mcpservice
