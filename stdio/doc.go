// Package stdio implements the direct-pipe transport: newline-delimited
// JSON-RPC over an io.Reader / io.Writer pair, stdin and stdout by default.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Credential       : supplied once at start (bootstrap)
//	Sessions         : exactly one, with the fixed id SessionID
//	Transport        : line oriented JSON-RPC
//
// The single session is registered through the same session manager and
// served by the same engine as the HTTP transport, so dispatch behaves
// identically.
//
// Example:
//
//	h := stdio.NewHandler(mgr, eng, sessions.Credential(token))
//	if err := h.Serve(ctx); err != nil { log.Fatal(err) }
package stdio
