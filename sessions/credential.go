package sessions

import "log/slog"

const redacted = "[redacted]"

// Credential is the opaque token a caller supplied when opening a session.
// It is never interpreted by this package.
type Credential string

// String implements fmt.Stringer without exposing the value.
func (c Credential) String() string { return redacted }

// GoString implements fmt.GoStringer without exposing the value.
func (c Credential) GoString() string { return redacted }

// LogValue implements slog.LogValuer without exposing the value.
func (c Credential) LogValue() slog.Value { return slog.StringValue(redacted) }

// MarshalJSON encodes the redaction marker instead of the value.
func (c Credential) MarshalJSON() ([]byte, error) { return []byte(`"` + redacted + `"`), nil }

// Reveal returns the raw credential for forwarding to downstream calls.
func (c Credential) Reveal() string { return string(c) }

// IsZero reports whether no credential was supplied.
func (c Credential) IsZero() bool { return c == "" }

// CredentialContext is the (session id, credential) pair handed to tool
// handlers.
type CredentialContext struct {
	SessionID  string
	Credential Credential
}
