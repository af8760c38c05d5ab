// Package sessions implements the session-scoped transport registry shared by
// every transport in this module. A session binds one long-lived outbound
// stream to an opaque session id and the credential the caller presented when
// the stream was opened.
//
// Layers & Roles
//
//	Registry -> striped, concurrency-safe map of session id to *Session
//	Manager  -> the Transport contract (Open / Push / Close) on top of a Registry
//	Session  -> single-writer stream handle, lifecycle state and serial work queue
//
// # Lifecycle
//
// A session moves Open -> Closing -> Closed and never returns to an earlier
// state. Once Closing begins no new writes are attempted; the session leaves
// the registry only after any in-flight write has drained. A reconnecting
// client always receives a fresh session id.
//
// # Ordering
//
// Writes to a session's stream are serialized behind a per-session mutex, so
// pushes issued in order are delivered in order. Inbound work for a session
// can be serialized with Session.Enqueue; sessions never block one another.
//
// # Credentials
//
// Credential values render as "[redacted]" through fmt and slog. Code that must
// forward the credential to a downstream system calls Credential.Reveal.
package sessions
