// Package ssehttp implements the dual-channel HTTP transport: a long-lived
// Server-Sent Events response carries every server-to-client message while
// client-to-server messages arrive as individual POST requests.
//
// Wire flow
//
//	GET  /sse?st=<credential>          -> 200 text/event-stream
//	                                      event: endpoint
//	                                      data: /messages?sessionId=<id>
//	POST /messages?sessionId=<id>      -> 202 Accepted
//	                                      (reply pushed as "event: message")
//
// The credential may also be presented as an Authorization bearer token. It
// is checked by an auth.Authenticator and then stored on the session
// unchanged. Closing the GET request closes the session.
//
// The handler also serves GET /health-check and, when configured, GET
// /metrics. Every other route, and any panic, is answered with a small JSON
// envelope {"success":false,"message":...}.
package ssehttp
