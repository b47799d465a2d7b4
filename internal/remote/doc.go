// Package remote is the client side of the attendance HTTP API.
//
// API is the set of actions the sync engine and session need from the
// authoritative store. Client implements it over HTTP with a bearer token
// and a client-side rate limiter. Every response body is an envelope
//
//	{"success": true, ...}
//	{"success": false, "error": "...", "code": "..."}
//
// and every failure is returned as an *Error classified by Kind. Only
// KindAuth means the server definitively rejected the session; the sync
// engine halts on that and nothing else.
package remote
