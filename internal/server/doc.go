// Package server exposes package backend over HTTP.
//
// Every route lives under /api/v1 and answers with a JSON envelope,
// {"success":true,...} or {"success":false,"error":"...","code":"..."}.
// Login is public; everything else needs a bearer token from POST /login.
// Plan routes additionally check the caller's plan access, and meeting
// relabeling and user management are admin only.
package server
