// Package session owns the connection to one PVE server and executes API
// requests over it.
//
// A Session is created with full connection parameters and connects eagerly.
// It holds at most one transport Handle, obtained from an Engine on Connect
// and released on Disconnect. Every request runs under the session mutex, so
// calls through one Session execute strictly one after another while distinct
// sessions are independent.
//
// Every request yields a Response envelope:
//
//	{"data": <decoded payload or {}>, "error": bool, "errorMsg": string, "statusCode": number}
//
// Error is set only for failures below HTTP (not connected, dial, TLS,
// oversized or undecodable body). A well-formed non-2xx reply keeps
// Error=false; Response.Err folds both layers into a typed *APIError so
// resource code can treat them uniformly.
package session
