// Package httpapi exposes a raaf instance over a small JSON HTTP API built on
// the standard library ServeMux.
//
// POST /sessions/{id}/messages answers 200 for every completed or failed run
// (success=false plus an error descriptor for run failures), 400 for a
// malformed body, 404 for an unknown agent and 409 while another run owns
// the session.
package httpapi
