// Package session houses concrete implementations of core.SessionStore plus
// the per-session Locker that gives a run exclusive ownership of a session.
// The interface itself (and the Session struct) live in the core package so
// higher level packages (runner, httpapi) never depend on concrete storage.
//
// Additional backends live in sub‑packages (see session/libsql) without
// changing any calling code; only the wiring layer decides which
// implementation to instantiate.
package session
