// Package app provides the application service layer.
//
// Keeps the registry of live browser sessions, restores them from the session store, runs
// generation and mint submits with a context detached from the HTTP request, persists the
// settled state and evicts idle sessions. Depends on domain interfaces, not concrete
// implementations.
package app
