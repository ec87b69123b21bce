// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (generation.go, mint.go, session.go, errors.go) hold the shared value
// types and the contracts towards the backends and the session store. No implementation code.
package domain
