// Package session implements the per-browser state machines.
//
// A Session bundles a Generation, which owns the free generation quota and the
// video request lifecycle, and a Mint, which owns the wallet mint lifecycle and refills the
// quota on success. Each component allows at most one outstanding backend request; state is
// guarded by a mutex that is never held across a backend call.
package session
