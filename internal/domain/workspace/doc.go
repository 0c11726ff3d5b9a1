// Package workspace provides workspace registry and storage-mode
// management for the chatlab backend.
//
// The Manager tracks one virtual "personal" workspace (nil id, never
// persisted) plus zero or more shared workspaces registered remotely.
// It selects the active storage adapter by mode, gates switches on the
// session coordinator's authentication state, and guarantees that a
// failed switch leaves the previous workspace active.
//
// Remote registry sync is opportunistic: LoadWorkspaces falls back to
// the last-known cached contents on any remote failure so it never
// blocks the UI.
package workspace
