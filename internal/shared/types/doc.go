// Package types defines shared data structures for the chatlab backend.
//
// Core Types:
//   - SessionState/AuthStatus: Coordinator-owned authentication state
//   - Identity: Minimal record of an authenticated user
//   - Workspace: Data-isolation boundary (personal or shared)
//   - StorageMode: Active storage adapter selection
//
// These types are shared across domain managers, providers, and the
// HTTP layer. They carry no behavior beyond small helpers and are safe
// to copy.
package types
