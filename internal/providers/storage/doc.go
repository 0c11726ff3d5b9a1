// Package storage implements the storage adapter capability for the
// chatlab backend.
//
// Three variants back the three storage modes:
//   - FilesystemAdapter: plain local directories
//   - VaultAdapter: the local vault daemon's HTTP API, with retries
//   - CloudAdapter: the drive gateway over the user's cloud account
//
// Adapters are retargeted with SwitchWorkspace and prepared with
// Reinitialize; the workspace manager drives both and owns rollback
// when reinitialization fails.
package storage
