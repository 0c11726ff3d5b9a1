// Package identity implements the identity provider capability for the
// chatlab backend.
//
// Two variants exist:
//   - LocalProvider: wraps the local session-token vault. Accounts are
//     bcrypt-hashed; the active session token is persisted as a hint
//     file so a restart can restore the session.
//   - CloudProvider: wraps the backend OAuth proxy that guards the
//     cloud storage account. It owns the access/refresh token pair,
//     refreshes with a safety margin before expiry, and persists the
//     refresh token as its restart hint.
//
// Error contract: Initialize returns (nil, nil) when no stored
// credentials exist. ErrSessionInvalid marks an affirmative rejection
// by the backend; any other error is transient and must not be treated
// as logout by callers.
package identity
