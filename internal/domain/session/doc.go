// Package session provides the session/identity coordinator for the
// chatlab backend.
//
// The Coordinator reconciles two independent identity backends (the
// local session-token vault and the cloud OAuth identity) behind a
// single authoritative session state. Every UI lifecycle entry point
// funnels through it: app boot calls Initialize, visibility-regained
// handlers call CheckAndRestore, explicit login and the OAuth callback
// call ReAuthenticate, logout calls ClearAuth.
//
// Coordination discipline:
//   - Single-flight: at most one network-issuing operation per kind is
//     outstanding; concurrent callers share the in-flight result.
//   - Debounce: restoration checks inside a 2s window reuse the last
//     result without I/O (the first call always proceeds).
//   - Generations: ReAuthenticate and ClearAuth invalidate in-flight
//     work; stale results are discarded on arrival, never applied.
//   - Failure policy: transient provider errors preserve an existing
//     session; only an affirmative session loss downgrades it.
//
// State transitions and bridge/subscriber notifications happen
// strictly after the underlying work resolves and strictly before the
// coordinator call returns.
package session
