package types

import "time"

// SessionStatus represents the coordinator's authentication state.
type SessionStatus string

const (
	StatusUnauthenticated SessionStatus = "unauthenticated"
	StatusInitializing    SessionStatus = "initializing"
	StatusAuthenticated   SessionStatus = "authenticated"
	StatusRestoring       SessionStatus = "restoring"
)

// ProviderKind identifies which identity backend produced an identity.
type ProviderKind string

const (
	ProviderLocal ProviderKind = "local"
	ProviderCloud ProviderKind = "cloud"
)

// Identity is the minimal record of an authenticated user. It carries
// only what the UI needs to render and what the coordinator needs to
// decide whether a refresh is due.
type Identity struct {
	ProviderKind ProviderKind `json:"provider_kind"`
	UserRef      string       `json:"user_ref"`
	DisplayName  string       `json:"display_name,omitempty"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
}

// SessionState is the coordinator-owned authoritative session state.
// Exactly one instance exists per coordinator; it is mutated only
// inside the coordinator's own critical sections.
type SessionState struct {
	Status        SessionStatus `json:"status"`
	Identity      *Identity     `json:"identity,omitempty"`
	LastCheckedAt time.Time     `json:"last_checked_at"`
}

// AuthStatus is the stable value projected into the reactive bridge
// and handed to subscribers. The UI never pushes it back upstream.
type AuthStatus struct {
	IsAuthenticated bool      `json:"is_authenticated"`
	Identity        *Identity `json:"identity,omitempty"`
}

// Tokens holds an access/refresh token pair from the OAuth proxy.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ProviderStatus is an identity provider's view of the current session.
type ProviderStatus struct {
	IsAuthenticated bool       `json:"is_authenticated"`
	UserRef         string     `json:"user_ref,omitempty"`
	DisplayName     string     `json:"display_name,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// EventKind identifies a coordinator subscriber event.
type EventKind string

const (
	EventSessionRestored EventKind = "session-restored"
	EventSessionLost     EventKind = "session-lost"
)

// CoordinatorStats holds coordinator statistics.
type CoordinatorStats struct {
	Status        SessionStatus `json:"status"`
	Subscribers   int           `json:"subscribers"`
	InFlightOps   int           `json:"in_flight_ops"`
	LastCheckedAt *time.Time    `json:"last_checked_at,omitempty"`
}
