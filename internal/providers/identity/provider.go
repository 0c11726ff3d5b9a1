package identity

import (
	"context"
	"errors"

	"github.com/fidulabs/chatlab/internal/shared/types"
)

var (
	// ErrSessionInvalid is returned when the backend affirmatively
	// reports that stored credentials are invalid or expired. The
	// coordinator treats it as session loss; any other error is
	// treated as transient.
	ErrSessionInvalid = errors.New("session invalid or expired")

	// ErrInteractiveAuthRequired is returned by Authenticate when the
	// provider cannot authenticate without redirecting the user agent.
	ErrInteractiveAuthRequired = errors.New("interactive authentication required")

	// ErrInvalidCredentials is returned by the local provider on a
	// failed login attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Provider abstracts a credential/session backend. One variant wraps
// the local session-token vault, the other a cloud OAuth identity.
//
// Initialize returns (nil, nil) when no stored credentials exist: that
// is an unauthenticated start, not an error.
type Provider interface {
	// Kind identifies the provider variant.
	Kind() types.ProviderKind

	// Initialize restores an identity from persisted credentials.
	Initialize(ctx context.Context) (*types.Identity, error)

	// Status reports the provider's current view of the session.
	// A nil error with IsAuthenticated=false is an affirmative
	// session loss; a non-nil error is a transient failure.
	Status(ctx context.Context) (types.ProviderStatus, error)

	// Authenticate starts an interactive authentication flow.
	Authenticate(ctx context.Context) error

	// RefreshToken exchanges the refresh credential for fresh tokens.
	RefreshToken(ctx context.Context) (*types.Tokens, error)

	// RevokeToken invalidates the stored credentials remotely.
	RevokeToken(ctx context.Context) error
}

// isAffirmativeLoss reports whether err means the backend explicitly
// rejected the credentials, as opposed to being unreachable.
func isAffirmativeLoss(err error) bool {
	return errors.Is(err, ErrSessionInvalid)
}
