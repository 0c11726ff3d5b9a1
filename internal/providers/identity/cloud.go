package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/fidulabs/chatlab/internal/infrastructure/logging"
	"github.com/fidulabs/chatlab/internal/infrastructure/resilience"
	"github.com/fidulabs/chatlab/internal/shared/types"
)

// refreshMargin is subtracted from the reported token lifetime so a
// token nearing expiry is treated as already expired.
const refreshMargin = 5 * time.Minute

const refreshHintFile = "oauth.json"

// CloudConfig configures the cloud OAuth identity provider.
type CloudConfig struct {
	// ProxyURL is the base URL of the backend OAuth-secret proxy.
	ProxyURL string
	// Dir is where the refresh-token hint is persisted.
	Dir string
	// Timeout bounds each proxy round-trip.
	Timeout time.Duration
}

// tokenResponse is the proxy's shape for exchange and refresh replies.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	UserRef      string `json:"user_ref"`
	DisplayName  string `json:"display_name,omitempty"`
}

// errorResponse is the proxy's error body.
type errorResponse struct {
	Error string `json:"error"`
}

// refreshHint is the persisted credential needed to restore a session
// after a process restart.
type refreshHint struct {
	RefreshToken string `json:"refresh_token"`
	UserRef      string `json:"user_ref"`
	DisplayName  string `json:"display_name,omitempty"`
}

// CloudProvider implements Provider over the backend OAuth proxy,
// granting access to the user's cloud storage account. Token refresh
// goes through a circuit breaker so a flapping proxy does not get
// hammered by restoration checks.
type CloudProvider struct {
	cfg     CloudConfig
	client  *resty.Client
	breaker *resilience.Breaker
	logger  *logging.Logger

	mu          sync.Mutex
	tokens      *types.Tokens
	userRef     string
	displayName string
}

// NewCloudProvider creates a cloud OAuth identity provider.
func NewCloudProvider(cfg CloudConfig, logger *logging.Logger) *CloudProvider {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.ProxyURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "chatlab-backend/1.0")

	return &CloudProvider{
		cfg:    cfg,
		client: client,
		breaker: resilience.New("oauth-proxy", resilience.Settings{
			FailureThreshold: 5,
			Timeout:          30 * time.Second,
		}),
		logger: logger,
	}
}

// Kind identifies the provider variant.
func (p *CloudProvider) Kind() types.ProviderKind {
	return types.ProviderCloud
}

// AuthorizeURL builds the proxy's authorization URL for a user-agent
// redirect. The state value is round-tripped through the callback.
func (p *CloudProvider) AuthorizeURL(state string) string {
	return fmt.Sprintf("%s/authorize?state=%s", p.cfg.ProxyURL, url.QueryEscape(state))
}

// ExchangeCode trades an authorization code for tokens via the proxy's
// code-exchange endpoint and persists the refresh hint.
func (p *CloudProvider) ExchangeCode(ctx context.Context, code string) (*types.Identity, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}

	var out tokenResponse
	var errBody errorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"code": code}).
		SetResult(&out).
		SetError(&errBody).
		Post("/exchange-code")
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("code exchange rejected (%d): %s", resp.StatusCode(), errBody.Error)
	}

	p.applyTokens(&out)
	p.persistHint()

	return p.identity(), nil
}

// Initialize restores the session from the persisted refresh hint by
// refreshing the access token. A missing hint is an unauthenticated
// start, not an error.
func (p *CloudProvider) Initialize(ctx context.Context) (*types.Identity, error) {
	data, err := os.ReadFile(p.hintPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read oauth hint: %w", err)
	}

	var hint refreshHint
	if err := json.Unmarshal(data, &hint); err != nil {
		return nil, fmt.Errorf("failed to decode oauth hint: %w", err)
	}
	if hint.RefreshToken == "" {
		return nil, nil
	}

	p.mu.Lock()
	p.tokens = &types.Tokens{RefreshToken: hint.RefreshToken}
	p.userRef = hint.UserRef
	p.displayName = hint.DisplayName
	p.mu.Unlock()

	if _, err := p.RefreshToken(ctx); err != nil {
		return nil, err
	}
	return p.identity(), nil
}

// Status reports the provider's view of the session. An expired access
// token triggers a refresh attempt; an affirmative rejection from the
// proxy reports unauthenticated with a nil error.
func (p *CloudProvider) Status(ctx context.Context) (types.ProviderStatus, error) {
	p.mu.Lock()
	tokens := p.tokens
	p.mu.Unlock()

	if tokens == nil || tokens.RefreshToken == "" && tokens.AccessToken == "" {
		return types.ProviderStatus{IsAuthenticated: false}, nil
	}

	if tokens.AccessToken != "" && time.Now().Before(tokens.ExpiresAt) {
		return p.status(true), nil
	}

	// Access token is past its margin; try the refresh path.
	if _, err := p.RefreshToken(ctx); err != nil {
		if isAffirmativeLoss(err) {
			return types.ProviderStatus{IsAuthenticated: false}, nil
		}
		return types.ProviderStatus{}, err
	}
	return p.status(true), nil
}

// Authenticate cannot complete without a user-agent redirect; callers
// send the user to AuthorizeURL and finish via ExchangeCode.
func (p *CloudProvider) Authenticate(ctx context.Context) error {
	return ErrInteractiveAuthRequired
}

// RefreshToken exchanges the refresh token for a fresh access token.
// HTTP 401/403 from the proxy maps to ErrSessionInvalid; transport
// failures are wrapped and left discriminable via errors.Is.
func (p *CloudProvider) RefreshToken(ctx context.Context) (*types.Tokens, error) {
	p.mu.Lock()
	refresh := ""
	if p.tokens != nil {
		refresh = p.tokens.RefreshToken
	}
	p.mu.Unlock()

	if refresh == "" {
		return nil, ErrSessionInvalid
	}

	var out tokenResponse
	var errBody errorResponse
	err := p.breaker.Execute(func() error {
		resp, err := p.client.R().
			SetContext(ctx).
			SetBody(map[string]string{"refresh_token": refresh}).
			SetResult(&out).
			SetError(&errBody).
			Post("/refresh-token")
		if err != nil {
			return fmt.Errorf("token refresh failed: %w", err)
		}
		if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
			return fmt.Errorf("refresh rejected: %w", ErrSessionInvalid)
		}
		if resp.IsError() {
			return fmt.Errorf("token refresh failed (%d): %s", resp.StatusCode(), errBody.Error)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.applyTokens(&out)
	p.persistHint()

	p.mu.Lock()
	defer p.mu.Unlock()
	tokens := *p.tokens
	return &tokens, nil
}

// RevokeToken revokes the refresh token at the proxy and drops the
// persisted hint. The hint is removed even when the remote call fails.
func (p *CloudProvider) RevokeToken(ctx context.Context) error {
	p.mu.Lock()
	refresh := ""
	if p.tokens != nil {
		refresh = p.tokens.RefreshToken
	}
	p.tokens = nil
	p.userRef = ""
	p.displayName = ""
	p.mu.Unlock()

	if err := os.Remove(p.hintPath()); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove oauth hint", zap.Error(err))
	}

	if refresh == "" {
		return nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"refresh_token": refresh}).
		Post("/revoke-token")
	if err != nil {
		return fmt.Errorf("token revoke failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("token revoke rejected (%d)", resp.StatusCode())
	}
	return nil
}

// AccessToken returns the current access token for storage adapters.
func (p *CloudProvider) AccessToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tokens == nil {
		return ""
	}
	return p.tokens.AccessToken
}

func (p *CloudProvider) applyTokens(resp *tokenResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()

	refresh := resp.RefreshToken
	if refresh == "" && p.tokens != nil {
		refresh = p.tokens.RefreshToken
	}
	p.tokens = &types.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn)*time.Second - refreshMargin),
	}
	if resp.UserRef != "" {
		p.userRef = resp.UserRef
	}
	if resp.DisplayName != "" {
		p.displayName = resp.DisplayName
	}
}

func (p *CloudProvider) identity() *types.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	ident := &types.Identity{
		ProviderKind: types.ProviderCloud,
		UserRef:      p.userRef,
		DisplayName:  p.displayName,
	}
	if p.tokens != nil {
		expires := p.tokens.ExpiresAt
		ident.ExpiresAt = &expires
	}
	return ident
}

func (p *CloudProvider) status(authenticated bool) types.ProviderStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := types.ProviderStatus{
		IsAuthenticated: authenticated,
		UserRef:         p.userRef,
		DisplayName:     p.displayName,
	}
	if p.tokens != nil {
		expires := p.tokens.ExpiresAt
		st.ExpiresAt = &expires
	}
	return st
}

func (p *CloudProvider) persistHint() {
	p.mu.Lock()
	hint := refreshHint{UserRef: p.userRef, DisplayName: p.displayName}
	if p.tokens != nil {
		hint.RefreshToken = p.tokens.RefreshToken
	}
	p.mu.Unlock()

	if hint.RefreshToken == "" {
		return
	}
	if err := os.MkdirAll(p.cfg.Dir, 0o700); err != nil {
		p.logger.Warn("failed to create oauth hint dir", zap.Error(err))
		return
	}
	data, err := json.Marshal(hint)
	if err != nil {
		return
	}
	if err := os.WriteFile(p.hintPath(), data, 0o600); err != nil {
		p.logger.Warn("failed to persist oauth hint", zap.Error(err))
	}
}

func (p *CloudProvider) hintPath() string {
	return filepath.Join(p.cfg.Dir, refreshHintFile)
}
