package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fidulabs/chatlab/internal/infrastructure/logging"
	"github.com/fidulabs/chatlab/internal/shared/types"
)

const (
	localSessionTTL = 24 * time.Hour
	tokenHintFile   = "session.json"
)

// localSession is an active vault session.
type localSession struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// localAccount is a registered vault account.
type localAccount struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// LocalProvider implements Provider over the local session-token vault.
// Accounts and sessions live in memory; the active session token is
// persisted as a hint file so a restart can restore the session.
type LocalProvider struct {
	dir    string
	logger *logging.Logger

	mu       sync.Mutex
	accounts map[string]*localAccount
	sessions map[string]*localSession
	current  *localSession
}

// NewLocalProvider creates a local vault identity provider rooted at dir.
func NewLocalProvider(dir string, logger *logging.Logger) *LocalProvider {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LocalProvider{
		dir:      dir,
		logger:   logger,
		accounts: make(map[string]*localAccount),
		sessions: make(map[string]*localSession),
	}
}

// Kind identifies the provider variant.
func (p *LocalProvider) Kind() types.ProviderKind {
	return types.ProviderLocal
}

// Register creates a new vault account.
func (p *LocalProvider) Register(username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.accounts[username]; exists {
		return fmt.Errorf("account %q already exists", username)
	}
	p.accounts[username] = &localAccount{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	return nil
}

// Login verifies credentials and opens a new session, persisting the
// token hint for later restoration.
func (p *LocalProvider) Login(ctx context.Context, username, password string) (*types.Identity, error) {
	p.mu.Lock()
	account, exists := p.accounts[username]
	p.mu.Unlock()
	if !exists {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	session := &localSession{
		Token:     generateToken(),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(localSessionTTL),
	}

	p.mu.Lock()
	p.sessions[session.Token] = session
	p.current = session
	p.mu.Unlock()

	if err := p.saveHint(session); err != nil {
		p.logger.Warn("failed to persist session hint", zap.Error(err))
	}

	return p.identityFor(session), nil
}

// Initialize restores the session from the persisted token hint.
func (p *LocalProvider) Initialize(ctx context.Context) (*types.Identity, error) {
	data, err := os.ReadFile(p.hintPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session hint: %w", err)
	}

	var session localSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session hint: %w", err)
	}

	if time.Now().After(session.ExpiresAt) {
		_ = os.Remove(p.hintPath())
		return nil, ErrSessionInvalid
	}

	p.mu.Lock()
	p.sessions[session.Token] = &session
	p.current = &session
	p.mu.Unlock()

	return p.identityFor(&session), nil
}

// Status reports whether the current session token is still valid.
func (p *LocalProvider) Status(ctx context.Context) (types.ProviderStatus, error) {
	p.mu.Lock()
	session := p.current
	p.mu.Unlock()

	if session == nil || time.Now().After(session.ExpiresAt) {
		return types.ProviderStatus{IsAuthenticated: false}, nil
	}

	expires := session.ExpiresAt
	return types.ProviderStatus{
		IsAuthenticated: true,
		UserRef:         session.Username,
		DisplayName:     session.Username,
		ExpiresAt:       &expires,
	}, nil
}

// Authenticate requires explicit credentials; callers use Login.
func (p *LocalProvider) Authenticate(ctx context.Context) error {
	return ErrInteractiveAuthRequired
}

// RefreshToken extends the current session's expiry.
func (p *LocalProvider) RefreshToken(ctx context.Context) (*types.Tokens, error) {
	p.mu.Lock()
	session := p.current
	if session == nil {
		p.mu.Unlock()
		return nil, ErrSessionInvalid
	}
	session.ExpiresAt = time.Now().Add(localSessionTTL)
	tokens := &types.Tokens{
		AccessToken: session.Token,
		ExpiresAt:   session.ExpiresAt,
	}
	p.mu.Unlock()

	if err := p.saveHint(session); err != nil {
		p.logger.Warn("failed to persist refreshed session hint", zap.Error(err))
	}
	return tokens, nil
}

// RevokeToken ends the current session and removes the token hint.
func (p *LocalProvider) RevokeToken(ctx context.Context) error {
	p.mu.Lock()
	if p.current != nil {
		delete(p.sessions, p.current.Token)
		p.current = nil
	}
	p.mu.Unlock()

	if err := os.Remove(p.hintPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session hint: %w", err)
	}
	return nil
}

func (p *LocalProvider) identityFor(session *localSession) *types.Identity {
	expires := session.ExpiresAt
	return &types.Identity{
		ProviderKind: types.ProviderLocal,
		UserRef:      session.Username,
		DisplayName:  session.Username,
		ExpiresAt:    &expires,
	}
}

func (p *LocalProvider) saveHint(session *localSession) error {
	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return os.WriteFile(p.hintPath(), data, 0o600)
}

func (p *LocalProvider) hintPath() string {
	return filepath.Join(p.dir, tokenHintFile)
}

func generateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v - cannot generate secure token", err))
	}
	return base64.URLEncoding.EncodeToString(b)
}
