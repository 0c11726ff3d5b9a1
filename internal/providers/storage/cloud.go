package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fidulabs/chatlab/internal/shared/types"
)

// TokenSource supplies the current cloud access token. Wired to the
// cloud identity provider so the adapter never caches credentials.
type TokenSource func() string

// CloudAdapter stores workspace data in the user's cloud storage
// account, addressed through the backend's drive gateway.
type CloudAdapter struct {
	client *resty.Client
	token  TokenSource

	mu        sync.RWMutex
	workspace *string
}

// NewCloudAdapter creates a cloud storage adapter against the gateway
// at baseURL, authenticating each call via the token source.
func NewCloudAdapter(baseURL string, token TokenSource) *CloudAdapter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", "chatlab-backend/1.0")

	return &CloudAdapter{
		client: client,
		token:  token,
	}
}

// Mode identifies the adapter variant.
func (a *CloudAdapter) Mode() types.StorageMode {
	return types.ModeCloud
}

// SwitchWorkspace retargets the adapter at the given workspace.
func (a *CloudAdapter) SwitchWorkspace(ctx context.Context, id *string) error {
	a.mu.Lock()
	a.workspace = id
	a.mu.Unlock()
	return nil
}

// Reinitialize ensures the workspace folder exists in the drive.
func (a *CloudAdapter) Reinitialize(ctx context.Context) error {
	resp, err := a.request(ctx).Put(a.workspacePath())
	if err != nil {
		return fmt.Errorf("drive gateway unreachable: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("drive workspace init failed (%d)", resp.StatusCode())
	}
	return nil
}

// Read fetches an object from the active workspace.
func (a *CloudAdapter) Read(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.request(ctx).Get(a.objectPath(key))
	if err != nil {
		return nil, fmt.Errorf("drive read failed: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("drive read failed (%d)", resp.StatusCode())
	}
	return resp.Body(), nil
}

// Write stores an object in the active workspace.
func (a *CloudAdapter) Write(ctx context.Context, key string, data []byte) error {
	resp, err := a.request(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data).
		Put(a.objectPath(key))
	if err != nil {
		return fmt.Errorf("drive write failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("drive write failed (%d)", resp.StatusCode())
	}
	return nil
}

func (a *CloudAdapter) request(ctx context.Context) *resty.Request {
	req := a.client.R().SetContext(ctx)
	if a.token != nil {
		if tok := a.token(); tok != "" {
			req.SetAuthToken(tok)
		}
	}
	return req
}

func (a *CloudAdapter) workspacePath() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.workspace == nil {
		return "/v1/folders/personal"
	}
	return "/v1/folders/" + url.PathEscape(*a.workspace)
}

func (a *CloudAdapter) objectPath(key string) string {
	return a.workspacePath() + "/files/" + url.PathEscape(key)
}
