package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fidulabs/chatlab/internal/shared/types"
)

// VaultAdapter stores workspace data in the local vault daemon over
// its HTTP API. Transient vault hiccups are retried with backoff.
type VaultAdapter struct {
	baseURL string
	client  *retryablehttp.Client

	mu        sync.RWMutex
	workspace *string
}

// NewVaultAdapter creates a local-vault storage adapter.
func NewVaultAdapter(baseURL string) *VaultAdapter {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil

	return &VaultAdapter{
		baseURL: baseURL,
		client:  client,
	}
}

// Mode identifies the adapter variant.
func (a *VaultAdapter) Mode() types.StorageMode {
	return types.ModeLocalVault
}

// SwitchWorkspace retargets the adapter at the given workspace.
func (a *VaultAdapter) SwitchWorkspace(ctx context.Context, id *string) error {
	a.mu.Lock()
	a.workspace = id
	a.mu.Unlock()
	return nil
}

// Reinitialize verifies the vault is reachable and the workspace
// container exists, creating it when needed.
func (a *VaultAdapter) Reinitialize(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, a.workspaceURL(), nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("vault unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("vault rejected workspace init (%d)", resp.StatusCode)
	}
	return nil
}

// Read fetches an object from the active workspace.
func (a *VaultAdapter) Read(ctx context.Context, key string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, a.objectURL(key), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault read failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("vault read failed (%d)", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Write stores an object in the active workspace.
func (a *VaultAdapter) Write(ctx context.Context, key string, data []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, a.objectURL(key), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("vault write failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("vault write failed (%d)", resp.StatusCode)
	}
	return nil
}

func (a *VaultAdapter) workspaceURL() string {
	return fmt.Sprintf("%s/v1/workspaces/%s", a.baseURL, url.PathEscape(a.workspaceID()))
}

func (a *VaultAdapter) objectURL(key string) string {
	return fmt.Sprintf("%s/objects/%s", a.workspaceURL(), url.PathEscape(key))
}

func (a *VaultAdapter) workspaceID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.workspace == nil {
		return "personal"
	}
	return *a.workspace
}
