package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fidulabs/chatlab/internal/shared/types"
)

// FilesystemAdapter stores workspace data under a local directory.
// Layout: <root>/personal for the virtual workspace and
// <root>/workspaces/<id> for shared workspaces.
type FilesystemAdapter struct {
	root string

	mu        sync.RWMutex
	workspace *string
}

// NewFilesystemAdapter creates a filesystem adapter rooted at root.
func NewFilesystemAdapter(root string) *FilesystemAdapter {
	return &FilesystemAdapter{root: root}
}

// Mode identifies the adapter variant.
func (a *FilesystemAdapter) Mode() types.StorageMode {
	return types.ModeFilesystem
}

// SwitchWorkspace retargets the adapter at the given workspace.
func (a *FilesystemAdapter) SwitchWorkspace(ctx context.Context, id *string) error {
	if id != nil && (*id == "" || strings.ContainsAny(*id, `/\`)) {
		return fmt.Errorf("invalid workspace id %q", *id)
	}

	a.mu.Lock()
	a.workspace = id
	a.mu.Unlock()
	return nil
}

// Reinitialize ensures the active workspace directory exists.
func (a *FilesystemAdapter) Reinitialize(ctx context.Context) error {
	dir := a.workspaceDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to prepare workspace dir: %w", err)
	}
	return nil
}

// Read fetches an object from the active workspace.
func (a *FilesystemAdapter) Read(ctx context.Context, key string) ([]byte, error) {
	path, err := a.objectPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return data, nil
}

// Write stores an object in the active workspace.
func (a *FilesystemAdapter) Write(ctx context.Context, key string, data []byte) error {
	path, err := a.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to prepare object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (a *FilesystemAdapter) workspaceDir() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.workspace == nil {
		return filepath.Join(a.root, "personal")
	}
	return filepath.Join(a.root, "workspaces", *a.workspace)
}

func (a *FilesystemAdapter) objectPath(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(a.workspaceDir(), filepath.FromSlash(key)), nil
}
