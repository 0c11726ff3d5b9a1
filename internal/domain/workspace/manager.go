package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/fidulabs/chatlab/internal/infrastructure/logging"
	"github.com/fidulabs/chatlab/internal/infrastructure/monitoring"
	"github.com/fidulabs/chatlab/internal/providers/storage"
	"github.com/fidulabs/chatlab/internal/shared/types"
)

var (
	// ErrWorkspaceNotFound is returned when a switch targets an id
	// absent from the local registry. No placeholder is created.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrNotAuthenticated is returned when a switch is attempted for
	// a mode requiring cloud identity while the coordinator reports
	// anything other than authenticated.
	ErrNotAuthenticated = errors.New("not authenticated")
)

const registryCacheFile = "workspaces.json"

// AuthState is the coordinator capability the manager needs: a pure
// read of the current authentication state.
type AuthState interface {
	GetAuthStatus() types.AuthStatus
}

// Manager tracks known workspaces and the active workspace id, selects
// the active storage adapter by mode, and coordinates switches. The
// registry is synchronized from the remote source on demand and cached
// locally so offline starts still see last-known workspaces.
type Manager struct {
	auth      AuthState
	remoteURL string
	client    *retryablehttp.Client
	stateDir  string
	logger    *logging.Logger
	metrics   *monitoring.Metrics

	mu         sync.RWMutex
	workspaces map[string]*types.Workspace
	activeID   *string
	mode       types.StorageMode
	adapters   map[types.StorageMode]storage.Adapter
	lastSynced *time.Time

	// switchMu serializes workspace and mode switches so a failed
	// switch can roll back without interleaving with another.
	switchMu sync.Mutex
}

// NewManager creates a workspace manager. remoteURL points at the
// workspace registry service; stateDir holds the local registry cache
// and preferences.
func NewManager(auth AuthState, remoteURL, stateDir string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil

	return &Manager{
		auth:       auth,
		remoteURL:  remoteURL,
		client:     client,
		stateDir:   stateDir,
		logger:     logger,
		workspaces: make(map[string]*types.Workspace),
		adapters:   make(map[types.StorageMode]storage.Adapter),
		mode:       types.ModeFilesystem,
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// RegisterAdapter makes a storage adapter available for its mode.
func (m *Manager) RegisterAdapter(a storage.Adapter) {
	m.mu.Lock()
	m.adapters[a.Mode()] = a
	m.mu.Unlock()
}

// Mode returns the active storage mode.
func (m *Manager) Mode() types.StorageMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// ActiveAdapter returns the adapter backing the active storage mode.
func (m *Manager) ActiveAdapter() storage.Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.adapters[m.mode]
}

// ActiveWorkspace returns the active workspace, or the virtual
// personal workspace when no shared workspace is selected.
func (m *Manager) ActiveWorkspace() *types.Workspace {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.activeID == nil {
		return types.PersonalWorkspace()
	}
	if ws, ok := m.workspaces[*m.activeID]; ok {
		copied := *ws
		return &copied
	}
	return types.PersonalWorkspace()
}

// Workspaces returns the registry contents: the virtual personal
// workspace first, then shared workspaces sorted by name.
func (m *Manager) Workspaces() []types.Workspace {
	m.mu.RLock()
	defer m.mu.RUnlock()

	shared := make([]types.Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		shared = append(shared, *ws)
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i].Name < shared[j].Name })

	return append([]types.Workspace{*types.PersonalWorkspace()}, shared...)
}

// LoadWorkspaces refreshes the registry from the remote source. A
// remote failure is never fatal: the last-known local contents are
// returned so opportunistic callers never block the UI.
func (m *Manager) LoadWorkspaces(ctx context.Context) ([]types.Workspace, error) {
	rows, err := m.fetchRemote(ctx)
	if err != nil {
		m.logger.Warn("workspace registry sync failed, serving cached contents", zap.Error(err))
		if m.metrics != nil {
			m.metrics.RecordRegistrySync("fallback")
		}
		return m.Workspaces(), nil
	}

	now := time.Now()
	m.mu.Lock()
	m.workspaces = make(map[string]*types.Workspace, len(rows))
	for i := range rows {
		ws := rows[i]
		if ws.ID == nil {
			continue
		}
		ws.Type = types.WorkspaceShared
		m.workspaces[*ws.ID] = &ws
	}
	m.lastSynced = &now
	total := len(m.workspaces)
	m.mu.Unlock()

	m.persistCache()
	if m.metrics != nil {
		m.metrics.RecordRegistrySync("success")
		m.metrics.WorkspacesKnown.Set(float64(total))
	}
	return m.Workspaces(), nil
}

// CreateWorkspace registers a shared workspace remotely, then upserts
// it into the local registry.
func (m *Manager) CreateWorkspace(ctx context.Context, name string) (*types.Workspace, error) {
	if name == "" {
		return nil, fmt.Errorf("workspace name is required")
	}
	if !m.auth.GetAuthStatus().IsAuthenticated {
		return nil, fmt.Errorf("cannot create workspace: %w", ErrNotAuthenticated)
	}

	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, m.remoteURL+"/workspaces", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workspace registration failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("workspace registration rejected (%d)", resp.StatusCode)
	}

	var ws types.Workspace
	if err := json.NewDecoder(resp.Body).Decode(&ws); err != nil {
		return nil, fmt.Errorf("failed to decode registered workspace: %w", err)
	}
	if ws.ID == nil {
		id := uuid.New().String()
		ws.ID = &id
	}
	ws.Type = types.WorkspaceShared

	m.mu.Lock()
	m.workspaces[*ws.ID] = &ws
	total := len(m.workspaces)
	m.mu.Unlock()

	m.persistCache()
	if m.metrics != nil {
		m.metrics.WorkspacesKnown.Set(float64(total))
	}

	copied := ws
	return &copied, nil
}

// SwitchWorkspace makes the given workspace active. A nil id selects
// the virtual personal workspace with no registry lookup. A non-nil id
// must already exist locally. The active pointer is committed only
// after the adapter reinitializes cleanly, so a failed switch leaves
// the previous workspace active.
func (m *Manager) SwitchWorkspace(ctx context.Context, id *string) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.RLock()
	mode := m.mode
	adapter := m.adapters[mode]
	prev := m.activeID
	m.mu.RUnlock()

	if adapter == nil {
		return fmt.Errorf("no storage adapter registered for mode %q", mode)
	}
	if mode.RequiresCloudIdentity() && !m.auth.GetAuthStatus().IsAuthenticated {
		m.recordSwitch("rejected")
		return fmt.Errorf("cannot switch workspace in %q mode: %w", mode, ErrNotAuthenticated)
	}
	if id != nil {
		m.mu.RLock()
		_, known := m.workspaces[*id]
		m.mu.RUnlock()
		if !known {
			m.recordSwitch("not_found")
			return fmt.Errorf("workspace %q: %w", *id, ErrWorkspaceNotFound)
		}
	}

	if err := adapter.SwitchWorkspace(ctx, id); err != nil {
		m.recordSwitch("failure")
		return fmt.Errorf("failed to retarget storage adapter: %w", err)
	}
	if err := adapter.Reinitialize(ctx); err != nil {
		// Roll the adapter back so no partial switch is observable.
		if rbErr := adapter.SwitchWorkspace(ctx, prev); rbErr != nil {
			m.logger.Error("adapter rollback failed after reinit error",
				zap.Error(rbErr),
			)
		}
		m.recordSwitch("failure")
		return fmt.Errorf("workspace switch failed during reinitialization: %w", err)
	}

	now := time.Now()
	m.mu.Lock()
	m.activeID = id
	if id != nil {
		if ws, ok := m.workspaces[*id]; ok {
			ws.LastAccessed = now
		}
	}
	m.mu.Unlock()

	m.persistPrefs()
	m.recordSwitch("success")
	return nil
}

// SwitchMode changes the active storage mode, reinitializing the new
// mode's adapter against the current workspace. The mode pointer is
// committed only on success.
func (m *Manager) SwitchMode(ctx context.Context, mode types.StorageMode) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	if !mode.Valid() {
		return fmt.Errorf("unknown storage mode %q", mode)
	}

	m.mu.RLock()
	adapter := m.adapters[mode]
	active := m.activeID
	m.mu.RUnlock()

	if adapter == nil {
		return fmt.Errorf("no storage adapter registered for mode %q", mode)
	}
	if mode.RequiresCloudIdentity() && !m.auth.GetAuthStatus().IsAuthenticated {
		return fmt.Errorf("cannot switch to %q mode: %w", mode, ErrNotAuthenticated)
	}

	if err := adapter.SwitchWorkspace(ctx, active); err != nil {
		return fmt.Errorf("failed to retarget storage adapter: %w", err)
	}
	if err := adapter.Reinitialize(ctx); err != nil {
		return fmt.Errorf("mode switch failed during reinitialization: %w", err)
	}

	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()

	m.persistPrefs()
	return nil
}

// Stats returns registry statistics
func (m *Manager) Stats() types.RegistryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := types.RegistryStats{
		TotalWorkspaces: len(m.workspaces),
		Mode:            string(m.mode),
		LastSynced:      m.lastSynced,
	}
	if m.activeID != nil {
		id := *m.activeID
		stats.ActiveID = &id
	}
	return stats
}

// fetchRemote pulls the registry rows from the remote source.
func (m *Manager) fetchRemote(ctx context.Context) ([]types.Workspace, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, m.remoteURL+"/workspaces", nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var payload struct {
		Workspaces []types.Workspace `json:"workspaces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}
	return payload.Workspaces, nil
}

// persistCache writes the shared-workspace rows to the local cache
// file. The personal workspace is virtual and never persisted.
func (m *Manager) persistCache() {
	m.mu.RLock()
	rows := make([]types.Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		rows = append(rows, *ws)
	}
	m.mu.RUnlock()

	data, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := os.MkdirAll(m.stateDir, 0o700); err != nil {
		m.logger.Warn("failed to create state dir", zap.Error(err))
		return
	}
	if err := os.WriteFile(m.cachePath(), data, 0o600); err != nil {
		m.logger.Warn("failed to persist workspace cache", zap.Error(err))
	}
}

// loadCache seeds the registry from the local cache file.
func (m *Manager) loadCache() {
	data, err := os.ReadFile(m.cachePath())
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("failed to read workspace cache", zap.Error(err))
		}
		return
	}

	var rows []types.Workspace
	if err := json.Unmarshal(data, &rows); err != nil {
		m.logger.Warn("failed to decode workspace cache", zap.Error(err))
		return
	}

	m.mu.Lock()
	for i := range rows {
		if rows[i].ID != nil {
			m.workspaces[*rows[i].ID] = &rows[i]
		}
	}
	m.mu.Unlock()
}

func (m *Manager) cachePath() string {
	return filepath.Join(m.stateDir, registryCacheFile)
}

func (m *Manager) recordSwitch(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordWorkspaceSwitch(outcome)
	}
}
