package workspace

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidulabs/chatlab/internal/shared/types"
)

// fakeAuth is a static coordinator stand-in.
type fakeAuth struct {
	authenticated bool
}

func (f *fakeAuth) GetAuthStatus() types.AuthStatus {
	return types.AuthStatus{IsAuthenticated: f.authenticated}
}

// fakeAdapter records retarget calls and can be told to fail
// reinitialization.
type fakeAdapter struct {
	mode types.StorageMode

	mu        sync.Mutex
	target    *string
	targets   []*string
	reinitErr error
	reinits   int
}

func (f *fakeAdapter) Mode() types.StorageMode { return f.mode }

func (f *fakeAdapter) SwitchWorkspace(ctx context.Context, id *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target = id
	f.targets = append(f.targets, id)
	return nil
}

func (f *fakeAdapter) Reinitialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reinits++
	return f.reinitErr
}

func (f *fakeAdapter) Read(ctx context.Context, key string) ([]byte, error) { return nil, nil }

func (f *fakeAdapter) Write(ctx context.Context, key string, data []byte) error { return nil }

func (f *fakeAdapter) currentTarget() *string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target
}

func strPtr(s string) *string { return &s }

func seedWorkspace(m *Manager, id, name string) {
	m.mu.Lock()
	m.workspaces[id] = &types.Workspace{
		ID:   strPtr(id),
		Name: name,
		Type: types.WorkspaceShared,
	}
	m.mu.Unlock()
}

func newTestManager(t *testing.T, auth AuthState, remoteURL string) (*Manager, *fakeAdapter) {
	t.Helper()
	m := NewManager(auth, remoteURL, t.TempDir(), nil)
	adapter := &fakeAdapter{mode: types.ModeFilesystem}
	m.RegisterAdapter(adapter)
	return m, adapter
}

func TestActiveWorkspace(t *testing.T) {
	m, _ := newTestManager(t, &fakeAuth{}, "http://unused")

	t.Run("defaults to the virtual personal workspace", func(t *testing.T) {
		ws := m.ActiveWorkspace()
		assert.Nil(t, ws.ID)
		assert.Equal(t, types.WorkspacePersonal, ws.Type)
	})

	t.Run("listing puts personal first, shared sorted by name", func(t *testing.T) {
		seedWorkspace(m, "ws-b", "Beta")
		seedWorkspace(m, "ws-a", "Alpha")

		all := m.Workspaces()
		require.Len(t, all, 3)
		assert.Nil(t, all[0].ID)
		assert.Equal(t, "Alpha", all[1].Name)
		assert.Equal(t, "Beta", all[2].Name)
	})
}

func TestSwitchWorkspace(t *testing.T) {
	ctx := context.Background()

	t.Run("nil id selects personal without registry lookup", func(t *testing.T) {
		m, adapter := newTestManager(t, &fakeAuth{}, "http://unused")

		require.NoError(t, m.SwitchWorkspace(ctx, nil))
		assert.Nil(t, m.ActiveWorkspace().ID)
		assert.Nil(t, adapter.currentTarget())
	})

	t.Run("unknown id is rejected without creating a placeholder", func(t *testing.T) {
		m, adapter := newTestManager(t, &fakeAuth{}, "http://unused")

		err := m.SwitchWorkspace(ctx, strPtr("ghost"))
		assert.ErrorIs(t, err, ErrWorkspaceNotFound)
		assert.Empty(t, adapter.targets)
		assert.Len(t, m.Workspaces(), 1)
	})

	t.Run("known id commits after clean reinitialization", func(t *testing.T) {
		m, adapter := newTestManager(t, &fakeAuth{}, "http://unused")
		seedWorkspace(m, "ws-1", "Team")

		require.NoError(t, m.SwitchWorkspace(ctx, strPtr("ws-1")))

		active := m.ActiveWorkspace()
		require.NotNil(t, active.ID)
		assert.Equal(t, "ws-1", *active.ID)
		assert.False(t, active.LastAccessed.IsZero())
		require.NotNil(t, adapter.currentTarget())
		assert.Equal(t, "ws-1", *adapter.currentTarget())
	})

	t.Run("reinit failure rolls back the adapter and keeps the previous workspace", func(t *testing.T) {
		m, adapter := newTestManager(t, &fakeAuth{}, "http://unused")
		seedWorkspace(m, "ws-1", "Team")
		seedWorkspace(m, "ws-2", "Other")
		require.NoError(t, m.SwitchWorkspace(ctx, strPtr("ws-1")))

		adapter.reinitErr = errors.New("backend rejected folder")
		err := m.SwitchWorkspace(ctx, strPtr("ws-2"))
		require.Error(t, err)

		// Previous workspace still active, adapter rolled back to it.
		active := m.ActiveWorkspace()
		require.NotNil(t, active.ID)
		assert.Equal(t, "ws-1", *active.ID)
		require.NotNil(t, adapter.currentTarget())
		assert.Equal(t, "ws-1", *adapter.currentTarget())
	})

	t.Run("cloud mode requires authentication", func(t *testing.T) {
		auth := &fakeAuth{authenticated: false}
		m := NewManager(auth, "http://unused", t.TempDir(), nil)
		cloud := &fakeAdapter{mode: types.ModeCloud}
		m.RegisterAdapter(cloud)
		m.RegisterAdapter(&fakeAdapter{mode: types.ModeFilesystem})
		seedWorkspace(m, "ws-1", "Team")

		require.NoError(t, m.SwitchMode(context.Background(), types.ModeFilesystem))
		auth.authenticated = true
		require.NoError(t, m.SwitchMode(context.Background(), types.ModeCloud))
		auth.authenticated = false

		err := m.SwitchWorkspace(ctx, strPtr("ws-1"))
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		assert.Len(t, cloud.targets, 1, "no retarget after auth was lost")
	})
}

func TestSwitchMode(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects unknown modes", func(t *testing.T) {
		m, _ := newTestManager(t, &fakeAuth{}, "http://unused")
		assert.Error(t, m.SwitchMode(ctx, types.StorageMode("punchcards")))
	})

	t.Run("rejects modes with no registered adapter", func(t *testing.T) {
		m, _ := newTestManager(t, &fakeAuth{}, "http://unused")
		assert.Error(t, m.SwitchMode(ctx, types.ModeLocalVault))
	})

	t.Run("cloud mode requires authentication", func(t *testing.T) {
		m, _ := newTestManager(t, &fakeAuth{authenticated: false}, "http://unused")
		m.RegisterAdapter(&fakeAdapter{mode: types.ModeCloud})

		err := m.SwitchMode(ctx, types.ModeCloud)
		assert.ErrorIs(t, err, ErrNotAuthenticated)
		assert.Equal(t, types.ModeFilesystem, m.Mode())
	})

	t.Run("commits only after clean reinitialization", func(t *testing.T) {
		m, _ := newTestManager(t, &fakeAuth{}, "http://unused")
		vault := &fakeAdapter{mode: types.ModeLocalVault, reinitErr: errors.New("vault down")}
		m.RegisterAdapter(vault)

		require.Error(t, m.SwitchMode(ctx, types.ModeLocalVault))
		assert.Equal(t, types.ModeFilesystem, m.Mode())

		vault.reinitErr = nil
		require.NoError(t, m.SwitchMode(ctx, types.ModeLocalVault))
		assert.Equal(t, types.ModeLocalVault, m.Mode())
		assert.Same(t, vault, m.ActiveAdapter().(*fakeAdapter))
	})
}

func TestLoadWorkspaces(t *testing.T) {
	ctx := context.Background()

	t.Run("syncs rows from the remote registry", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/workspaces", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"workspaces":[{"id":"ws-1","name":"Team"},{"id":"ws-2","name":"Other"}]}`))
		}))
		defer srv.Close()

		m, _ := newTestManager(t, &fakeAuth{}, srv.URL)
		rows, err := m.LoadWorkspaces(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, types.WorkspaceShared, rows[1].Type)

		stats := m.Stats()
		assert.Equal(t, 2, stats.TotalWorkspaces)
		assert.NotNil(t, stats.LastSynced)
	})

	t.Run("remote failure falls back to cached contents", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		m, _ := newTestManager(t, &fakeAuth{}, srv.URL)
		seedWorkspace(m, "ws-1", "Cached")

		rows, err := m.LoadWorkspaces(ctx)
		require.NoError(t, err, "registry outage must not surface")
		require.Len(t, rows, 2)
		assert.Equal(t, "Cached", rows[1].Name)
	})
}

func TestCreateWorkspace(t *testing.T) {
	ctx := context.Background()

	t.Run("requires authentication", func(t *testing.T) {
		m, _ := newTestManager(t, &fakeAuth{authenticated: false}, "http://unused")
		_, err := m.CreateWorkspace(ctx, "Team")
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("registers remotely and upserts locally", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"ws-new","name":"Team"}`))
		}))
		defer srv.Close()

		m, _ := newTestManager(t, &fakeAuth{authenticated: true}, srv.URL)
		ws, err := m.CreateWorkspace(ctx, "Team")
		require.NoError(t, err)
		require.NotNil(t, ws.ID)
		assert.Equal(t, "ws-new", *ws.ID)
		assert.Equal(t, types.WorkspaceShared, ws.Type)

		require.NoError(t, m.SwitchWorkspace(ctx, ws.ID))
	})
}

func TestRestorePreferences(t *testing.T) {
	ctx := context.Background()

	t.Run("round-trips mode and active workspace", func(t *testing.T) {
		dir := t.TempDir()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"workspaces":[{"id":"ws-1","name":"Team"}]}`))
		}))
		defer srv.Close()

		first := NewManager(&fakeAuth{}, srv.URL, dir, nil)
		first.RegisterAdapter(&fakeAdapter{mode: types.ModeFilesystem})
		first.RegisterAdapter(&fakeAdapter{mode: types.ModeLocalVault})
		_, err := first.LoadWorkspaces(ctx)
		require.NoError(t, err)
		require.NoError(t, first.SwitchMode(ctx, types.ModeLocalVault))
		require.NoError(t, first.SwitchWorkspace(ctx, strPtr("ws-1")))

		// A fresh manager over the same state dir picks everything up.
		second := NewManager(&fakeAuth{}, srv.URL, dir, nil)
		second.RegisterAdapter(&fakeAdapter{mode: types.ModeFilesystem})
		second.RegisterAdapter(&fakeAdapter{mode: types.ModeLocalVault})
		second.RestorePreferences(ctx)

		assert.Equal(t, types.ModeLocalVault, second.Mode())
		active := second.ActiveWorkspace()
		require.NotNil(t, active.ID)
		assert.Equal(t, "ws-1", *active.ID)
	})

	t.Run("stale preferences fall back to defaults", func(t *testing.T) {
		m, _ := newTestManager(t, &fakeAuth{}, "http://unused")

		// No prefs file at all: defaults stand.
		m.RestorePreferences(ctx)
		assert.Equal(t, types.ModeFilesystem, m.Mode())
		assert.Nil(t, m.ActiveWorkspace().ID)
	})
}
