package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault is an in-memory stand-in for the vault daemon's HTTP API.
type fakeVault struct {
	mu      sync.Mutex
	objects map[string][]byte
	inits   []string
}

func newFakeVault() *fakeVault {
	return &fakeVault{objects: make(map[string][]byte)}
}

func (v *fakeVault) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		defer v.mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			if len(body) == 0 && r.Header.Get("Content-Type") == "" {
				// Workspace init
				v.inits = append(v.inits, r.URL.Path)
				w.WriteHeader(http.StatusCreated)
				return
			}
			v.objects[r.URL.Path] = body
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			data, ok := v.objects[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func TestVaultAdapter(t *testing.T) {
	ctx := context.Background()

	t.Run("reinitialize targets the workspace container", func(t *testing.T) {
		vault := newFakeVault()
		srv := httptest.NewServer(vault.handler())
		defer srv.Close()

		a := NewVaultAdapter(srv.URL)
		require.NoError(t, a.Reinitialize(ctx))

		ws := "ws-1"
		require.NoError(t, a.SwitchWorkspace(ctx, &ws))
		require.NoError(t, a.Reinitialize(ctx))

		assert.Equal(t, []string{
			"/v1/workspaces/personal",
			"/v1/workspaces/ws-1",
		}, vault.inits)
	})

	t.Run("read and write round-trip through the workspace path", func(t *testing.T) {
		vault := newFakeVault()
		srv := httptest.NewServer(vault.handler())
		defer srv.Close()

		a := NewVaultAdapter(srv.URL)
		require.NoError(t, a.Write(ctx, "conv-1", []byte("payload")))

		data, err := a.Read(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))

		vault.mu.Lock()
		_, stored := vault.objects["/v1/workspaces/personal/objects/conv-1"]
		vault.mu.Unlock()
		assert.True(t, stored)
	})

	t.Run("missing object maps to ErrNotFound", func(t *testing.T) {
		srv := httptest.NewServer(newFakeVault().handler())
		defer srv.Close()

		a := NewVaultAdapter(srv.URL)
		_, err := a.Read(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rejected init surfaces an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		a := NewVaultAdapter(srv.URL)
		assert.Error(t, a.Reinitialize(ctx))
	})
}
