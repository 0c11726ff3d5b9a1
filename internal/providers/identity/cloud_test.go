package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidulabs/chatlab/internal/shared/types"
)

// fakeProxy is a minimal OAuth-secret proxy for provider tests.
type fakeProxy struct {
	*httptest.Server

	exchangeCalls atomic.Int64
	refreshCalls  atomic.Int64
	revokeCalls   atomic.Int64

	refreshStatus atomic.Int64 // non-zero forces this HTTP status on refresh
}

func newFakeProxy(t *testing.T) *fakeProxy {
	t.Helper()
	p := &fakeProxy{}

	mux := http.NewServeMux()
	mux.HandleFunc("/exchange-code", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		p.exchangeCalls.Add(1)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["code"] != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid code"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
			"user_ref":      "user-1",
			"display_name":  "Test User",
		})
	})
	mux.HandleFunc("/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		p.refreshCalls.Add(1)
		if code := p.refreshStatus.Load(); code != 0 {
			w.WriteHeader(int(code))
			json.NewEncoder(w).Encode(map[string]string{"error": "refresh denied"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-2",
			"expires_in":   3600,
			"user_ref":     "user-1",
		})
	})
	mux.HandleFunc("/revoke-token", func(w http.ResponseWriter, r *http.Request) {
		p.revokeCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

func newCloudProvider(t *testing.T, proxy *fakeProxy) *CloudProvider {
	t.Helper()
	return NewCloudProvider(CloudConfig{
		ProxyURL: proxy.URL,
		Dir:      t.TempDir(),
		Timeout:  5 * time.Second,
	}, nil)
}

func TestCloudExchangeCode(t *testing.T) {
	ctx := context.Background()
	proxy := newFakeProxy(t)
	p := newCloudProvider(t, proxy)

	t.Run("empty code is rejected locally", func(t *testing.T) {
		_, err := p.ExchangeCode(ctx, "")
		assert.Error(t, err)
		assert.Equal(t, int64(0), proxy.exchangeCalls.Load())
	})

	t.Run("proxy rejection surfaces the error body", func(t *testing.T) {
		_, err := p.ExchangeCode(ctx, "bad-code")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid code")
	})

	t.Run("successful exchange yields identity and persists the hint", func(t *testing.T) {
		ident, err := p.ExchangeCode(ctx, "good-code")
		require.NoError(t, err)
		assert.Equal(t, types.ProviderCloud, ident.ProviderKind)
		assert.Equal(t, "user-1", ident.UserRef)
		assert.Equal(t, "Test User", ident.DisplayName)
		assert.Equal(t, "access-1", p.AccessToken())

		data, err := os.ReadFile(filepath.Join(p.cfg.Dir, refreshHintFile))
		require.NoError(t, err)
		var hint refreshHint
		require.NoError(t, json.Unmarshal(data, &hint))
		assert.Equal(t, "refresh-1", hint.RefreshToken)
		assert.Equal(t, "user-1", hint.UserRef)
	})
}

func TestCloudInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("no hint means unauthenticated start, not an error", func(t *testing.T) {
		proxy := newFakeProxy(t)
		p := newCloudProvider(t, proxy)

		ident, err := p.Initialize(ctx)
		require.NoError(t, err)
		assert.Nil(t, ident)
		assert.Equal(t, int64(0), proxy.refreshCalls.Load())
	})

	t.Run("restores via refresh from a persisted hint", func(t *testing.T) {
		proxy := newFakeProxy(t)
		first := newCloudProvider(t, proxy)
		_, err := first.ExchangeCode(ctx, "good-code")
		require.NoError(t, err)

		second := NewCloudProvider(CloudConfig{ProxyURL: proxy.URL, Dir: first.cfg.Dir}, nil)
		ident, err := second.Initialize(ctx)
		require.NoError(t, err)
		require.NotNil(t, ident)
		assert.Equal(t, "user-1", ident.UserRef)
		assert.Equal(t, "access-2", second.AccessToken())
		assert.Equal(t, int64(1), proxy.refreshCalls.Load())
	})

	t.Run("rejected refresh is an invalid session", func(t *testing.T) {
		proxy := newFakeProxy(t)
		first := newCloudProvider(t, proxy)
		_, err := first.ExchangeCode(ctx, "good-code")
		require.NoError(t, err)

		proxy.refreshStatus.Store(http.StatusUnauthorized)
		second := NewCloudProvider(CloudConfig{ProxyURL: proxy.URL, Dir: first.cfg.Dir}, nil)
		_, err = second.Initialize(ctx)
		assert.ErrorIs(t, err, ErrSessionInvalid)
	})
}

func TestCloudStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("no tokens reports unauthenticated affirmatively", func(t *testing.T) {
		p := newCloudProvider(t, newFakeProxy(t))
		st, err := p.Status(ctx)
		require.NoError(t, err)
		assert.False(t, st.IsAuthenticated)
	})

	t.Run("fresh access token needs no proxy round-trip", func(t *testing.T) {
		proxy := newFakeProxy(t)
		p := newCloudProvider(t, proxy)
		_, err := p.ExchangeCode(ctx, "good-code")
		require.NoError(t, err)

		st, err := p.Status(ctx)
		require.NoError(t, err)
		assert.True(t, st.IsAuthenticated)
		assert.Equal(t, "user-1", st.UserRef)
		assert.Equal(t, int64(0), proxy.refreshCalls.Load())
	})

	t.Run("expired token refreshes transparently", func(t *testing.T) {
		proxy := newFakeProxy(t)
		p := newCloudProvider(t, proxy)
		_, err := p.ExchangeCode(ctx, "good-code")
		require.NoError(t, err)

		// Force the access token past its margin.
		p.mu.Lock()
		p.tokens.ExpiresAt = time.Now().Add(-time.Minute)
		p.mu.Unlock()

		st, err := p.Status(ctx)
		require.NoError(t, err)
		assert.True(t, st.IsAuthenticated)
		assert.Equal(t, int64(1), proxy.refreshCalls.Load())
		assert.Equal(t, "access-2", p.AccessToken())
	})

	t.Run("affirmative rejection reports loss without error", func(t *testing.T) {
		proxy := newFakeProxy(t)
		p := newCloudProvider(t, proxy)
		_, err := p.ExchangeCode(ctx, "good-code")
		require.NoError(t, err)

		p.mu.Lock()
		p.tokens.ExpiresAt = time.Now().Add(-time.Minute)
		p.mu.Unlock()
		proxy.refreshStatus.Store(http.StatusForbidden)

		st, err := p.Status(ctx)
		require.NoError(t, err)
		assert.False(t, st.IsAuthenticated)
	})

	t.Run("unreachable proxy is a transient error", func(t *testing.T) {
		proxy := newFakeProxy(t)
		p := newCloudProvider(t, proxy)
		_, err := p.ExchangeCode(ctx, "good-code")
		require.NoError(t, err)

		p.mu.Lock()
		p.tokens.ExpiresAt = time.Now().Add(-time.Minute)
		p.mu.Unlock()
		proxy.Close()

		_, err = p.Status(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSessionInvalid)
	})
}

func TestCloudRevoke(t *testing.T) {
	ctx := context.Background()
	proxy := newFakeProxy(t)
	p := newCloudProvider(t, proxy)

	t.Run("revoke without tokens is a no-op", func(t *testing.T) {
		assert.NoError(t, p.RevokeToken(ctx))
		assert.Equal(t, int64(0), proxy.revokeCalls.Load())
	})

	t.Run("revoke clears tokens and removes the hint", func(t *testing.T) {
		_, err := p.ExchangeCode(ctx, "good-code")
		require.NoError(t, err)

		require.NoError(t, p.RevokeToken(ctx))
		assert.Equal(t, int64(1), proxy.revokeCalls.Load())
		assert.Empty(t, p.AccessToken())

		_, err = os.Stat(filepath.Join(p.cfg.Dir, refreshHintFile))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestCloudAuthorizeURL(t *testing.T) {
	p := NewCloudProvider(CloudConfig{ProxyURL: "http://proxy.local", Dir: t.TempDir()}, nil)
	assert.Equal(t, "http://proxy.local/authorize?state=abc%2Fdef", p.AuthorizeURL("abc/def"))
}
