package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidulabs/chatlab/internal/shared/types"
)

func TestStore(t *testing.T) {
	t.Run("starts unauthenticated", func(t *testing.T) {
		s := New()
		assert.False(t, s.AuthStatus().IsAuthenticated)
	})

	t.Run("set then read", func(t *testing.T) {
		s := New()
		s.SetAuthStatus(types.AuthStatus{
			IsAuthenticated: true,
			Identity:        &types.Identity{UserRef: "user-1"},
		})

		got := s.AuthStatus()
		assert.True(t, got.IsAuthenticated)
		require.NotNil(t, got.Identity)
		assert.Equal(t, "user-1", got.Identity.UserRef)
	})

	t.Run("watchers observe changes", func(t *testing.T) {
		s := New()
		ch, cancel := s.Watch()
		defer cancel()

		s.SetAuthStatus(types.AuthStatus{IsAuthenticated: true})

		select {
		case got := <-ch:
			assert.True(t, got.IsAuthenticated)
		case <-time.After(time.Second):
			t.Fatal("watcher never observed the change")
		}
	})

	t.Run("cancel detaches the watcher", func(t *testing.T) {
		s := New()
		ch, cancel := s.Watch()
		cancel()

		s.SetAuthStatus(types.AuthStatus{IsAuthenticated: true})

		select {
		case _, ok := <-ch:
			// Channel is never closed, so any receive here means a
			// value leaked past cancel.
			assert.False(t, ok)
		default:
		}
	})

	t.Run("a slow watcher never blocks the writer", func(t *testing.T) {
		s := New()
		_, cancel := s.Watch()
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			// More updates than the watcher buffer holds.
			for i := 0; i < 100; i++ {
				s.SetAuthStatus(types.AuthStatus{IsAuthenticated: i%2 == 0})
			}
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("writer blocked on a slow watcher")
		}
	})
}
