package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidulabs/chatlab/internal/bridge"
	"github.com/fidulabs/chatlab/internal/shared/types"
)

func TestHandleConnection(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := bridge.New()
	router := gin.New()
	router.GET("/stream", NewHandler(store, nil).HandleConnection)

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readMessage := func() Message {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	// The current state arrives immediately on connect.
	first := readMessage()
	assert.Equal(t, "auth-status", first.Type)
	assert.False(t, first.Auth.IsAuthenticated)

	// Changes stream as they happen.
	store.SetAuthStatus(types.AuthStatus{
		IsAuthenticated: true,
		Identity:        &types.Identity{UserRef: "user-1"},
	})

	second := readMessage()
	assert.True(t, second.Auth.IsAuthenticated)
	require.NotNil(t, second.Auth.Identity)
	assert.Equal(t, "user-1", second.Auth.Identity.UserRef)
}
