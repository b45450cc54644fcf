package roomhandler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"roomrelay/internal/services/relay"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{ id string }

func (c nopConn) ID() string            { return c.id }
func (c nopConn) Push(relay.Push) error { return nil }

func newEngine(t *testing.T) (*gin.Engine, *relay.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := relay.NewRelayService()
	for _, j := range []struct{ conn, room, peer, name string }{
		{"c1", "lobby", "p1", "Alice"},
		{"c2", "lobby", "p2", "Bob"},
		{"c3", "standup", "p3", "Carol"},
	} {
		require.NoError(t, svc.Connect(nopConn{j.conn}))
		_, err := svc.Join(j.conn, j.room, j.peer, j.name)
		require.NoError(t, err)
	}

	engine := gin.New()
	New(svc).Register(engine)
	return engine, svc
}

func get(t *testing.T, engine *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	engine.ServeHTTP(w, req)
	return w
}

func TestListRooms(t *testing.T) {
	engine, _ := newEngine(t)

	w := get(t, engine, "/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"name":"lobby","members":2},{"name":"standup","members":1}]`, w.Body.String())

	w = get(t, engine, "/rooms?limit=1&offset=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"name":"standup","members":1}]`, w.Body.String())

	w = get(t, engine, "/rooms?offset=10")
	assert.JSONEq(t, `[]`, w.Body.String())

	w = get(t, engine, "/rooms?limit=-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoomInfo(t *testing.T) {
	engine, svc := newEngine(t)

	w := get(t, engine, "/rooms/lobby")
	require.Equal(t, http.StatusOK, w.Code)
	var body RoomDetailsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, RoomDetailsResponse{
		Name:    "lobby",
		Members: []relay.Peer{{PeerID: "p1", DisplayName: "Alice"}, {PeerID: "p2", DisplayName: "Bob"}},
	}, body)

	svc.Leave("c3")
	w = get(t, engine, "/rooms/standup")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"room standup not found"}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	engine, _ := newEngine(t)
	w := get(t, engine, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","rooms":2}`, w.Body.String())
}
