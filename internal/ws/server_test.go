package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roomrelay/internal/services/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inFrame struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body"`
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func startServer(t *testing.T, opts Options) (*relay.Service, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := relay.NewRelayService()
	engine := gin.New()
	engine.GET("/ws", NewWsServer(svc, opts).Handle)

	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)
	return svc, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *testClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) call(id, event string, body any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{"id": id, "event": event, "body": body}))
}

// expect skips frames until one with the given event arrives.
func (c *testClient) expect(event string) inFrame {
	c.t.Helper()
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var f inFrame
		require.NoError(c.t, c.conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			return f
		}
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestJoinChatAndDisconnectOverWebsocket(t *testing.T) {
	svc, url := startServer(t, Options{})
	alice := dial(t, url)
	bob := dial(t, url)

	alice.call("1", "JoinRoom", JoinRoomRequest{Room: "lobby", PeerID: "p1", DisplayName: "Alice"})
	ack := alice.expect("JoinRoom-ack")
	assert.Equal(t, "1", ack.ID)
	assert.JSONEq(t, `[]`, string(ack.Body))

	bob.call("7", "JoinRoom", JoinRoomRequest{Room: "lobby", PeerID: "p2", DisplayName: "Bob"})
	ack = bob.expect("JoinRoom-ack")
	assert.Equal(t, []relay.Peer{{PeerID: "p1", DisplayName: "Alice"}}, decode[[]relay.Peer](t, ack.Body))

	joined := alice.expect(relay.EventUserConnected)
	assert.JSONEq(t, `{"peerId":"p2","displayName":"Bob"}`, string(joined.Body))

	bob.call("8", "BroadcastMessage", BroadcastMessageRequest{Room: "lobby", SenderName: "Bob", Text: "hi"})
	for _, c := range []*testClient{alice, bob} {
		msg := c.expect(relay.EventChatMessage)
		assert.JSONEq(t, `{"senderName":"Bob","text":"hi"}`, string(msg.Body))
	}
	bob.expect("BroadcastMessage-ack")

	require.NoError(t, alice.conn.Close())
	left := bob.expect(relay.EventUserDisconnected)
	assert.JSONEq(t, `{"peerId":"p1"}`, string(left.Body))

	members, ok := svc.Members("lobby")
	require.True(t, ok)
	assert.Equal(t, []relay.Peer{{PeerID: "p2", DisplayName: "Bob"}}, members)
}

func TestToggleCallsAreRelayed(t *testing.T) {
	_, url := startServer(t, Options{})
	alice := dial(t, url)
	bob := dial(t, url)
	alice.call("1", "JoinRoom", JoinRoomRequest{Room: "r", PeerID: "p1", DisplayName: "Alice"})
	alice.expect("JoinRoom-ack")
	bob.call("1", "JoinRoom", JoinRoomRequest{Room: "r", PeerID: "p2", DisplayName: "Bob"})
	bob.expect("JoinRoom-ack")

	for call, sig := range signalCalls {
		alice.call(call, call, PeerSignalRequest{Room: "r", PeerID: "p1"})
		got := bob.expect(string(sig))
		assert.JSONEq(t, `{"peerId":"p1"}`, string(got.Body), call)
		ack := alice.expect(call + "-ack")
		assert.Equal(t, call, ack.ID)
	}
}

func TestProtocolErrorsGoOnlyToCaller(t *testing.T) {
	_, url := startServer(t, Options{})
	c := dial(t, url)

	c.call("a", "BroadcastMessage", BroadcastMessageRequest{Room: "lobby", Text: "early"})
	f := c.expect("error")
	assert.Equal(t, "a", f.ID)
	assert.Equal(t, ErrorBody{Error: "not_joined", Request: "BroadcastMessage"}, decode[ErrorBody](t, f.Body))

	c.call("b", "Dance", nil)
	f = c.expect("error")
	assert.Equal(t, "unknown_event", decode[ErrorBody](t, f.Body).Error)

	c.call("c", "JoinRoom", map[string]string{"room": "lobby", "peerId": "p1"})
	f = c.expect("error")
	assert.Equal(t, "invalid_request", decode[ErrorBody](t, f.Body).Error)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f = c.expect("error")
	assert.Equal(t, "malformed_frame", decode[ErrorBody](t, f.Body).Error)

	c.call("d", "JoinRoom", JoinRoomRequest{Room: "lobby", PeerID: "p1", DisplayName: "A"})
	c.expect("JoinRoom-ack")
	c.call("e", "JoinRoom", JoinRoomRequest{Room: "lobby", PeerID: "p1", DisplayName: "A"})
	f = c.expect("error")
	assert.Equal(t, "already_joined", decode[ErrorBody](t, f.Body).Error)

	c.call("f", "RaiseHand", PeerSignalRequest{Room: "lobby", PeerID: "someone-else"})
	f = c.expect("error")
	assert.Equal(t, "identity_mismatch", decode[ErrorBody](t, f.Body).Error)
}

func TestOriginAllowList(t *testing.T) {
	_, url := startServer(t, Options{AllowedOrigins: []string{"http://good.example"}})

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://good.example"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestShutdownReleasesEveryMember(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := relay.NewRelayService()
	wsSrv := NewWsServer(svc, Options{})
	engine := gin.New()
	engine.GET("/ws", wsSrv.Handle)
	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	alice := dial(t, url)
	bob := dial(t, url)
	alice.call("1", "JoinRoom", JoinRoomRequest{Room: "lobby", PeerID: "p1", DisplayName: "Alice"})
	alice.expect("JoinRoom-ack")
	bob.call("1", "JoinRoom", JoinRoomRequest{Room: "lobby", PeerID: "p2", DisplayName: "Bob"})
	bob.expect("JoinRoom-ack")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, wsSrv.Shutdown(ctx))

	assert.Empty(t, svc.Rooms())
	_, ok := svc.Members("lobby")
	assert.False(t, ok)

	_ = alice.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := alice.conn.ReadMessage(); err != nil {
			break
		}
	}

	// Connections arriving after shutdown are never registered.
	late := dial(t, url)
	_ = late.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := late.conn.ReadMessage()
	assert.Error(t, err)
	assert.Empty(t, svc.Rooms())
}
