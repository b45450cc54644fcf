package wsclient

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roomrelay/internal/services/relay"
	"roomrelay/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relayURL(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/ws", ws.NewWsServer(relay.NewRelayService(), ws.Options{}).Handle)
	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func waitFor(t *testing.T, c *Client, event string) Frame {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case f, ok := <-c.Incoming():
			require.True(t, ok, "connection closed while waiting for %s", event)
			if f.Event == event {
				return f
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func TestClientJoinsAndChats(t *testing.T) {
	url := relayURL(t)
	ctx := context.Background()

	alice, err := Dial(ctx, url, nil)
	require.NoError(t, err)
	defer alice.Close()
	bob, err := Dial(ctx, url, nil)
	require.NoError(t, err)

	id, err := alice.Call("JoinRoom", map[string]string{"room": "lobby", "peerId": "p1", "displayName": "Alice"})
	require.NoError(t, err)
	ack := waitFor(t, alice, "JoinRoom-ack")
	assert.Equal(t, id, ack.ID)
	assert.Equal(t, "* joined an empty room", Describe(ack))

	_, err = bob.Call("JoinRoom", map[string]string{"room": "lobby", "peerId": "p2", "displayName": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "* joined, already here: Alice (p1)", Describe(waitFor(t, bob, "JoinRoom-ack")))
	assert.Equal(t, "* Bob (p2) joined", Describe(waitFor(t, alice, "UserConnected")))

	event, body, ok := ParseInput("hello there")
	require.True(t, ok)
	_, err = bob.Call(event, body)
	require.NoError(t, err)
	assert.Equal(t, "<Bob> hello there", Describe(waitFor(t, alice, "ChatMessage")))

	event, body, ok = ParseInput("/hand")
	require.True(t, ok)
	_, err = bob.Call(event, body)
	require.NoError(t, err)
	assert.Equal(t, "* p2: UserRaisedHand", Describe(waitFor(t, alice, "UserRaisedHand")))

	require.NoError(t, bob.Close())
	assert.Equal(t, "* p2 left", Describe(waitFor(t, alice, "UserDisconnected")))
}

func TestAwaitReturnsRejection(t *testing.T) {
	url := relayURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	alice, err := Dial(ctx, url, nil)
	require.NoError(t, err)
	defer alice.Close()
	impostor, err := Dial(ctx, url, nil)
	require.NoError(t, err)
	defer impostor.Close()

	id, err := alice.Call("JoinRoom", map[string]string{"room": "lobby", "peerId": "p1", "displayName": "Alice"})
	require.NoError(t, err)
	ack, err := alice.Await(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, "JoinRoom-ack", ack.Event)

	id, err = impostor.Call("JoinRoom", map[string]string{"room": "lobby", "peerId": "p1", "displayName": "Eve"})
	require.NoError(t, err)
	_, err = impostor.Await(ctx, id, nil)
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "peer_id_taken")
}

func TestCloseStopsReaderWithUndrainedFrames(t *testing.T) {
	url := relayURL(t)
	ctx := context.Background()

	alice, err := Dial(ctx, url, nil)
	require.NoError(t, err)
	bob, err := Dial(ctx, url, nil)
	require.NoError(t, err)
	defer bob.Close()

	id, err := alice.Call("JoinRoom", map[string]string{"room": "lobby", "peerId": "p1", "displayName": "Alice"})
	require.NoError(t, err)
	_, err = alice.Await(ctx, id, nil)
	require.NoError(t, err)
	id, err = bob.Call("JoinRoom", map[string]string{"room": "lobby", "peerId": "p2", "displayName": "Bob"})
	require.NoError(t, err)
	_, err = bob.Await(ctx, id, nil)
	require.NoError(t, err)

	// Nobody reads alice's frames, so her incoming queue fills up.
	for i := 0; i < cap(alice.incoming)+8; i++ {
		_, err := bob.Call("BroadcastMessage", map[string]string{"text": "spam"})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		return len(alice.incoming) == cap(alice.incoming)
	}, 3*time.Second, 10*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = alice.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked on a full incoming queue")
	}
}

func TestParseInput(t *testing.T) {
	_, _, ok := ParseInput("   ")
	assert.False(t, ok)
	_, _, ok = ParseInput("/unknown")
	assert.False(t, ok)

	event, _, ok := ParseInput("/record")
	assert.True(t, ok)
	assert.Equal(t, "ToggleRecording", event)
}

func TestDescribeFallbacks(t *testing.T) {
	assert.Equal(t, "", Describe(Frame{Event: "BroadcastMessage-ack", Body: json.RawMessage(`{}`)}))
	assert.Equal(t, "! BroadcastMessage rejected: not_joined",
		Describe(Frame{Event: "error", Body: json.RawMessage(`{"error":"not_joined","request":"BroadcastMessage"}`)}))
	assert.Equal(t, "? Mystery {}", Describe(Frame{Event: "Mystery", Body: json.RawMessage(`{}`)}))
}
