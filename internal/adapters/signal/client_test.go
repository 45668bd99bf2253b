package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectern/meshcall/internal/core"
	"github.com/lectern/meshcall/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newSignalServer runs handler on each accepted connection and returns the
// ws:// URL to dial.
func newSignalServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer ws.Close()
		handler(ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testIdentity() domain.Identity {
	return domain.Identity{UserID: "user-1", Name: "Ada", Role: domain.RoleStudent}
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestDialAnnouncesMembershipFirst(t *testing.T) {
	got := make(chan map[string]any, 1)
	url := newSignalServer(t, func(ws *websocket.Conn) {
		got <- readFrame(t, ws)
	})

	c, err := Dial(context.Background(), url, "math-101", testIdentity())
	require.NoError(t, err)
	defer c.Close()

	select {
	case m := <-got:
		assert.Equal(t, "join-room", m["type"])
		assert.Equal(t, "user-1", m["userId"])
		assert.Equal(t, "math-101", m["roomId"])
		assert.Equal(t, "Ada", m["name"])
	case <-time.After(2 * time.Second):
		t.Fatal("server never received join-room")
	}
}

func TestInboundFramesBecomeEvents(t *testing.T) {
	frames := []string{
		`{"type":"user-list","users":[
			{"userId":"u-a","socketId":"s-a","name":"Alice","role":"student"},
			{"userId":"u-b","socketId":"s-b","name":"Bob","role":"moderator"}]}`,
		`{"type":"user-joined","userId":"u-c","socketId":"s-c","name":"Carol","role":"student"}`,
		`{"type":"user-name-changed","socketId":"s-c","newName":"Caroline"}`,
		`{"type":"user-hand-raised","socketId":"s-c","isRaised":true,"userName":"Caroline"}`,
		`{"type":"user-voice-activity","socketId":"s-c","isActive":true}`,
		`{"type":"offer","from":"s-a","to":"s-me","offer":{"type":"offer","sdp":"v=0"}}`,
		`{"type":"answer","from":"s-b","to":"s-me","answer":{"type":"answer","sdp":"v=0"}}`,
		`{"type":"ice-candidate","from":"s-a","to":"s-me","candidate":{"candidate":"candidate:1"}}`,
		`{"type":"user-disconnected","socketId":"s-a"}`,
		`{"type":"moderator-left","message":"moderator left","countdown":60}`,
		`{"type":"moderator-returned","message":"moderator is back"}`,
		`{"type":"unknown-kind","payload":"dropped"}`,
		`{"type":"room-closed","reason":"empty"}`,
	}
	url := newSignalServer(t, func(ws *websocket.Conn) {
		readFrame(t, ws) // join-room
		for _, f := range frames {
			require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(f)))
		}
		time.Sleep(time.Second)
	})

	c, err := Dial(context.Background(), url, "math-101", testIdentity())
	require.NoError(t, err)
	defer c.Close()

	next := func() core.Event {
		select {
		case ev := <-c.Events():
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("no event")
			return core.Event{}
		}
	}

	ev := next()
	require.Equal(t, core.EventRoster, ev.Kind)
	require.Len(t, ev.Roster, 2)
	assert.Equal(t, domain.PeerID("s-a"), ev.Roster[0].ID)
	assert.Equal(t, domain.RoleModerator, ev.Roster[1].Role)

	ev = next()
	require.Equal(t, core.EventPeerJoined, ev.Kind)
	assert.Equal(t, domain.PeerID("s-c"), ev.From)
	assert.Equal(t, "Carol", ev.Peer.Name)

	ev = next()
	require.Equal(t, core.EventNameChanged, ev.Kind)
	assert.Equal(t, "Caroline", ev.Name)

	ev = next()
	require.Equal(t, core.EventHandRaised, ev.Kind)
	assert.True(t, ev.Raised)

	ev = next()
	require.Equal(t, core.EventVoiceActivity, ev.Kind)
	assert.True(t, ev.Active)

	ev = next()
	require.Equal(t, core.EventOffer, ev.Kind)
	assert.Equal(t, domain.PeerID("s-a"), ev.From)
	assert.Equal(t, "v=0", ev.SDP.SDP)

	ev = next()
	require.Equal(t, core.EventAnswer, ev.Kind)
	assert.Equal(t, domain.PeerID("s-b"), ev.From)

	ev = next()
	require.Equal(t, core.EventCandidate, ev.Kind)
	assert.Equal(t, "candidate:1", ev.Candidate.Candidate)

	ev = next()
	require.Equal(t, core.EventPeerDisconnected, ev.Kind)
	assert.Equal(t, domain.PeerID("s-a"), ev.From)

	ev = next()
	require.Equal(t, core.EventModeratorLeft, ev.Kind)
	assert.Equal(t, 60, ev.Countdown)

	ev = next()
	require.Equal(t, core.EventModeratorReturned, ev.Kind)

	// The unknown kind is dropped; room-closed comes straight after.
	ev = next()
	require.Equal(t, core.EventRoomClosed, ev.Kind)
	assert.Equal(t, "empty", ev.Reason)
}

func TestOutboundFrameShapes(t *testing.T) {
	got := make(chan map[string]any, 8)
	url := newSignalServer(t, func(ws *websocket.Conn) {
		readFrame(t, ws) // join-room
		for i := 0; i < 4; i++ {
			got <- readFrame(t, ws)
		}
	})

	c, err := Dial(context.Background(), url, "math-101", testIdentity())
	require.NoError(t, err)
	defer c.Close()
	c.SetSelfPeer("s-me")

	require.NoError(t, c.SendOffer("s-a", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}))
	require.NoError(t, c.SendCandidate("s-a", webrtc.ICECandidateInit{Candidate: "candidate:9"}))
	require.NoError(t, c.SendHandRaised(true))
	require.NoError(t, c.SendNameChange("Ada L"))

	read := func() map[string]any {
		select {
		case m := <-got:
			return m
		case <-time.After(2 * time.Second):
			t.Fatal("server missed a frame")
			return nil
		}
	}

	m := read()
	assert.Equal(t, "offer", m["type"])
	assert.Equal(t, "s-a", m["to"])
	assert.Equal(t, "s-me", m["from"])
	require.NotNil(t, m["offer"])

	m = read()
	assert.Equal(t, "ice-candidate", m["type"])
	assert.Equal(t, "candidate:9", m["candidate"].(map[string]any)["candidate"])

	m = read()
	assert.Equal(t, "hand-raised", m["type"])
	assert.Equal(t, true, m["isRaised"])
	assert.Equal(t, "Ada", m["userName"])

	m = read()
	assert.Equal(t, "name-changed", m["type"])
	assert.Equal(t, "Ada L", m["newName"])
	assert.Equal(t, "math-101", m["roomId"])
}

func TestCloseIsIdempotent(t *testing.T) {
	joined := make(chan struct{})
	url := newSignalServer(t, func(ws *websocket.Conn) {
		readFrame(t, ws)
		close(joined)
		time.Sleep(time.Second)
	})

	c, err := Dial(context.Background(), url, "math-101", testIdentity())
	require.NoError(t, err)

	// Let the server consume the join frame before tearing down, so its
	// readFrame cannot fail in a goroutine after the test has completed.
	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received join-room")
	}

	c.Close()
	c.Close()

	assert.ErrorIs(t, c.TrySend(core.Frame(`{}`)), ErrClosed)

	// The events channel terminates once the connection is gone.
	select {
	case _, ok := <-c.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed")
	}
}

func TestServerGoneClosesEvents(t *testing.T) {
	url := newSignalServer(t, func(ws *websocket.Conn) {
		readFrame(t, ws)
	})

	c, err := Dial(context.Background(), url, "math-101", testIdentity())
	require.NoError(t, err)
	defer c.Close()

	select {
	case _, ok := <-c.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed")
	}
}
