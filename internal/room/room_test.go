package room

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kanavis/onliapa/internal/auth"
	"github.com/kanavis/onliapa/internal/protocol"
)

type testRoom struct {
	room  *Room
	bus   *Bus
	srv   *httptest.Server
	joins chan JoinData
	parts chan LeaveData
}

func newTestRoom(t *testing.T) *testRoom {
	t.Helper()
	bus := NewBus(zerolog.Nop())
	tr := &testRoom{
		bus:   bus,
		room:  New("testgame", bus, zerolog.Nop()),
		joins: make(chan JoinData, 8),
		parts: make(chan LeaveData, 8),
	}
	bus.Subscribe(EventJoin, func(ctx context.Context, data any) {
		tr.joins <- data.(JoinData)
	})
	bus.Subscribe(EventLeave, func(ctx context.Context, data any) {
		tr.parts <- data.(LeaveData)
	})

	upgrader := websocket.Upgrader{}
	tr.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewConn(ws)
		name := r.URL.Query().Get("name")
		if name == "admin" {
			tr.room.ServeAdmin(r.Context(), c)
		} else {
			tr.room.ServeUser(r.Context(), auth.FromName(name), c)
		}
	}))
	t.Cleanup(tr.srv.Close)
	return tr
}

func (tr *testRoom) dial(t *testing.T, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(tr.srv.URL, "http") + "/?name=" + name
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", name, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (tr *testRoom) waitJoin(t *testing.T) JoinData {
	t.Helper()
	select {
	case j := <-tr.joins:
		return j
	case <-time.After(2 * time.Second):
		t.Fatalf("no join event")
		return JoinData{}
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) []byte {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return frame
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	tr := newTestRoom(t)
	alice := tr.dial(t, "alice")
	bob := tr.dial(t, "bob")
	admin := tr.dial(t, "admin")
	tr.waitJoin(t)
	tr.waitJoin(t)

	frame := protocol.MustMsg("game-state", map[string]string{"hello": "all"})
	tr.room.Broadcast(frame, true)

	for _, ws := range []*websocket.Conn{alice, bob, admin} {
		got := readFrame(t, ws)
		if string(got) != string(frame) {
			t.Fatalf("got %s, want %s", got, frame)
		}
	}
}

func TestSendUserMultipleTabs(t *testing.T) {
	tr := newTestRoom(t)
	tab1 := tr.dial(t, "alice")
	tab2 := tr.dial(t, "alice")
	tr.waitJoin(t)
	tr.waitJoin(t)
	aliceID := auth.FromName("alice").ID

	frame := protocol.MustMsg("user-state", map[string]string{"state_name": "standby"})
	if !tr.room.SendUser(aliceID, frame, nil) {
		t.Fatalf("send to connected user reported failure")
	}
	for _, ws := range []*websocket.Conn{tab1, tab2} {
		if got := readFrame(t, ws); string(got) != string(frame) {
			t.Fatalf("tab got %s", got)
		}
	}
}

func TestSendUserReportsUnreachable(t *testing.T) {
	tr := newTestRoom(t)
	alice := tr.dial(t, "alice")
	tr.waitJoin(t)
	aliceID := auth.FromName("alice").ID

	_ = alice.Close()
	select {
	case <-tr.parts:
	case <-time.After(2 * time.Second):
		t.Fatalf("no leave event after close")
	}

	if tr.room.SendUser(aliceID, []byte(`{"tag":"x","message":{}}`), nil) {
		t.Fatalf("send to a departed user reported success")
	}
}

func TestKickSendsTerminalFrameAndCloses(t *testing.T) {
	tr := newTestRoom(t)
	bob := tr.dial(t, "bob")
	tr.waitJoin(t)

	tr.room.Kick(auth.FromName("bob").ID)

	frame := readFrame(t, bob)
	_, _, err := protocol.Decode(frame)
	remote, ok := err.(*protocol.RemoteError)
	if !ok || remote.Tag != protocol.TagKick {
		t.Fatalf("expected kick error frame, got %s (%v)", frame, err)
	}
	_ = bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := bob.ReadMessage(); err == nil {
		t.Fatalf("connection still open after kick")
	}
}

func TestProtocolErrorKeepsConnectionOpen(t *testing.T) {
	tr := newTestRoom(t)

	received := make(chan struct{}, 1)
	SubscribeMessage(tr.bus, "word-guessed", func(ctx context.Context, msg *protocol.Empty, origin Origin) {
		received <- struct{}{}
	})

	alice := tr.dial(t, "alice")
	tr.waitJoin(t)

	// Garbage, then a valid frame on the same connection.
	if err := alice.WriteMessage(websocket.TextMessage, []byte("not json at all")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := alice.WriteMessage(websocket.TextMessage, []byte(`{"tag":"word-guessed","message":{}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatalf("valid frame after garbage was not dispatched")
	}
}

func TestAdminTagsUnreachableFromPlayers(t *testing.T) {
	tr := newTestRoom(t)

	kicks := make(chan Origin, 2)
	SubscribeMessage(tr.bus, "admin-kick-user", func(ctx context.Context, msg *protocol.UserID, origin Origin) {
		kicks <- origin
	})
	pings := make(chan struct{}, 2)
	SubscribeMessage(tr.bus, "word-guessed", func(ctx context.Context, msg *protocol.Empty, origin Origin) {
		pings <- struct{}{}
	})

	alice := tr.dial(t, "alice")
	tr.waitJoin(t)
	admin := tr.dial(t, "admin")

	// A player trying the admin tag directly is dropped; the follow-up
	// frame proves the first one was already processed.
	if err := alice.WriteMessage(websocket.TextMessage, []byte(`{"tag":"admin-kick-user","message":{"user_id":1}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := alice.WriteMessage(websocket.TextMessage, []byte(`{"tag":"word-guessed","message":{}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatalf("follow-up frame not dispatched")
	}
	select {
	case <-kicks:
		t.Fatalf("player frame reached admin handler")
	default:
	}

	// The admin channel reaches it with the bare tag.
	if err := admin.WriteMessage(websocket.TextMessage, []byte(`{"tag":"kick-user","message":{"user_id":1}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case origin := <-kicks:
		if origin.User != nil {
			t.Fatalf("admin origin carries a user identity")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("admin frame not dispatched")
	}
}
