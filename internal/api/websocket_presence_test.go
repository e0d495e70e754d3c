package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/internal/events"
	"trading-journal/internal/records"
)

type wireEvent struct {
	Type   events.EventType       `json:"type"`
	UserID string                 `json:"userId"`
	Data   map[string]interface{} `json:"data"`
}

func startHub(t *testing.T, bus *events.EventBus) *PresenceHub {
	t.Helper()
	hub := NewPresenceHub(bus)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func fakeClient(hub *PresenceHub, userID string, buffer int) *PresenceClient {
	return &PresenceClient{
		send:   make(chan []byte, buffer),
		hub:    hub,
		userID: userID,
	}
}

func nextEvent(t *testing.T, c *PresenceClient) wireEvent {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "client channel closed")
		var ev wireEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event for %s", c.userID)
		return wireEvent{}
	}
}

func onlineOf(ev wireEvent) []string {
	var out []string
	list, _ := ev.Data["online"].([]interface{})
	for _, v := range list {
		out = append(out, v.(string))
	}
	return out
}

func TestNewPresenceHub(t *testing.T) {
	hub := NewPresenceHub(nil)

	require.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.userClients)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.userCast)
	assert.Equal(t, 0, hub.GetTotalClientCount())
	assert.Empty(t, hub.GetConnectedUsers())
}

func TestPresenceUpdatesOnFirstAndLastConnection(t *testing.T) {
	hub := startHub(t, nil)

	alice := fakeClient(hub, "alice", sendBufferSize)
	hub.register <- alice
	ev := nextEvent(t, alice)
	assert.Equal(t, events.EventPresenceUpdate, ev.Type)
	assert.Equal(t, []string{"alice"}, onlineOf(ev))

	bob := fakeClient(hub, "bob", sendBufferSize)
	hub.register <- bob
	assert.Equal(t, []string{"alice", "bob"}, onlineOf(nextEvent(t, alice)))
	assert.Equal(t, []string{"alice", "bob"}, onlineOf(nextEvent(t, bob)))

	// A second tab for alice does not change who is online
	aliceTab := fakeClient(hub, "alice", sendBufferSize)
	hub.register <- aliceTab
	hub.BroadcastToAll(events.Event{Type: events.EventChatMessage, Data: map[string]interface{}{"text": "marker"}})
	assert.Equal(t, events.EventChatMessage, nextEvent(t, aliceTab).Type)
	assert.Equal(t, events.EventChatMessage, nextEvent(t, alice).Type)
	assert.Equal(t, events.EventChatMessage, nextEvent(t, bob).Type)
	assert.Equal(t, 2, hub.GetUserClientCount("alice"))

	hub.unregister <- aliceTab
	hub.unregister <- alice
	ev = nextEvent(t, bob)
	assert.Equal(t, events.EventPresenceUpdate, ev.Type)
	assert.Equal(t, []string{"bob"}, onlineOf(ev))

	_, open := <-alice.send
	assert.False(t, open)
	assert.Equal(t, []string{"bob"}, hub.GetConnectedUsers())
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := startHub(t, nil)

	watcher := fakeClient(hub, "watcher", sendBufferSize)
	hub.register <- watcher
	nextEvent(t, watcher)

	stuck := fakeClient(hub, "stuck", 0)
	hub.register <- stuck

	require.Eventually(t, func() bool {
		return hub.GetUserClientCount("stuck") == 0
	}, time.Second, 10*time.Millisecond)

	// watcher saw stuck come and go
	assert.Equal(t, []string{"stuck", "watcher"}, onlineOf(nextEvent(t, watcher)))
	assert.Equal(t, []string{"watcher"}, onlineOf(nextEvent(t, watcher)))
}

func TestBroadcastToUserOnlyReachesThatUser(t *testing.T) {
	hub := startHub(t, nil)

	alice := fakeClient(hub, "alice", sendBufferSize)
	bob := fakeClient(hub, "bob", sendBufferSize)
	hub.register <- alice
	nextEvent(t, alice)
	hub.register <- bob
	nextEvent(t, alice)
	nextEvent(t, bob)

	hub.BroadcastToUser("bob", events.Event{Type: events.EventDashboardInvalidated})
	assert.Equal(t, events.EventDashboardInvalidated, nextEvent(t, bob).Type)

	hub.BroadcastToAll(events.Event{Type: events.EventChatMessage})
	assert.Equal(t, events.EventChatMessage, nextEvent(t, alice).Type, "alice must not see bob's push")
}

func TestRecordChangePushesDashboardInvalidated(t *testing.T) {
	bus := events.NewEventBus()
	hub := startHub(t, bus)

	alice := fakeClient(hub, "alice", sendBufferSize)
	hub.register <- alice
	nextEvent(t, alice)

	bus.PublishRecordChange(events.EventRecordCreated, "alice", string(records.KindDeposit), "d1")

	ev := nextEvent(t, alice)
	assert.Equal(t, events.EventDashboardInvalidated, ev.Type)
	assert.Equal(t, "deposits", ev.Data["kind"])
	assert.Equal(t, "d1", ev.Data["record_id"])
	assert.Equal(t, string(events.EventRecordCreated), ev.Data["change"])
}

func TestPresenceChangesArePublishedOnBus(t *testing.T) {
	bus := events.NewEventBus()
	got := make(chan events.Event, 2)
	bus.Subscribe(func(ev events.Event) { got <- ev }, events.EventPresenceUpdate)
	hub := startHub(t, bus)

	hub.register <- fakeClient(hub, "alice", sendBufferSize)

	select {
	case ev := <-got:
		assert.Equal(t, []string{"alice"}, ev.Data["online"])
	case <-time.After(time.Second):
		t.Fatal("presence not published")
	}
}

func TestValidateChat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain", "gm", "gm", true},
		{"trimmed", "  gm  ", "gm", true},
		{"empty", "", "", false},
		{"only spaces", "   ", "", false},
		{"at limit", strings.Repeat("é", MaxChatLength), strings.Repeat("é", MaxChatLength), true},
		{"over limit", strings.Repeat("a", MaxChatLength+1), strings.Repeat("a", MaxChatLength+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ValidateChat(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleInbound(t *testing.T) {
	hub := startHub(t, nil)

	alice := fakeClient(hub, "alice", sendBufferSize)
	bob := fakeClient(hub, "bob", sendBufferSize)
	hub.register <- alice
	nextEvent(t, alice)
	hub.register <- bob
	nextEvent(t, alice)
	nextEvent(t, bob)

	hub.handleInbound(alice, []byte(`{"type":"CHAT_MESSAGE","text":" hello "}`))
	for _, c := range []*PresenceClient{alice, bob} {
		ev := nextEvent(t, c)
		assert.Equal(t, events.EventChatMessage, ev.Type)
		assert.Equal(t, "alice", ev.Data["from"])
		assert.Equal(t, "hello", ev.Data["text"])
	}

	hub.handleInbound(alice, []byte(`{"type":"CHAT_MESSAGE","text":""}`))
	assert.Equal(t, events.EventError, nextEvent(t, alice).Type)

	hub.handleInbound(alice, []byte(`not json`))
	assert.Equal(t, events.EventError, nextEvent(t, alice).Type)

	hub.handleInbound(alice, []byte(`{"type":"SHOUT"}`))
	assert.Equal(t, events.EventError, nextEvent(t, alice).Type)
}

func TestStopClosesClients(t *testing.T) {
	hub := NewPresenceHub(nil)
	go hub.Run()

	alice := fakeClient(hub, "alice", sendBufferSize)
	hub.register <- alice
	nextEvent(t, alice)

	hub.Stop()
	hub.Stop()

	select {
	case _, open := <-alice.send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("client not closed on stop")
	}
}

func readWire(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestPresenceWebSocketEndToEnd(t *testing.T) {
	env := newTestEnv(t, records.NewMemoryStore(), 0)
	srv := httptest.NewServer(env.server.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token=garbage", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+env.token, nil)
	require.NoError(t, err)
	defer conn.Close()

	ev := readWire(t, conn)
	assert.Equal(t, events.EventConnected, ev.Type)
	assert.Equal(t, env.userID, ev.UserID)

	ev = readWire(t, conn)
	assert.Equal(t, events.EventPresenceUpdate, ev.Type)
	assert.Equal(t, []string{env.userID}, onlineOf(ev))

	w := env.do(http.MethodGet, "/api/presence", env.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), env.userID)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "CHAT_MESSAGE", "text": "gm"}))
	ev = readWire(t, conn)
	assert.Equal(t, events.EventChatMessage, ev.Type)
	assert.Equal(t, "gm", ev.Data["text"])

	w = env.do(http.MethodPost, "/api/deposits", env.token, map[string]interface{}{"amount": 5})
	require.Equal(t, http.StatusCreated, w.Code)
	ev = readWire(t, conn)
	assert.Equal(t, events.EventDashboardInvalidated, ev.Type)
}
