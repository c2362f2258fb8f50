package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"screenrelay/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSessions struct {
	mu       sync.Mutex
	joins    []domain.TargetName
	joinErr  error
	inputs   []domain.InputEvent
	inputErr error
}

func (f *fakeSessions) Join(ctx context.Context, target domain.TargetName, kind domain.SessionKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joins = append(f.joins, target)
	return nil
}

func (f *fakeSessions) SendInput(target domain.TargetName, event domain.InputEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inputErr != nil {
		return f.inputErr
	}
	f.inputs = append(f.inputs, event)
	return nil
}

func (f *fakeSessions) Status() []domain.SessionStatus { return nil }
func (f *fakeSessions) StopAll()                       {}

func testHubConfig() HubConfig {
	return HubConfig{
		PingInterval:      10 * time.Second,
		PongTimeout:       20 * time.Second,
		WriteTimeout:      time.Second,
		MaxMessageBytes:   16 * 1024,
		MessagesPerSecond: 100,
		MessageBurst:      100,
		SendBuffer:        8,
	}
}

type hubFixture struct {
	hub      *Hub
	sessions *fakeSessions
	server   *httptest.Server
	client   *websocket.Conn
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	hub := NewHub(testHubConfig(), zap.NewNop().Sugar())
	sessions := &fakeSessions{}
	hub.AttachSessions(sessions)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return &hubFixture{hub: hub, sessions: sessions, server: server, client: client}
}

func (f *hubFixture) send(t *testing.T, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, f.client.WriteJSON(ViewerMessage{Type: msgType, Payload: raw}))
}

func (f *hubFixture) read(t *testing.T) event {
	t.Helper()
	f.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e event
	require.NoError(t, f.client.ReadJSON(&e))
	return e
}

func TestHub_JoinRegistersSubscriber(t *testing.T) {
	f := newHubFixture(t)

	f.send(t, "join_stream", JoinPayload{Target: "Pixel_6", Kind: domain.SessionScreenshot})

	e := f.read(t)
	assert.Equal(t, "joined", e.Type)
	assert.Equal(t, domain.TargetName("Pixel_6"), e.Target)
	assert.Equal(t, 1, f.hub.SubscriberCount("Pixel_6"))

	f.sessions.mu.Lock()
	defer f.sessions.mu.Unlock()
	assert.Equal(t, []domain.TargetName{"Pixel_6"}, f.sessions.joins)
}

func TestHub_FailedJoinLeavesNoMembership(t *testing.T) {
	f := newHubFixture(t)
	f.sessions.joinErr = &domain.DeviceNotFoundError{
		Target: "Nope",
		Known:  []string{"Galaxy_S23", "Pixel_6"},
	}

	f.send(t, "join_stream", JoinPayload{Target: "Nope"})

	e := f.read(t)
	assert.Equal(t, "error", e.Type)
	assert.Equal(t, []string{"Galaxy_S23", "Pixel_6"}, e.Known)
	assert.Zero(t, f.hub.SubscriberCount("Nope"))
}

func TestHub_PublishReachesGroupMembers(t *testing.T) {
	f := newHubFixture(t)

	f.send(t, "join_stream", JoinPayload{Target: "Pixel_6"})
	require.Equal(t, "joined", f.read(t).Type)

	payload := []byte("png bytes here")
	f.hub.Publish("Pixel_6", domain.Frame{
		Target:     "Pixel_6",
		Kind:       domain.SessionScreenshot,
		Payload:    payload,
		CapturedAt: time.UnixMilli(1700000000123),
	})

	e := f.read(t)
	assert.Equal(t, "frame", e.Type)
	assert.Equal(t, domain.TargetName("Pixel_6"), e.Target)
	assert.Equal(t, payload, e.Data)
	assert.Equal(t, int64(1700000000123), e.CapturedAtMs)
}

func TestHub_PublishSkipsOtherTargets(t *testing.T) {
	f := newHubFixture(t)

	f.send(t, "join_stream", JoinPayload{Target: "Pixel_6"})
	require.Equal(t, "joined", f.read(t).Type)

	f.hub.Publish("Galaxy_S23", domain.Frame{Target: "Galaxy_S23", Payload: []byte("x")})

	// Nothing should arrive; a short read deadline proves silence.
	f.client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var e event
	assert.Error(t, f.client.ReadJSON(&e))
}

func TestHub_PublishErrorDelivered(t *testing.T) {
	f := newHubFixture(t)

	f.send(t, "join_stream", JoinPayload{Target: "Pixel_6"})
	require.Equal(t, "joined", f.read(t).Type)

	f.hub.PublishError("Pixel_6", domain.StreamError{
		Target:  "Pixel_6",
		Message: "stream stopped after 5 consecutive capture failures",
	})

	e := f.read(t)
	assert.Equal(t, "stream_error", e.Type)
	assert.Contains(t, e.Message, "capture failures")
}

func TestHub_LeaveRemovesMembership(t *testing.T) {
	f := newHubFixture(t)

	f.send(t, "join_stream", JoinPayload{Target: "Pixel_6"})
	require.Equal(t, "joined", f.read(t).Type)

	f.send(t, "leave_stream", LeavePayload{Target: "Pixel_6"})
	e := f.read(t)
	assert.Equal(t, "left", e.Type)
	assert.Zero(t, f.hub.SubscriberCount("Pixel_6"))
}

func TestHub_SendInputForwarded(t *testing.T) {
	f := newHubFixture(t)

	f.send(t, "send_input", InputPayload{
		Target: "Pixel_6",
		Action: domain.ActionSwipe,
		X:      10, Y: 20, X2: 30, Y2: 40,
		DurationMs: 150,
	})

	require.Eventually(t, func() bool {
		f.sessions.mu.Lock()
		defer f.sessions.mu.Unlock()
		return len(f.sessions.inputs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.sessions.mu.Lock()
	defer f.sessions.mu.Unlock()
	assert.Equal(t, domain.ActionSwipe, f.sessions.inputs[0].Action)
	assert.Equal(t, 150, f.sessions.inputs[0].DurationMs)
}

func TestHub_UnknownMessageType(t *testing.T) {
	f := newHubFixture(t)

	f.send(t, "teleport", nil)
	e := f.read(t)
	assert.Equal(t, "error", e.Type)
	assert.Contains(t, e.Message, "unknown message type")
}

func TestHub_DisconnectCleansUp(t *testing.T) {
	f := newHubFixture(t)

	f.send(t, "join_stream", JoinPayload{Target: "Pixel_6"})
	require.Equal(t, "joined", f.read(t).Type)
	require.Equal(t, 1, f.hub.ConnectionCount())

	f.client.Close()

	require.Eventually(t, func() bool {
		return f.hub.ConnectionCount() == 0 && f.hub.SubscriberCount("Pixel_6") == 0
	}, 2*time.Second, 10*time.Millisecond)
}
