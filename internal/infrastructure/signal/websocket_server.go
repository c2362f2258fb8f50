package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"screenrelay/internal/core/domain"
	"screenrelay/internal/core/ports"
	"screenrelay/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HubConfig tunes per-connection behavior of the viewer hub.
type HubConfig struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxMessageBytes   int64
	MessagesPerSecond float64
	MessageBurst      int
	SendBuffer        int
}

// ViewerMessage is the envelope for every command a viewer sends.
type ViewerMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	Target domain.TargetName  `json:"target"`
	Kind   domain.SessionKind `json:"kind,omitempty"`
}

type LeavePayload struct {
	Target domain.TargetName `json:"target"`
}

type InputPayload struct {
	Target     domain.TargetName  `json:"target"`
	Action     domain.InputAction `json:"action"`
	X          int                `json:"x"`
	Y          int                `json:"y"`
	X2         int                `json:"x2,omitempty"`
	Y2         int                `json:"y2,omitempty"`
	DurationMs int                `json:"duration_ms,omitempty"`
}

// event is the envelope for everything the hub pushes to viewers. Data is
// base64-encoded by encoding/json.
type event struct {
	Type         string             `json:"type"`
	Target       domain.TargetName  `json:"target,omitempty"`
	Kind         domain.SessionKind `json:"kind,omitempty"`
	Data         []byte             `json:"data,omitempty"`
	SizeBytes    int                `json:"size_bytes,omitempty"`
	CapturedAtMs int64              `json:"captured_at_ms,omitempty"`
	Message      string             `json:"message,omitempty"`
	Known        []string           `json:"known_devices,omitempty"`
}

// viewerConn is one websocket viewer. The send channel decouples frame
// fan-out from the socket: a viewer that cannot keep up drops frames instead
// of stalling the capture loop.
type viewerConn struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
}

func (v *viewerConn) close() {
	v.closeOnce.Do(func() {
		close(v.send)
	})
}

// Hub owns viewer connections and their target memberships and implements
// the fan-out substrate the capture loops publish into.
type Hub struct {
	cfg      HubConfig
	sessions ports.SessionService
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	viewers map[string]*viewerConn
	groups  map[domain.TargetName]map[string]*viewerConn
}

func NewHub(cfg HubConfig, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		viewers: make(map[string]*viewerConn),
		groups:  make(map[domain.TargetName]map[string]*viewerConn),
	}
}

// AttachSessions binds the session service after construction. The hub and
// the service reference each other; the hub is built first.
func (h *Hub) AttachSessions(sessions ports.SessionService) {
	h.sessions = sessions
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	viewer := &viewerConn{
		id:      utils.GenerateViewerID(),
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), h.cfg.MessageBurst),
	}

	h.mu.Lock()
	h.viewers[viewer.id] = viewer
	h.mu.Unlock()

	h.logger.Infow("viewer connected", "viewer_id", viewer.id, "remote", r.RemoteAddr)

	go h.writePump(viewer)
	h.readPump(r.Context(), viewer)
}

// readPump processes commands until the socket dies, then tears the viewer
// down. Runs on the HTTP handler goroutine.
func (h *Hub) readPump(ctx context.Context, v *viewerConn) {
	defer h.disconnect(v)

	v.conn.SetReadLimit(h.cfg.MaxMessageBytes)
	v.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	v.conn.SetPongHandler(func(string) error {
		v.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		return nil
	})

	for {
		var msg ViewerMessage
		if err := v.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Infow("viewer read error", "viewer_id", v.id, "error", err)
			}
			return
		}
		v.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		if !v.limiter.Allow() {
			h.enqueue(v, event{Type: "error", Message: "message rate exceeded"})
			continue
		}

		if err := h.handleMessage(ctx, v, msg); err != nil {
			h.logger.Infow("viewer command failed",
				"viewer_id", v.id,
				"type", msg.Type,
				"error", err,
			)
			h.sendCommandError(v, err)
		}
	}
}

// writePump owns all writes to the socket: queued events plus pings.
func (h *Hub) writePump(v *viewerConn) {
	pingTicker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		pingTicker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.send:
			if !ok {
				v.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
				v.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			v.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-pingTicker.C:
			v.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleMessage(ctx context.Context, v *viewerConn, msg ViewerMessage) error {
	switch msg.Type {
	case "join_stream":
		return h.handleJoin(ctx, v, msg.Payload)
	case "leave_stream":
		return h.handleLeave(v, msg.Payload)
	case "send_input":
		return h.handleInput(v, msg.Payload)
	case "":
		return fmt.Errorf("message type is required")
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (h *Hub) handleJoin(ctx context.Context, v *viewerConn, raw json.RawMessage) error {
	var payload JoinPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid join_stream payload: %w", err)
	}
	if payload.Target == "" {
		return fmt.Errorf("target is required")
	}

	// Membership goes in before the session starts so the capture loop sees
	// a nonzero viewer count from its first iteration.
	h.addMember(payload.Target, v)

	if err := h.sessions.Join(ctx, payload.Target, payload.Kind); err != nil {
		h.removeMember(payload.Target, v)
		return err
	}

	h.enqueue(v, event{Type: "joined", Target: payload.Target, Kind: payload.Kind})
	return nil
}

func (h *Hub) handleLeave(v *viewerConn, raw json.RawMessage) error {
	var payload LeavePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid leave_stream payload: %w", err)
	}
	if payload.Target == "" {
		return fmt.Errorf("target is required")
	}

	h.removeMember(payload.Target, v)
	h.enqueue(v, event{Type: "left", Target: payload.Target})
	return nil
}

func (h *Hub) handleInput(v *viewerConn, raw json.RawMessage) error {
	var payload InputPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid send_input payload: %w", err)
	}
	if payload.Target == "" {
		return fmt.Errorf("target is required")
	}

	return h.sessions.SendInput(payload.Target, domain.InputEvent{
		Action:     payload.Action,
		X:          payload.X,
		Y:          payload.Y,
		X2:         payload.X2,
		Y2:         payload.Y2,
		DurationMs: payload.DurationMs,
	})
}

// Publish fans a frame out to every member of the target's group.
// Implements ports.Broadcaster.
func (h *Hub) Publish(target domain.TargetName, frame domain.Frame) {
	data, err := json.Marshal(event{
		Type:         "frame",
		Target:       target,
		Kind:         frame.Kind,
		Data:         frame.Payload,
		SizeBytes:    len(frame.Payload),
		CapturedAtMs: frame.CapturedAt.UnixMilli(),
	})
	if err != nil {
		h.logger.Errorw("frame marshal failed", "target", target, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, v := range h.groups[target] {
		h.enqueueRaw(v, data)
	}
}

// PublishError delivers a terminal stream error to the target's group.
func (h *Hub) PublishError(target domain.TargetName, streamErr domain.StreamError) {
	data, err := json.Marshal(event{
		Type:    "stream_error",
		Target:  target,
		Message: streamErr.Message,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, v := range h.groups[target] {
		h.enqueueRaw(v, data)
	}
}

func (h *Hub) SubscriberCount(target domain.TargetName) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[target])
}

// ConnectionCount reports total open viewer sockets, for health reporting.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *Hub) addMember(target domain.TargetName, v *viewerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[target]
	if !ok {
		group = make(map[string]*viewerConn)
		h.groups[target] = group
	}
	group[v.id] = v
}

func (h *Hub) removeMember(target domain.TargetName, v *viewerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeMemberLocked(target, v)
}

func (h *Hub) removeMemberLocked(target domain.TargetName, v *viewerConn) {
	group, ok := h.groups[target]
	if !ok {
		return
	}
	delete(group, v.id)
	if len(group) == 0 {
		delete(h.groups, target)
	}
}

// disconnect removes the viewer from every group and shuts its writer down.
// Session teardown is not triggered here: the capture loop notices the empty
// group on its next iteration.
func (h *Hub) disconnect(v *viewerConn) {
	h.mu.Lock()
	delete(h.viewers, v.id)
	for target := range h.groups {
		h.removeMemberLocked(target, v)
	}
	h.mu.Unlock()

	v.close()
	h.logger.Infow("viewer disconnected", "viewer_id", v.id)
}

func (h *Hub) enqueue(v *viewerConn, e event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	h.enqueueRaw(v, data)
}

// enqueueRaw never blocks: a full send buffer means the viewer is behind and
// this payload is dropped for them.
func (h *Hub) enqueueRaw(v *viewerConn, data []byte) {
	defer func() {
		// The send channel closes on disconnect; a concurrent fan-out may
		// race that close.
		recover()
	}()
	select {
	case v.send <- data:
	default:
	}
}

func (h *Hub) sendCommandError(v *viewerConn, err error) {
	e := event{Type: "error", Message: err.Error()}
	var notFound *domain.DeviceNotFoundError
	if errors.As(err, &notFound) {
		e.Known = notFound.Known
	}
	h.enqueue(v, e)
}
