package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	appconfig "github.com/memorylink/vision-server/internal/config"
	"github.com/memorylink/vision-server/internal/protocol"
	"github.com/memorylink/vision-server/internal/scheduler"
	"github.com/memorylink/vision-server/internal/session/fsm"
	"github.com/memorylink/vision-server/internal/storage"
)

// Deps bundles the inference capabilities shared by all connections. Updater
// may be nil when no object-memory service is configured.
type Deps struct {
	Describer scheduler.Describer
	Faces     scheduler.FaceDetector
	Query     scheduler.QueryService
	Updater   scheduler.ObjectUpdater
	Forwarder scheduler.TriggerForwarder
}

// Handler upgrades websocket connections and owns the session registry.
type Handler struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	config   appconfig.Config
	deps     Deps
	sessions map[string]*session
	mu       sync.Mutex
}

type session struct {
	conn    *websocket.Conn
	sendMu  sync.Mutex
	histMu  sync.Mutex
	logger  *zap.Logger
	handler *Handler
	uid     string
	machine *fsm.Machine
	sched   *scheduler.Scheduler
}

// NewHandler builds the websocket handler.
func NewHandler(logger *zap.Logger, cfg appconfig.Config, deps Deps) *Handler {
	return &Handler{
		logger:   logger,
		config:   cfg,
		deps:     deps,
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ActiveSessions returns the number of live connections.
func (h *Handler) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Handle upgrades the request and runs the connection until disconnect.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := &session{
		conn:    conn,
		logger:  h.logger,
		handler: h,
		uid:     storage.NewSessionUID(),
		machine: fsm.New(),
	}
	sess.sched = scheduler.New(
		scheduler.Config{
			IdlePrompt:      h.config.VLM.IdlePrompt,
			ProcessInterval: h.config.FrameProcessInterval(),
			TickInterval:    h.config.TickInterval(),
			TriggerWords:    h.config.Scheduler.TriggerWords,
		},
		h.deps.Describer,
		h.deps.Faces,
		h.deps.Query,
		h.deps.Updater,
		h.deps.Forwarder,
		scheduler.Callbacks{OnReply: func(reply protocol.AnalysisReply) {
			sess.deliver("ambient", reply)
		}},
		h.logger,
	)

	sess.machine.OnOpen()
	h.registerSession(sess)
	sess.logger.Info("ws session opened", zap.String("session_id", sess.uid))

	sess.sendJSON(protocol.AnalysisReply{
		Response: fmt.Sprintf("System: watching %d trigger words", len(h.config.Scheduler.TriggerWords)),
		Triggers: []string{},
	})

	go sess.sched.Run(ctx)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			sess.logger.Debug("ws connection closed", zap.Error(err))
			break
		}
		var msg protocol.FrameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.sendJSON(protocol.NewErrorReply("Invalid JSON format"))
			continue
		}
		sess.handleFrame(ctx, msg)
	}

	cancel()
	sess.machine.OnClose()
	h.unregisterSession(sess.uid)
	sess.logger.Info("ws session closed", zap.String("session_id", sess.uid))
}

func (s *session) handleFrame(ctx context.Context, msg protocol.FrameMessage) {
	if msg.Image == "" {
		s.sendJSON(protocol.NewErrorReply("No image data received"))
		return
	}

	frame := scheduler.Frame{
		Data:       decodeFramePayload(msg.Image),
		ReceivedAt: time.Now(),
	}
	s.machine.OnFrame()

	route := scheduler.Decide(msg, s.handler.config.VLM.IdlePrompt)
	if route != scheduler.RouteAmbient {
		s.machine.OnProcessStart()
	}

	reply := s.sched.HandleMessage(ctx, frame, msg)
	if reply == nil {
		// Ambient frame: stored in the latest slot, picked up by the
		// periodic scanner.
		return
	}
	s.deliver(route.String(), *reply)
}

// deliver sends one reply and records it in the session history.
func (s *session) deliver(route string, reply protocol.AnalysisReply) {
	s.machine.OnProcessEnd()
	s.sendJSON(reply)

	record := storage.Record{
		Route:    route,
		Response: reply.Response,
		Triggers: reply.Triggers,
	}
	if reply.Faces != nil {
		record.FaceCount = reply.Faces.Count
	}

	// The read loop and the scanner callback both deliver; appends to the
	// session file must not interleave.
	s.histMu.Lock()
	defer s.histMu.Unlock()
	if err := storage.Append(s.handler.config.HistoryDir, s.uid, record); err != nil {
		s.logger.Debug("history append failed", zap.Error(err))
	}
}

// decodeFramePayload strips an optional data-URI header at the first comma
// and base64-decodes the rest. An undecodable payload is passed through raw;
// downstream capabilities degrade on their own.
func decodeFramePayload(image string) []byte {
	payload := image
	if idx := strings.Index(payload, ","); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return []byte(payload)
	}
	return data
}

func (s *session) sendJSON(payload any) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.machine.Closed() {
		return
	}
	if err := s.conn.WriteJSON(payload); err != nil {
		s.logger.Debug("ws send failed", zap.Error(err))
	}
}

func (h *Handler) registerSession(sess *session) {
	h.mu.Lock()
	h.sessions[sess.uid] = sess
	h.mu.Unlock()
}

func (h *Handler) unregisterSession(uid string) {
	h.mu.Lock()
	delete(h.sessions, uid)
	h.mu.Unlock()
}
