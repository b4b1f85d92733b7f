package scheduler

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/memorylink/vision-server/internal/protocol"
)

// QueryUnavailable is the reply used when the object-memory service cannot be
// reached on the speech path.
const QueryUnavailable = "Sorry, the memory service is not available right now."

// ClearResponse is the reply text when a path skips the VLM entirely.
const ClearResponse = "clear"

// Describer produces text for an image and prompt. Implementations degrade to
// a fallback string internally and never fail.
type Describer interface {
	Describe(ctx context.Context, image []byte, prompt string) string
}

// FaceDetector returns named detections for an image.
type FaceDetector interface {
	DetectFaces(ctx context.Context, image []byte) protocol.FaceReport
}

// QueryService answers natural-language questions about stored object state.
type QueryService interface {
	Query(ctx context.Context, text string) (string, error)
}

// ObjectUpdater pushes a frame snapshot for a named object so the memory
// service can refresh its stored state. Optional; may be nil.
type ObjectUpdater interface {
	UpdateObject(ctx context.Context, object string, imageB64 string) error
}

// TriggerForwarder dispatches one trigger hit with the full frame,
// fire-and-forget.
type TriggerForwarder interface {
	Forward(image []byte, trigger string)
}

// Config holds the per-connection scheduling knobs.
type Config struct {
	// IdlePrompt is the sentinel prompt meaning "no explicit user prompt".
	// It doubles as the ambient analysis prompt.
	IdlePrompt string
	// ProcessInterval is the minimum gap between completed periodic
	// inferences.
	ProcessInterval time.Duration
	// TickInterval is how often the background scanner re-evaluates its
	// gate. Independent of ProcessInterval.
	TickInterval time.Duration
	// TriggerWords is the target vocabulary scanned in ambient responses.
	TriggerWords []string
}

// Callbacks receives results produced outside a message exchange, i.e. by the
// periodic scanner.
type Callbacks struct {
	OnReply func(protocol.AnalysisReply)
}

// Frame is one decoded frame with its arrival time.
type Frame struct {
	Data       []byte
	ReceivedAt time.Time
}

// Scheduler owns the latest-frame slot and the decision of when and how to
// run inference for a single connection. Inbound immediate paths and the
// periodic scanner are serialized by one processing lock; the scanner skips
// its turn when the lock is contended.
type Scheduler struct {
	cfg       Config
	describer Describer
	faces     FaceDetector
	query     QueryService
	updater   ObjectUpdater
	forwarder TriggerForwarder
	callbacks Callbacks
	logger    *zap.Logger

	// processMu is the mutual-exclusion gate around inference. At most one
	// call is in flight per connection.
	processMu sync.Mutex

	// mu guards the latest-frame mailbox and the completion timestamp.
	mu            sync.Mutex
	latestFrame   *Frame
	latestMessage protocol.FrameMessage
	lastProcess   time.Time
}

// New builds a scheduler for one connection.
func New(cfg Config, describer Describer, faces FaceDetector, query QueryService, updater ObjectUpdater, forwarder TriggerForwarder, callbacks Callbacks, logger *zap.Logger) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	return &Scheduler{
		cfg:       cfg,
		describer: describer,
		faces:     faces,
		query:     query,
		updater:   updater,
		forwarder: forwarder,
		callbacks: callbacks,
		logger:    logger,
	}
}

// HandleMessage stores the frame in the latest slot and, when the message
// demands an immediate response path, runs inference under the processing
// lock. Ambient frames return nil and are left for the periodic scanner.
func (s *Scheduler) HandleMessage(ctx context.Context, frame Frame, msg protocol.FrameMessage) *protocol.AnalysisReply {
	s.mu.Lock()
	s.latestFrame = &frame
	s.latestMessage = msg
	s.mu.Unlock()

	route := Decide(msg, s.cfg.IdlePrompt)
	if route == RouteAmbient {
		return nil
	}

	s.processMu.Lock()
	defer s.processMu.Unlock()

	reply := s.run(ctx, frame, msg, route)
	s.markProcessed()
	return &reply
}

// Run drives the periodic scanner until the context is cancelled. It should
// be started once per connection.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one ambient scan if the connection is idle and nothing else is in
// flight. A contended lock means an inference is already running: the tick is
// skipped, never queued.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.processMu.TryLock() {
		return
	}
	defer s.processMu.Unlock()

	frame, msg, ok := s.idleSnapshot()
	if !ok {
		return
	}

	reply := s.run(ctx, frame, msg, RouteAmbient)
	s.markProcessed()
	if s.callbacks.OnReply != nil {
		s.callbacks.OnReply(reply)
	}
}

// idleSnapshot checks the periodic gate: enough time elapsed since the last
// completed inference, a frame present, and no pending explicit prompt. A
// pending user prompt is never consumed by the background scanner; it was
// already answered at message-arrival time.
func (s *Scheduler) idleSnapshot() (Frame, protocol.FrameMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latestFrame == nil {
		return Frame{}, protocol.FrameMessage{}, false
	}
	if time.Since(s.lastProcess) < s.cfg.ProcessInterval {
		return Frame{}, protocol.FrameMessage{}, false
	}
	prompt := s.latestMessage.Prompt
	if prompt != "" && prompt != s.cfg.IdlePrompt {
		return Frame{}, protocol.FrameMessage{}, false
	}
	return *s.latestFrame, s.latestMessage, true
}

func (s *Scheduler) markProcessed() {
	s.mu.Lock()
	s.lastProcess = time.Now()
	s.mu.Unlock()
}

// run executes one inference pass on the chosen route. Every route produces a
// reply; backends degrade to fallback text rather than failing.
func (s *Scheduler) run(ctx context.Context, frame Frame, msg protocol.FrameMessage, route Route) protocol.AnalysisReply {
	start := time.Now()
	defer func() {
		s.logger.Debug("frame processed",
			zap.String("route", route.String()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	switch route {
	case RouteSpeech:
		return s.runSpeech(ctx, frame, msg)
	case RouteQuery:
		return s.runQuery(ctx, frame, msg)
	case RouteFaceOnly:
		report := s.faces.DetectFaces(ctx, frame.Data)
		return protocol.AnalysisReply{Response: ClearResponse, Faces: &report}
	default:
		return s.runAmbient(ctx, frame, msg)
	}
}

func (s *Scheduler) runSpeech(ctx context.Context, frame Frame, msg protocol.FrameMessage) protocol.AnalysisReply {
	if IsIdentityQuery(msg.Prompt) {
		report := s.faces.DetectFaces(ctx, frame.Data)
		return protocol.AnalysisReply{
			Response: describeIdentities(report),
			Faces:    &report,
		}
	}

	answer, err := s.query.Query(ctx, msg.Prompt)
	if err != nil {
		s.logger.Warn("memory query failed", zap.Error(err))
		return protocol.AnalysisReply{Response: QueryUnavailable}
	}
	return protocol.AnalysisReply{Response: answer}
}

func (s *Scheduler) runQuery(ctx context.Context, frame Frame, msg protocol.FrameMessage) protocol.AnalysisReply {
	var report *protocol.FaceReport
	if msg.RecognizeFaces {
		r := s.faces.DetectFaces(ctx, frame.Data)
		report = &r
	}
	text := s.describer.Describe(ctx, frame.Data, msg.Prompt)
	return protocol.AnalysisReply{Response: text, Faces: report}
}

func (s *Scheduler) runAmbient(ctx context.Context, frame Frame, msg protocol.FrameMessage) protocol.AnalysisReply {
	prompt := s.cfg.IdlePrompt

	var report *protocol.FaceReport
	if msg.RecognizeFaces {
		r := s.faces.DetectFaces(ctx, frame.Data)
		report = &r
		if hint := faceHint(r); hint != "" {
			prompt = prompt + " " + hint
		}
	}

	text := s.describer.Describe(ctx, frame.Data, prompt)

	hits := ScanTriggers(text, s.cfg.TriggerWords)
	for _, hit := range hits {
		s.forwarder.Forward(frame.Data, hit)
	}
	if s.updater != nil && len(hits) > 0 {
		s.updateObjects(hits, frame.Data)
	}

	return protocol.AnalysisReply{Response: text, Faces: report, Triggers: hits}
}

// updateObjects pushes the frame to object memory for every trigger hit,
// detached from the reply path.
func (s *Scheduler) updateObjects(hits []string, image []byte) {
	encoded := base64.StdEncoding.EncodeToString(image)
	for _, hit := range hits {
		go func(object string) {
			if err := s.updater.UpdateObject(context.Background(), object, encoded); err != nil {
				s.logger.Debug("object memory update failed",
					zap.String("object", object), zap.Error(err))
			}
		}(hit)
	}
}

// describeIdentities synthesizes a first-person answer from face detections.
func describeIdentities(report protocol.FaceReport) string {
	if report.Count == 0 {
		return "I don't see any faces right now."
	}

	var known []string
	for _, face := range report.Faces {
		if face.Name != "Unknown" {
			known = append(known, face.Name)
		}
	}
	if len(known) == 0 {
		if report.Count == 1 {
			return "I see one face, but I don't recognize them."
		}
		return fmt.Sprintf("I see %d faces, but I don't recognize anyone.", report.Count)
	}
	return "I can see " + joinNames(known) + "."
}

func joinNames(names []string) string {
	switch len(names) {
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}

func faceHint(report protocol.FaceReport) string {
	var known []string
	for _, face := range report.Faces {
		if face.Name != "Unknown" {
			known = append(known, face.Name)
		}
	}
	if len(known) == 0 {
		return ""
	}
	return "Faces visible in the frame: " + strings.Join(known, ", ") + "."
}
