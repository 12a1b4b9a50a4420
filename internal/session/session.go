// Package session owns conversation state and sequences the
// audio → transcript → reply pipeline. A [Session] is an explicit instance;
// callers create one per connected client and feed it flushed audio segments
// through [Session.Sink].
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nivara-ai/glasswing/internal/archive"
	"github.com/nivara-ai/glasswing/internal/license"
	"github.com/nivara-ai/glasswing/internal/observe"
	"github.com/nivara-ai/glasswing/internal/prompt"
	"github.com/nivara-ai/glasswing/pkg/audio"
	"github.com/nivara-ai/glasswing/pkg/provider/llm"
	"github.com/nivara-ai/glasswing/pkg/provider/stt"
)

// Status values emitted to the notifier at phase transitions. The strings
// are shown verbatim by the UI layer.
type Status string

const (
	StatusReady     Status = "Ready"
	StatusAnalyzing Status = "Analyzing…"
	StatusThinking  Status = "Thinking…"
)

const (
	// historyWindow bounds how many prior turns are sent to the model.
	// Older turns stay in memory but are excluded from requests.
	historyWindow = 6

	// minTranscriptRunes is the gate below which a transcript is treated
	// as noise and discarded without a chat request.
	minTranscriptRunes = 3

	// DefaultLimitedQuota is the number of replies a limited-plan license
	// grants before the session refuses new utterances.
	DefaultLimitedQuota = 280
)

// ErrQuotaExhausted is returned when a limited-plan session has used up its
// response quota.
var ErrQuotaExhausted = errors.New("session: response quota exhausted")

// ErrBusy is returned when an utterance is submitted while a pipeline is
// already in flight for the session.
var ErrBusy = errors.New("session: pipeline already in flight")

// Notifier receives session events. Implementations must tolerate calls
// from the pipeline goroutine; ordering of calls matches emission order.
type Notifier interface {
	// Status reports a phase transition.
	Status(status Status)

	// ResponseStarted delivers the first non-empty reply fragment.
	ResponseStarted(text string)

	// ResponseUpdated delivers the accumulated reply text after each
	// subsequent fragment.
	ResponseUpdated(text string)

	// TurnCompleted signals that a full turn was appended to history.
	TurnCompleted(utterance, reply string)
}

// Turn is one completed user/assistant exchange held in session memory.
type Turn struct {
	Utterance string
	Reply     string
}

// Option configures a [Session].
type Option func(*Session)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithArchive enables asynchronous turn archival.
func WithArchive(store archive.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithPlan sets the license plan governing usage accounting.
func WithPlan(plan license.Plan) Option {
	return func(s *Session) { s.plan = plan }
}

// WithQuota overrides the limited-plan response quota.
func WithQuota(quota int) Option {
	return func(s *Session) { s.quota = quota }
}

// WithSampleRate sets the PCM sample rate of submitted segments.
func WithSampleRate(rate int) Option {
	return func(s *Session) { s.sampleRate = rate }
}

// WithMetrics attaches pipeline instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session sequences one conversation. All exported methods are safe for
// concurrent use; at most one pipeline runs at a time.
type Session struct {
	transcriber stt.Transcriber
	provider    llm.Provider
	notifier    Notifier
	store       archive.Store
	metrics     *observe.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer

	plan       license.Plan
	quota      int
	sampleRate int

	now func() time.Time

	mu            sync.Mutex
	id            string
	generation    uint64
	profile       prompt.Profile
	customPrompt  string
	resumeContext string
	turns         []Turn
	usage         int
	busy          bool
}

// New creates a session. [Session.Start] must be called before utterances
// are submitted.
func New(transcriber stt.Transcriber, provider llm.Provider, notifier Notifier, opts ...Option) *Session {
	s := &Session{
		transcriber: transcriber,
		provider:    provider,
		notifier:    notifier,
		logger:      slog.Default(),
		tracer:      otel.Tracer("glasswing/session"),
		plan:        license.PlanUnlimited,
		quota:       DefaultLimitedQuota,
		sampleRate:  audio.DefaultSampleRate,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start resets history and begins a fresh conversation. Any in-flight
// pipeline's eventual result is discarded rather than aborted: its
// completion is detected as stale and dropped.
func (s *Session) Start(profile prompt.Profile, customPrompt, resumeContext string) string {
	s.mu.Lock()
	s.id = fmt.Sprintf("s-%d", s.now().UnixMilli())
	s.generation++
	s.profile = profile
	s.customPrompt = customPrompt
	s.resumeContext = resumeContext
	s.turns = nil
	s.usage = 0
	id := s.id
	s.mu.Unlock()

	s.logger.Info("session started", "session_id", id, "profile", string(profile))
	s.notifier.Status(StatusReady)
	return id
}

// ID returns the current session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// History returns a copy of all completed turns, including those beyond
// the model context window.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Usage returns the number of completed replies in this session.
func (s *Session) Usage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Sink adapts the session to the segmenter's flush callback. A segment is
// accepted only when no pipeline is in flight; the pipeline then runs on
// its own goroutine so frame ingestion never blocks.
func (s *Session) Sink(ctx context.Context) func(pcm []byte) bool {
	return func(pcm []byte) bool {
		if !s.acquire() {
			return false
		}
		seg := make([]byte, len(pcm))
		copy(seg, pcm)
		go func() {
			defer s.release()
			if err := s.run(ctx, seg); err != nil {
				s.logger.Warn("pipeline failed", "session_id", s.ID(), "error", err)
			}
		}()
		return true
	}
}

// SubmitUtterance runs the full pipeline for one audio segment:
// transcribe, gate, stream a reply, append the turn. It returns [ErrBusy]
// when a pipeline is already in flight and [ErrQuotaExhausted] when a
// limited plan has no responses left. All other failures are logged,
// returned, and leave the session idle.
func (s *Session) SubmitUtterance(ctx context.Context, pcm []byte) error {
	if !s.acquire() {
		return ErrBusy
	}
	defer s.release()
	return s.run(ctx, pcm)
}

func (s *Session) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// snapshot captures the request-relevant state at pipeline start so a
// profile change mid-stream cannot corrupt the request being built.
type snapshot struct {
	id         string
	generation uint64
	system     string
	window     []Turn
}

func (s *Session) snapshot() (snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plan == license.PlanLimited && s.usage >= s.quota {
		return snapshot{}, ErrQuotaExhausted
	}

	start := 0
	if len(s.turns) > historyWindow {
		start = len(s.turns) - historyWindow
	}
	window := make([]Turn, len(s.turns)-start)
	copy(window, s.turns[start:])

	return snapshot{
		id:         s.id,
		generation: s.generation,
		system:     prompt.System(s.profile, s.customPrompt, s.resumeContext),
		window:     window,
	}, nil
}

func (s *Session) run(ctx context.Context, pcm []byte) error {
	snap, err := s.snapshot()
	if err != nil {
		return err
	}

	s.notifier.Status(StatusAnalyzing)

	text, err := s.transcribe(ctx, pcm)
	if err != nil {
		s.notifier.Status(StatusReady)
		return fmt.Errorf("transcribe segment: %w", err)
	}

	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= minTranscriptRunes {
		s.logger.Debug("transcript below gate, discarded",
			"session_id", snap.id, "length", utf8.RuneCountInString(text))
		s.notifier.Status(StatusReady)
		return nil
	}

	s.notifier.Status(StatusThinking)

	reply, err := s.streamReply(ctx, snap, text)
	if err != nil {
		s.notifier.Status(StatusReady)
		return fmt.Errorf("stream reply: %w", err)
	}

	if reply == "" {
		s.logger.Debug("stream produced no reply text, no turn recorded",
			"session_id", snap.id)
		s.notifier.Status(StatusReady)
		return nil
	}

	s.commit(ctx, snap, text, reply)
	s.notifier.Status(StatusReady)
	return nil
}

func (s *Session) transcribe(ctx context.Context, pcm []byte) (string, error) {
	ctx, span := s.tracer.Start(ctx, "session.transcribe")
	defer span.End()

	start := s.now()
	text, err := s.transcriber.Transcribe(ctx, pcm, s.sampleRate)
	s.metrics.TranscriptionObserved(ctx, time.Since(start), err)
	return text, err
}

// streamReply sends the chat request and forwards reply fragments to the
// notifier in arrival order. The first non-empty fragment produces a
// ResponseStarted event; every later fragment produces a ResponseUpdated
// carrying the accumulated text. On a mid-stream error the fragments
// already delivered stand, but the turn is not recorded.
func (s *Session) streamReply(ctx context.Context, snap snapshot, utterance string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "session.chat")
	defer span.End()

	messages := make([]llm.Message, 0, 2*len(snap.window)+1)
	for _, t := range snap.window {
		messages = append(messages,
			llm.Message{Role: "user", Content: t.Utterance},
			llm.Message{Role: "assistant", Content: t.Reply},
		)
	}
	messages = append(messages, llm.Message{Role: "user", Content: utterance})

	start := s.now()
	ch, err := s.provider.StreamCompletion(ctx, llm.CompletionRequest{
		SystemPrompt: snap.system,
		Messages:     messages,
	})
	if err != nil {
		s.metrics.ChatObserved(ctx, time.Since(start), err)
		return "", err
	}

	var acc strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			s.metrics.ChatObserved(ctx, time.Since(start), chunk.Err)
			return "", chunk.Err
		}
		if chunk.Text == "" {
			continue
		}
		first := acc.Len() == 0
		acc.WriteString(chunk.Text)
		if first {
			s.notifier.ResponseStarted(acc.String())
		} else {
			s.notifier.ResponseUpdated(acc.String())
		}
	}
	s.metrics.ChatObserved(ctx, time.Since(start), nil)

	// A stream that closes without text is valid: the empty reply just
	// produces no turn.
	return acc.String(), nil
}

// commit appends the turn unless the session was restarted while the
// pipeline was in flight, in which case the completion is stale and
// dropped.
func (s *Session) commit(ctx context.Context, snap snapshot, utterance, reply string) {
	s.mu.Lock()
	if s.generation != snap.generation {
		s.mu.Unlock()
		s.logger.Debug("stale pipeline completion dropped", "session_id", snap.id)
		return
	}
	s.turns = append(s.turns, Turn{Utterance: utterance, Reply: reply})
	s.usage++
	s.mu.Unlock()

	s.notifier.TurnCompleted(utterance, reply)

	if s.store != nil {
		turn := archive.Turn{
			SessionID: snap.id,
			Utterance: utterance,
			Reply:     reply,
			Timestamp: s.now(),
		}
		go func() {
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.store.Append(actx, turn); err != nil {
				s.logger.Warn("archive append failed", "session_id", snap.id, "error", err)
			}
		}()
	}
}
