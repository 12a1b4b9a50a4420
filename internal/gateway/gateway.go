// Package gateway exposes the assistant core to the UI shell over a local
// WebSocket. Each connection owns one conversation session and one audio
// segmenter; inbound messages carry control commands and base64 PCM16
// frames, outbound messages carry status and reply events.
//
// The gateway is not an authenticated API and must only be bound to a
// loopback address.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/nivara-ai/glasswing/internal/observe"
	"github.com/nivara-ai/glasswing/internal/prompt"
	"github.com/nivara-ai/glasswing/internal/session"
	"github.com/nivara-ai/glasswing/pkg/audio/segment"
)

// outboundBuffer bounds the per-connection write queue. A client that stops
// reading for this many events gets disconnected rather than blocking the
// pipeline.
const outboundBuffer = 64

// SessionFactory creates a session whose events go to n. The gateway calls
// it once per accepted connection.
type SessionFactory func(n session.Notifier) *session.Session

// Server accepts UI shell connections.
type Server struct {
	newSession SessionFactory
	segCfg     segment.Config
	logger     *slog.Logger
	metrics    *observe.Metrics
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics attaches gateway instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a gateway server. segCfg tunes the per-connection segmenter.
func New(factory SessionFactory, segCfg segment.Config, opts ...Option) *Server {
	s := &Server{
		newSession: factory,
		segCfg:     segCfg,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// inboundMessage is the envelope for every client-to-core message.
type inboundMessage struct {
	Type string `json:"type"`

	// start
	Profile      string `json:"profile,omitempty"`
	CustomPrompt string `json:"custom_prompt,omitempty"`
	Resume       string `json:"resume,omitempty"`

	// audio
	Data string `json:"data,omitempty"` // base64 PCM16
}

// outboundMessage is the envelope for every core-to-client event.
type outboundMessage struct {
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	Text      string `json:"text,omitempty"`
	Utterance string `json:"utterance,omitempty"`
	Reply     string `json:"reply,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ServeHTTP upgrades the request and runs the connection until the client
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The UI shell connects from a non-HTTP origin (app bundle), so
		// origin checking is meaningless here. Loopback binding is the
		// access control.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &conn{
		ws:       ws,
		outbound: make(chan []byte, outboundBuffer),
		logger:   s.logger,
		metrics:  s.metrics,
		cancel:   cancel,
	}
	c.sess = s.newSession(c)

	pipelineCtx := context.WithoutCancel(ctx)
	sink := c.sess.Sink(pipelineCtx)
	c.seg = segment.New(s.segCfg, func(pcm []byte) bool {
		accepted := sink(pcm)
		if accepted {
			s.metrics.SegmentFlushed(pipelineCtx)
		}
		return accepted
	})

	s.metrics.SessionOpened(ctx)
	defer s.metrics.SessionClosed(context.WithoutCancel(ctx))

	go c.writeLoop(ctx)
	c.readLoop(ctx)

	ws.Close(websocket.StatusNormalClosure, "session ended")
}

// conn is one connected client. It implements [session.Notifier]; events
// are serialised through the outbound channel so a single goroutine owns
// all writes.
type conn struct {
	ws       *websocket.Conn
	outbound chan []byte
	sess     *session.Session
	seg      *segment.Segmenter
	logger   *slog.Logger
	metrics  *observe.Metrics
	cancel   context.CancelFunc

	// lastDiscarded tracks the segmenter's discard counter so each drop is
	// recorded exactly once.
	lastDiscarded uint64
}

var _ session.Notifier = (*conn)(nil)

func (c *conn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("client disconnected", "error", err)
			}
			c.cancel()
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("undecodable client message skipped", "error", err)
			continue
		}

		switch msg.Type {
		case "start":
			profile := prompt.Profile(msg.Profile)
			if !profile.IsValid() {
				profile = prompt.DefaultProfile
			}
			c.seg.Reset()
			id := c.sess.Start(profile, msg.CustomPrompt, msg.Resume)
			c.send(outboundMessage{Type: "session", SessionID: id})

		case "audio":
			pcm, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				c.logger.Debug("undecodable audio frame skipped", "error", err)
				continue
			}
			c.seg.PushFrame(pcm)
			c.recordDiscards(ctx)

		default:
			c.logger.Debug("unknown client message type", "type", msg.Type)
		}
	}
}

// recordDiscards counts segments the segmenter dropped as too short or
// speechless since the last frame.
func (c *conn) recordDiscards(ctx context.Context) {
	_, discarded := c.seg.Stats()
	for ; c.lastDiscarded < discarded; c.lastDiscarded++ {
		c.metrics.SegmentDiscarded(ctx)
	}
}

// writeLoop is the only goroutine that writes to the socket, so event
// ordering on the wire matches emission order.
func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.outbound:
			if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// send enqueues an event. A full queue means the client has stopped
// reading; the connection is torn down instead of blocking the pipeline.
func (c *conn) send(msg outboundMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshal outbound event", "error", err)
		return
	}
	select {
	case c.outbound <- data:
	default:
		c.logger.Warn("outbound queue full, dropping client")
		c.cancel()
	}
}

// Status implements [session.Notifier].
func (c *conn) Status(status session.Status) {
	c.send(outboundMessage{Type: "status", Status: string(status)})
}

// ResponseStarted implements [session.Notifier].
func (c *conn) ResponseStarted(text string) {
	c.send(outboundMessage{Type: "response.new", Text: text})
}

// ResponseUpdated implements [session.Notifier].
func (c *conn) ResponseUpdated(text string) {
	c.send(outboundMessage{Type: "response.update", Text: text})
}

// TurnCompleted implements [session.Notifier].
func (c *conn) TurnCompleted(utterance, reply string) {
	c.send(outboundMessage{Type: "turn", Utterance: utterance, Reply: reply})
}
