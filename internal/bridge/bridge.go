// Package bridge relays audio between a Twilio media stream and an OpenAI
// realtime session for the lifetime of one AI-handled call.
//
// Each call owns exactly one bridge: one telephony-side WebSocket, one
// AI-side WebSocket, and two forwarding goroutines that share nothing but
// the immutable Session and the two connection handles. When either side
// ends — disconnect, stop event, or handshake timeout — both connections are
// closed and the bridge returns only after both pumps have exited. There is
// no retry; recovery is a fresh inbound call.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"call-assistant/internal/limits"
	"call-assistant/internal/realtime"
	"call-assistant/pkg/logger"
)

// AgentConn is the AI-side connection. *realtime.Client satisfies it; tests
// substitute fakes.
type AgentConn interface {
	UpdateSession(realtime.SessionConfig) error
	AppendAudio(payloadB64 string) error
	CreateResponse(instructions string) error
	ReadEvent() (realtime.Event, error)
	Close() error
}

// AgentDialer opens the AI-side connection with a per-business credential.
type AgentDialer func(ctx context.Context, apiKey string) (AgentConn, error)

// RecordingStarter begins recording on the telephony leg. Failures are
// logged, never fatal.
type RecordingStarter interface {
	StartRecording(ctx context.Context, callSID, statusCallbackURL string) error
}

// streamConn is the telephony-side connection surface the bridge uses.
type streamConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

// Handler upgrades Twilio's media stream connection and runs a bridge on it.
type Handler struct {
	Dial     AgentDialer
	Recorder RecordingStarter
	Cap      *limits.CallCap

	HandshakeTimeout   time.Duration
	RecordingStatusURL string

	upgrader websocket.Upgrader
}

func NewHandler(dial AgentDialer, rec RecordingStarter, callCap *limits.CallCap, handshakeTimeout time.Duration, recordingStatusURL string) *Handler {
	return &Handler{
		Dial:               dial,
		Recorder:           rec,
		Cap:                callCap,
		HandshakeTimeout:   handshakeTimeout,
		RecordingStatusURL: recordingStatusURL,
		upgrader: websocket.Upgrader{
			// Twilio's media stream client sends no browser origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleMediaStream answers GET /webhooks/twilio/media-stream.
func (h *Handler) HandleMediaStream(c *gin.Context) {
	log := logger.FromGin(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("media stream upgrade failed", "err", err)
		return
	}

	b := &bridge{
		log:              log,
		tconn:            conn,
		dial:             h.Dial,
		recorder:         h.Recorder,
		callCap:          h.Cap,
		handshakeTimeout: h.HandshakeTimeout,
		recStatusURL:     h.RecordingStatusURL,
	}
	b.run(c.Request.Context())
}

type bridge struct {
	log   *slog.Logger
	tconn streamConn

	dial             AgentDialer
	recorder         RecordingStarter
	callCap          *limits.CallCap
	handshakeTimeout time.Duration
	recStatusURL     string
}

func (b *bridge) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	frames := make(chan streamMessage)
	go b.readFrames(ctx, frames)

	sess, ok := b.awaitStart(ctx, frames)
	if !ok {
		_ = b.tconn.Close()
		return
	}
	log := b.log.With("provider_call_id", sess.ProviderCallID, "stream_sid", sess.StreamSID)

	if sess.apiKey == "" {
		log.Error("start event without agent credential, closing stream")
		b.releaseSlot(sess)
		_ = b.tconn.Close()
		return
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, 15*time.Second)
	agent, err := b.dial(dialCtx, sess.apiKey)
	dialCancel()
	if err != nil {
		// Fatal for this bridge; a fresh call attempt is the recovery path.
		log.Error("agent dial failed", "err", err)
		b.releaseSlot(sess)
		_ = b.tconn.Close()
		return
	}

	var teardownOnce sync.Once
	teardown := func() {
		teardownOnce.Do(func() {
			_ = b.tconn.Close()
			_ = agent.Close()
			b.releaseSlot(sess)
			log.Info("bridge closed")
		})
	}
	defer teardown()
	go func() {
		<-ctx.Done()
		teardown()
	}()

	// Prime the session before any audio moves in either direction.
	if err := agent.UpdateSession(realtime.NewSessionConfig(realtime.BusinessProfile{
		Name:               sess.BusinessName,
		Description:        sess.BusinessDescription,
		CustomInstructions: sess.CustomInstructions,
	})); err != nil {
		log.Error("agent session setup failed", "err", err)
		return
	}

	if b.recorder != nil {
		go func() {
			recCtx, recCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer recCancel()
			if err := b.recorder.StartRecording(recCtx, sess.ProviderCallID, b.recStatusURL); err != nil {
				log.Warn("recording start failed", "err", err)
			}
		}()
	}

	// Greet before the caller speaks so the line is never silent.
	if err := agent.CreateResponse(realtime.Greeting(sess.BusinessName)); err != nil {
		log.Error("agent greeting failed", "err", err)
		return
	}
	log.Info("bridge established", "business_id", sess.BusinessID)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		b.pumpCallerAudio(frames, agent, log)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		b.pumpAgentAudio(agent, sess.StreamSID, log)
	}()
	wg.Wait()
}

// readFrames is the single reader of the telephony socket. It feeds decoded
// frames to the handshake and then the caller-audio pump; malformed frames
// are skipped, never fatal. The channel is closed when the socket ends.
func (b *bridge) readFrames(ctx context.Context, frames chan<- streamMessage) {
	defer close(frames)
	for {
		_, data, err := b.tconn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.log.Debug("telephony stream read ended", "err", err)
			}
			return
		}
		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			b.log.Warn("unparseable telephony frame skipped", "err", err)
			continue
		}
		select {
		case frames <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// awaitStart discards everything until the start event arrives, bounded by
// the handshake timeout. A timeout or a closed socket before start is fatal.
func (b *bridge) awaitStart(ctx context.Context, frames <-chan streamMessage) (Session, bool) {
	timer := time.NewTimer(b.handshakeTimeout)
	defer timer.Stop()
	for {
		select {
		case msg, open := <-frames:
			if !open {
				b.log.Warn("telephony stream closed before start event")
				return Session{}, false
			}
			if msg.Event == "start" && msg.Start != nil {
				return sessionFromStart(msg.Start), true
			}
			b.log.Info("discarding telephony event before start", "event", msg.Event)
		case <-timer.C:
			b.log.Error("timeout waiting for start event", "timeout", b.handshakeTimeout)
			return Session{}, false
		case <-ctx.Done():
			return Session{}, false
		}
	}
}

// pumpCallerAudio forwards telephony media to the agent, in arrival order,
// until a stop event or the end of the stream.
func (b *bridge) pumpCallerAudio(frames <-chan streamMessage, agent AgentConn, log *slog.Logger) {
	for msg := range frames {
		switch msg.Event {
		case "media":
			if msg.Media == nil || msg.Media.Payload == "" {
				continue
			}
			if err := agent.AppendAudio(msg.Media.Payload); err != nil {
				log.Debug("agent audio append failed", "err", err)
				return
			}
		case "stop":
			log.Info("telephony stream stopped")
			return
		default:
			// mark, dtmf and friends are irrelevant to the audio path.
		}
	}
}

// pumpAgentAudio forwards agent audio deltas back to the caller, in arrival
// order. Non-audio events are observability only; an agent error event is
// logged but does not end the conversation.
func (b *bridge) pumpAgentAudio(agent AgentConn, streamSID string, log *slog.Logger) {
	for {
		ev, err := agent.ReadEvent()
		if err != nil {
			log.Debug("agent stream ended", "err", err)
			return
		}
		switch ev.Type {
		case realtime.EventAudioDelta:
			if ev.Delta == "" {
				continue
			}
			out := outboundMedia{
				Event:     "media",
				StreamSid: streamSID,
				Media:     outboundPayload{Payload: ev.Delta},
			}
			if err := b.tconn.WriteJSON(out); err != nil {
				log.Debug("telephony write failed", "err", err)
				return
			}
		case realtime.EventSessionCreated:
			log.Info("agent session created")
		case realtime.EventTranscriptCompleted:
			log.Info("caller transcript", "transcript", ev.Transcript)
		case realtime.EventResponseDone:
			log.Debug("agent response complete")
		case realtime.EventError:
			if ev.Error != nil {
				log.Error("agent error event", "code", ev.Error.Code, "message", ev.Error.Message)
			} else {
				log.Error("agent error event")
			}
		default:
			log.Debug("agent event", "type", ev.Type)
		}
	}
}

// releaseSlot frees the per-business concurrency slot taken by the inbound
// handler. Uses a background context: the request context is usually already
// canceled by the time the bridge tears down.
func (b *bridge) releaseSlot(sess Session) {
	if sess.BusinessID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.callCap.Release(ctx, sess.BusinessID); err != nil {
		b.log.Warn("concurrency slot release failed", "business_id", sess.BusinessID, "err", err)
	}
}
