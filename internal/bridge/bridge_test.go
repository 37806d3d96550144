package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"call-assistant/internal/realtime"
)

// fakeStreamConn is an in-memory telephony-side socket.
type fakeStreamConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes []outboundMedia
}

func newFakeStreamConn() *fakeStreamConn {
	return &fakeStreamConn{in: make(chan []byte, 32), closed: make(chan struct{})}
}

func (f *fakeStreamConn) push(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	f.in <- data
}

func (f *fakeStreamConn) pushRaw(data string) { f.in <- []byte(data) }

func (f *fakeStreamConn) endOfStream() { close(f.in) }

func (f *fakeStreamConn) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-f.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeStreamConn) WriteJSON(v any) error {
	select {
	case <-f.closed:
		return errors.New("use of closed connection")
	default:
	}
	out, ok := v.(outboundMedia)
	if !ok {
		return errors.New("unexpected outbound type")
	}
	f.mu.Lock()
	f.writes = append(f.writes, out)
	f.mu.Unlock()
	return nil
}

func (f *fakeStreamConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStreamConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeStreamConn) written() []outboundMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]outboundMedia, len(f.writes))
	copy(out, f.writes)
	return out
}

// fakeAgent is an in-memory AI-side connection.
type fakeAgent struct {
	events chan realtime.Event
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	session   *realtime.SessionConfig
	appended  []string
	responses []string
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{events: make(chan realtime.Event, 32), closed: make(chan struct{})}
}

func (f *fakeAgent) UpdateSession(s realtime.SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = &s
	return nil
}

func (f *fakeAgent) AppendAudio(payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, payload)
	return nil
}

func (f *fakeAgent) CreateResponse(instructions string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, instructions)
	return nil
}

func (f *fakeAgent) ReadEvent() (realtime.Event, error) {
	select {
	case ev, ok := <-f.events:
		if !ok {
			return realtime.Event{}, io.EOF
		}
		return ev, nil
	case <-f.closed:
		return realtime.Event{}, errors.New("agent connection closed")
	}
}

func (f *fakeAgent) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeAgent) appendedAudio() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.appended))
	copy(out, f.appended)
	return out
}

func (f *fakeAgent) sessionConfig() *realtime.SessionConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeAgent) createdResponses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.responses))
	copy(out, f.responses)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startFrameWithKey() streamMessage {
	return streamMessage{
		Event: "start",
		Start: &startFrame{
			StreamSid: "MZ1",
			CallSid:   "CA1",
			CustomParameters: map[string]string{
				"business_id":          "b1",
				"business_name":        "Acme Plumbing",
				"business_description": "24/7 emergency plumbing",
				"call_sid":             "CA1",
				"caller_number":        "+15551234567",
				"openai_api_key":       "sk-test",
				"custom_instructions":  "Mention the spring discount.",
			},
		},
	}
}

func mediaFrameMsg(payload string) streamMessage {
	return streamMessage{Event: "media", Media: &mediaFrame{Payload: payload}}
}

// runBridge runs b.run and fails the test if it does not finish in time.
func runBridge(t *testing.T, b *bridge) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		b.run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("bridge did not terminate")
	}
}

func newTestBridge(tconn *fakeStreamConn, agent *fakeAgent, dialErr error, dialCount *int) *bridge {
	return &bridge{
		log:   testLogger(),
		tconn: tconn,
		dial: func(ctx context.Context, apiKey string) (AgentConn, error) {
			if dialCount != nil {
				*dialCount++
			}
			if dialErr != nil {
				return nil, dialErr
			}
			return agent, nil
		},
		handshakeTimeout: time.Second,
	}
}

func TestBridge_DiscardsEventsBeforeStart(t *testing.T) {
	tconn := newFakeStreamConn()
	agent := newFakeAgent()
	b := newTestBridge(tconn, agent, nil, nil)

	tconn.push(t, streamMessage{Event: "connected"})
	tconn.push(t, mediaFrameMsg("ZWFybHk=")) // before start: must be discarded
	tconn.push(t, startFrameWithKey())
	tconn.push(t, streamMessage{Event: "stop"})

	runBridge(t, b)

	if got := agent.appendedAudio(); len(got) != 0 {
		t.Fatalf("pre-start media must be discarded, got %v", got)
	}
	if agent.sessionConfig() == nil {
		t.Fatalf("session must be configured after start")
	}
}

func TestBridge_StartWithoutCredentialClosesWithoutDial(t *testing.T) {
	tconn := newFakeStreamConn()
	var dials int
	b := newTestBridge(tconn, nil, nil, &dials)

	msg := startFrameWithKey()
	delete(msg.Start.CustomParameters, "openai_api_key")
	tconn.push(t, msg)

	runBridge(t, b)

	if dials != 0 {
		t.Fatalf("no agent dial expected without credential, got %d", dials)
	}
	if !tconn.isClosed() {
		t.Fatalf("telephony connection must be closed")
	}
}

func TestBridge_HandshakeTimeout(t *testing.T) {
	tconn := newFakeStreamConn()
	var dials int
	b := newTestBridge(tconn, nil, nil, &dials)
	b.handshakeTimeout = 30 * time.Millisecond

	runBridge(t, b)

	if dials != 0 {
		t.Fatalf("no agent dial expected on handshake timeout")
	}
	if !tconn.isClosed() {
		t.Fatalf("telephony connection must be closed")
	}
}

func TestBridge_AgentDialFailureClosesTelephonySide(t *testing.T) {
	tconn := newFakeStreamConn()
	b := newTestBridge(tconn, nil, errors.New("401 unauthorized"), nil)

	tconn.push(t, startFrameWithKey())

	runBridge(t, b)

	if !tconn.isClosed() {
		t.Fatalf("telephony connection must be closed after dial failure")
	}
}

func TestBridge_RelaysCallerAudioInOrderUntilStop(t *testing.T) {
	tconn := newFakeStreamConn()
	agent := newFakeAgent()
	b := newTestBridge(tconn, agent, nil, nil)

	payloads := []string{"cDE=", "cDI=", "cDM=", "cDQ=", "cDU="}
	tconn.push(t, startFrameWithKey())
	for _, p := range payloads {
		tconn.push(t, mediaFrameMsg(p))
	}
	tconn.push(t, streamMessage{Event: "stop"})
	tconn.push(t, mediaFrameMsg("bGF0ZQ==")) // after stop: must not be forwarded

	runBridge(t, b)

	got := agent.appendedAudio()
	if len(got) != len(payloads) {
		t.Fatalf("expected %d appends, got %d (%v)", len(payloads), len(got), got)
	}
	for i := range payloads {
		if got[i] != payloads[i] {
			t.Fatalf("order violated at %d: got %q want %q", i, got[i], payloads[i])
		}
	}
}

func TestBridge_SkipsMalformedTelephonyFrames(t *testing.T) {
	tconn := newFakeStreamConn()
	agent := newFakeAgent()
	b := newTestBridge(tconn, agent, nil, nil)

	tconn.push(t, startFrameWithKey())
	tconn.pushRaw("{not json")
	tconn.push(t, mediaFrameMsg("b2s="))
	tconn.push(t, streamMessage{Event: "stop"})

	runBridge(t, b)

	if got := agent.appendedAudio(); len(got) != 1 || got[0] != "b2s=" {
		t.Fatalf("malformed frame must be skipped, not fatal: %v", got)
	}
}

func TestBridge_RelaysAgentAudioWithStreamID(t *testing.T) {
	tconn := newFakeStreamConn()
	agent := newFakeAgent()
	b := newTestBridge(tconn, agent, nil, nil)

	deltas := []string{"ZDE=", "ZDI=", "ZDM="}
	agent.events <- realtime.Event{Type: realtime.EventSessionCreated}
	agent.events <- realtime.Event{Type: realtime.EventAudioDelta, Delta: deltas[0]}
	agent.events <- realtime.Event{Type: realtime.EventTranscriptCompleted, Transcript: "hello"}
	agent.events <- realtime.Event{Type: realtime.EventAudioDelta, Delta: deltas[1]}
	agent.events <- realtime.Event{Type: realtime.EventResponseDone}
	agent.events <- realtime.Event{Type: realtime.EventAudioDelta, Delta: deltas[2]}
	close(agent.events)

	tconn.push(t, startFrameWithKey())

	runBridge(t, b)

	writes := tconn.written()
	if len(writes) != len(deltas) {
		t.Fatalf("expected %d media events, got %d", len(deltas), len(writes))
	}
	for i, w := range writes {
		if w.Event != "media" || w.StreamSid != "MZ1" || w.Media.Payload != deltas[i] {
			t.Fatalf("bad outbound media at %d: %+v", i, w)
		}
	}
}

func TestBridge_AgentErrorEventIsNotFatal(t *testing.T) {
	tconn := newFakeStreamConn()
	agent := newFakeAgent()
	b := newTestBridge(tconn, agent, nil, nil)

	agent.events <- realtime.Event{Type: realtime.EventError, Error: &realtime.APIError{Code: "rate_limit", Message: "slow down"}}
	agent.events <- realtime.Event{Type: realtime.EventAudioDelta, Delta: "YWZ0ZXI="}
	close(agent.events)

	tconn.push(t, startFrameWithKey())

	runBridge(t, b)

	writes := tconn.written()
	if len(writes) != 1 || writes[0].Media.Payload != "YWZ0ZXI=" {
		t.Fatalf("audio after error event must still be relayed: %+v", writes)
	}
}

func TestBridge_EndToEndRoundTrip(t *testing.T) {
	tconn := newFakeStreamConn()
	agent := newFakeAgent()
	b := newTestBridge(tconn, agent, nil, nil)

	tconn.push(t, startFrameWithKey())
	tconn.push(t, mediaFrameMsg("aW4="))
	agent.events <- realtime.Event{Type: realtime.EventAudioDelta, Delta: "b3V0"}
	close(agent.events)

	runBridge(t, b)

	sess := agent.sessionConfig()
	if sess == nil {
		t.Fatalf("expected session config")
	}
	if !strings.Contains(sess.Instructions, "Acme Plumbing") ||
		!strings.Contains(sess.Instructions, "24/7 emergency plumbing") ||
		!strings.Contains(sess.Instructions, "Mention the spring discount.") {
		t.Fatalf("session prompt missing business context:\n%s", sess.Instructions)
	}

	greetings := agent.createdResponses()
	if len(greetings) != 1 || !strings.Contains(greetings[0], "Acme Plumbing") {
		t.Fatalf("expected one business greeting, got %v", greetings)
	}

	if got := agent.appendedAudio(); len(got) != 1 || got[0] != "aW4=" {
		t.Fatalf("caller audio not relayed: %v", got)
	}
	writes := tconn.written()
	if len(writes) != 1 || writes[0].Media.Payload != "b3V0" || writes[0].StreamSid != "MZ1" {
		t.Fatalf("agent audio not relayed: %+v", writes)
	}
}

type chanRecorder struct {
	calls chan string
}

func (r *chanRecorder) StartRecording(_ context.Context, callSID, _ string) error {
	r.calls <- callSID
	return nil
}

func TestBridge_StartsRecordingFireAndForget(t *testing.T) {
	tconn := newFakeStreamConn()
	agent := newFakeAgent()
	b := newTestBridge(tconn, agent, nil, nil)
	rec := &chanRecorder{calls: make(chan string, 1)}
	b.recorder = rec

	tconn.push(t, startFrameWithKey())
	tconn.push(t, streamMessage{Event: "stop"})

	runBridge(t, b)

	select {
	case sid := <-rec.calls:
		if sid != "CA1" {
			t.Fatalf("recording started for wrong call: %s", sid)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("recording start never attempted")
	}
}
