// Package realtime is a minimal client for the OpenAI Realtime API over
// WebSocket, covering only what a phone bridge needs: session setup, audio
// append, response creation, and the inbound event stream.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const realtimeURL = "wss://api.openai.com/v1/realtime"

// wireConn is the subset of *websocket.Conn the client uses. Tests substitute
// an in-memory pipe.
type wireConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

// Client is one realtime session. Not safe for concurrent writers; the bridge
// serializes all writes on its caller-audio path except the initial setup,
// which happens before any audio flows.
type Client struct {
	conn      wireConn
	closeOnce sync.Once
}

// Dial opens a realtime session using the business's own API credential.
// The credential is used for the Authorization header and nothing else.
func Dial(ctx context.Context, model, apiKey string) (*Client, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+apiKey)
	h.Set("OpenAI-Beta", "realtime=v1")

	u := fmt.Sprintf("%s?model=%s", realtimeURL, model)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime: dial failed: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection. Used by tests.
func NewClient(conn wireConn) *Client {
	return &Client{conn: conn}
}

// UpdateSession sends a session.update with the full session configuration.
func (c *Client) UpdateSession(s SessionConfig) error {
	return c.conn.WriteJSON(outboundEvent{Type: "session.update", Session: &s})
}

// AppendAudio forwards one base64 μ-law chunk into the input audio buffer.
// The payload stays base64 end to end; no decode/re-encode in the hot path.
func (c *Client) AppendAudio(payloadB64 string) error {
	return c.conn.WriteJSON(outboundEvent{Type: "input_audio_buffer.append", Audio: payloadB64})
}

// CreateResponse asks the model to speak. With instructions set, the model
// says (approximately) that text; used for the opening greeting.
func (c *Client) CreateResponse(instructions string) error {
	ev := outboundEvent{Type: "response.create"}
	if instructions != "" {
		ev.Response = &responseParams{Instructions: instructions}
	}
	return c.conn.WriteJSON(ev)
}

// ReadEvent blocks for the next server event. Returns the read error verbatim
// when the connection drops so callers can treat it as end-of-stream.
func (c *Client) ReadEvent() (Event, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Event{}, err
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("realtime: bad event: %w", err)
	}
	return ev, nil
}

// Close shuts the session down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

type outboundEvent struct {
	Type     string          `json:"type"`
	Session  *SessionConfig  `json:"session,omitempty"`
	Audio    string          `json:"audio,omitempty"`
	Response *responseParams `json:"response,omitempty"`
}

type responseParams struct {
	Instructions string `json:"instructions,omitempty"`
}

// Event is an inbound server event. Only the fields the bridge reacts to are
// decoded; everything else rides along in Type for logging.
type Event struct {
	Type string `json:"type"`

	// Delta carries base64 audio on response.audio.delta.
	Delta string `json:"delta,omitempty"`

	// Transcript is set on conversation.item.input_audio_transcription.completed.
	Transcript string `json:"transcript,omitempty"`

	Error *APIError `json:"error,omitempty"`
}

type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event type constants for the subset the bridge handles.
const (
	EventSessionCreated      = "session.created"
	EventAudioDelta          = "response.audio.delta"
	EventTranscriptCompleted = "conversation.item.input_audio_transcription.completed"
	EventResponseDone        = "response.done"
	EventError               = "error"
)
