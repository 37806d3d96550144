package bridge

// Twilio Media Streams wire format. Inbound events are connected / start /
// media / stop (plus mark and dtmf, which this bridge ignores); the only
// outbound event is media.

type streamMessage struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid,omitempty"`
	Start     *startFrame `json:"start,omitempty"`
	Media     *mediaFrame `json:"media,omitempty"`
}

type startFrame struct {
	StreamSid        string            `json:"streamSid"`
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters"`
}

type mediaFrame struct {
	Track     string `json:"track,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // base64 μ-law
}

type outboundMedia struct {
	Event     string          `json:"event"`
	StreamSid string          `json:"streamSid"`
	Media     outboundPayload `json:"media"`
}

type outboundPayload struct {
	Payload string `json:"payload"`
}

// Session is the transient per-call state extracted from the start event's
// custom parameters. It lives exactly as long as its bridge and is never
// persisted.
type Session struct {
	StreamSID           string
	ProviderCallID      string
	BusinessID          string
	BusinessName        string
	BusinessDescription string
	CallerNumber        string
	CustomInstructions  string

	// apiKey is the business's realtime credential. Unexported on purpose:
	// it is consumed by the dialer and must not leak into logs.
	apiKey string
}

func sessionFromStart(f *startFrame) Session {
	p := f.CustomParameters
	return Session{
		StreamSID:           f.StreamSid,
		ProviderCallID:      firstNonEmpty(p["call_sid"], f.CallSid),
		BusinessID:          p["business_id"],
		BusinessName:        p["business_name"],
		BusinessDescription: p["business_description"],
		CallerNumber:        p["caller_number"],
		CustomInstructions:  p["custom_instructions"],
		apiKey:              p["openai_api_key"],
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
