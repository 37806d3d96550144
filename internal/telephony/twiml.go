package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Minimal TwiML builder. It intentionally avoids any provider SDK dependency;
// only the verbs this service emits are modeled.
//
// Every inbound-call response is one of:
//   - Reject           unknown number / inactive business / over cap
//   - Say+Record+Hangup  apology fallback when no agent config is usable
//   - Say+Hangup         generic technical-difficulties response
//   - Connect+Stream     open the media stream to the bridge

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlRecord struct {
	XMLName                 xml.Name `xml:"Record"`
	Action                  string   `xml:"action,attr,omitempty"`
	RecordingStatusCallback string   `xml:"recordingStatusCallback,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlConnect struct {
	XMLName xml.Name     `xml:"Connect"`
	Stream  *twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL    string       `xml:"url,attr"`
	Params []twimlParam `xml:"Parameter"`
}

type twimlParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// StreamParam is one custom parameter delivered in the media stream "start"
// event. Order is preserved.
type StreamParam struct {
	Name  string
	Value string
}

// RejectTwiML returns a busy rejection.
func RejectTwiML() (string, error) {
	return render(twimlResponse{Verbs: []any{twimlReject{Reason: "busy"}}})
}

// SayRecordHangupTwiML speaks a message, records whatever the caller says
// next, then hangs up. Used for the apology fallback.
func SayRecordHangupTwiML(message, action, recordingStatusCallback string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("telephony: message required")
	}
	return render(twimlResponse{Verbs: []any{
		twimlSay{Text: message},
		twimlRecord{Action: action, RecordingStatusCallback: recordingStatusCallback},
		twimlHangup{},
	}})
}

// SayHangupTwiML speaks a message and hangs up.
func SayHangupTwiML(message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.New("telephony: message required")
	}
	return render(twimlResponse{Verbs: []any{
		twimlSay{Text: message},
		twimlHangup{},
	}})
}

// ConnectStreamTwiML instructs the provider to open a duplex media stream to
// the bridge endpoint, carrying the handshake parameters.
func ConnectStreamTwiML(streamURL string, params []StreamParam) (string, error) {
	if strings.TrimSpace(streamURL) == "" {
		return "", errors.New("telephony: stream url required")
	}
	ps := make([]twimlParam, 0, len(params))
	for _, p := range params {
		ps = append(ps, twimlParam{Name: p.Name, Value: p.Value})
	}
	return render(twimlResponse{Verbs: []any{
		twimlConnect{Stream: &twimlStream{URL: streamURL, Params: ps}},
	}})
}

func render(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
