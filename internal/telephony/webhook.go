package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// Twilio webhook form parsing. Twilio sends application/x-www-form-urlencoded
// by default. Keep these provider-adapter-only; business logic does not read
// raw forms.

// InboundForm captures the subset of voice webhook fields we care about.
type InboundForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	CallStatus string
}

func ParseInboundForm(r *http.Request) (InboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return InboundForm{}, err
	}
	return InboundForm{
		CallSid:    r.PostFormValue("CallSid"),
		AccountSid: r.PostFormValue("AccountSid"),
		From:       normalizePhone(r.PostFormValue("From")),
		To:         normalizePhone(r.PostFormValue("To")),
		CallStatus: r.PostFormValue("CallStatus"),
	}, nil
}

// StatusForm is a call-status callback.
type StatusForm struct {
	CallSid      string
	CallStatus   string
	CallDuration *int
	CallPrice    *float64
}

func ParseStatusForm(r *http.Request) (StatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusForm{}, err
	}
	return StatusForm{
		CallSid:      r.PostFormValue("CallSid"),
		CallStatus:   r.PostFormValue("CallStatus"),
		CallDuration: optIntField(r.PostFormValue("CallDuration")),
		CallPrice:    optFloatField(r.PostFormValue("CallPrice")),
	}, nil
}

// RecordingForm is a recording-complete callback.
type RecordingForm struct {
	CallSid           string
	RecordingURL      string
	RecordingSid      string
	RecordingDuration *int
}

func ParseRecordingForm(r *http.Request) (RecordingForm, error) {
	if err := r.ParseForm(); err != nil {
		return RecordingForm{}, err
	}
	return RecordingForm{
		CallSid:           r.PostFormValue("CallSid"),
		RecordingURL:      r.PostFormValue("RecordingUrl"),
		RecordingSid:      r.PostFormValue("RecordingSid"),
		RecordingDuration: optIntField(r.PostFormValue("RecordingDuration")),
	}, nil
}

func normalizePhone(s string) string {
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return strings.TrimSpace(s)
}

func optIntField(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func optFloatField(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
