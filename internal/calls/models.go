package calls

import "time"

// Call is one inbound call attempt on a business number.
//
// Identity invariant: ProviderCallID (Twilio CallSid) is assigned exactly once
// at creation and never changes. All callback correlation keys on it.
//
// Write-once invariant: EndedAt, DurationSeconds, Cost, RecordingURL and
// RecordingSID may be filled by later callbacks but a set value is never
// overwritten. The store enforces this; the model only documents it.

type Call struct {
	ID             string `json:"id" db:"id"`
	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`

	BusinessID    string `json:"business_id" db:"business_id"`
	PhoneNumberID string `json:"phone_number_id" db:"phone_number_id"`
	CallerNumber  string `json:"caller_number" db:"caller_number"`

	Type   CallType   `json:"call_type" db:"call_type"`
	Status CallStatus `json:"status" db:"status"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds *int     `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Cost            *float64 `json:"cost,omitempty" db:"cost"`

	// Summary is reserved for post-call analysis; nothing in the live path writes it.
	Summary string `json:"summary,omitempty" db:"summary"`

	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`
	RecordingSID string `json:"recording_sid,omitempty" db:"recording_sid"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallType string

const (
	CallTypeHuman CallType = "human"
	CallTypeAI    CallType = "ai"
)

type CallStatus string

const (
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
)

// Terminal reports whether a status can never change again.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer:
		return true
	default:
		return false
	}
}

// Reduce applies one provider status event to the current status and returns
// the next status plus whether anything changed.
//
// Terminal states are sticky: once completed/failed/no_answer, no event moves
// the status again. Unrecognized events change nothing, so duplicated and
// out-of-order callbacks are safe to replay.
func Reduce(current CallStatus, event string) (CallStatus, bool) {
	if current.Terminal() {
		return current, false
	}
	switch event {
	case "completed":
		return CallStatusCompleted, true
	case "busy", "failed":
		return CallStatusFailed, true
	case "no-answer":
		return CallStatusNoAnswer, true
	case "in-progress":
		if current == CallStatusInProgress {
			return current, false
		}
		return CallStatusInProgress, true
	default:
		return current, false
	}
}
