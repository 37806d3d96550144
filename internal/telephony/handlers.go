package telephony

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"call-assistant/internal/business"
	"call-assistant/internal/calls"
	"call-assistant/internal/limits"
	"call-assistant/internal/routing"
	"call-assistant/pkg/logger"
)

// WebhookHandlers answers Twilio's voice webhooks.
//
// Error posture: webhook endpoints never surface internal errors to Twilio.
// The inbound-call endpoint always answers with well-formed TwiML (a generic
// apology on unexpected failure); callback endpoints always acknowledge so
// Twilio does not retry forever.
type WebhookHandlers struct {
	Directory business.Directory
	Store     calls.Store
	Tracker   *calls.Tracker
	Strategy  routing.Strategy
	Cap       *limits.CallCap

	// StreamURL is the wss endpoint of the media stream bridge.
	StreamURL string

	// RecordingCallbackURL / RecordingStatusURL are absolute https URLs for
	// the Record verb on the apology path.
	RecordingCallbackURL string
	RecordingStatusURL   string

	Now func() time.Time
}

const (
	techDifficultiesMessage = "Sorry, we're experiencing technical difficulties. Please try again later."
)

func apologyMessage(businessName string) string {
	return fmt.Sprintf(
		"Thank you for calling %s. Unfortunately, no one is available to take your call right now. Please try calling back later or leave a message after the tone.",
		businessName,
	)
}

// HandleInboundCall answers POST /webhooks/twilio/voice.
func (h *WebhookHandlers) HandleInboundCall(c *gin.Context) {
	log := logger.FromGin(c)
	now := h.now()

	form, err := ParseInboundForm(c.Request)
	if err != nil || form.CallSid == "" || form.To == "" {
		log.Warn("inbound webhook parse failed", "err", err)
		h.respondTechnicalDifficulties(c)
		return
	}
	log = log.With("provider_call_id", form.CallSid)

	bctx, err := h.Directory.Resolve(c.Request.Context(), form.To)
	if errors.Is(err, business.ErrNumberNotFound) {
		log.Warn("inbound call for unknown number", "to", form.To)
		h.respondReject(c)
		return
	}
	if err != nil {
		log.Error("number resolution failed", "err", err)
		h.respondTechnicalDifficulties(c)
		return
	}
	if !bctx.Business.Active {
		log.Warn("inbound call for inactive business", "business_id", bctx.Business.ID)
		h.respondReject(c)
		return
	}

	decision, err := h.Strategy.Decide(c.Request.Context(), routing.Input{
		ProviderCallID: form.CallSid,
		CallerNumber:   form.From,
		Business:       bctx.Business,
	})
	if err != nil {
		log.Error("routing decision failed", "err", err)
		h.respondTechnicalDifficulties(c)
		return
	}
	if decision.Leg == routing.LegHuman {
		// Human leg has no execution path yet; the AI agent covers it.
		log.Info("human routing not implemented, using ai leg", "reason", decision.Reason)
	}

	call := calls.Call{
		ID:             uuid.NewString(),
		ProviderCallID: form.CallSid,
		BusinessID:     bctx.Business.ID,
		PhoneNumberID:  bctx.Number.ID,
		CallerNumber:   form.From,
		Type:           calls.CallTypeAI,
		Status:         calls.CallStatusRinging,
		StartedAt:      now,
	}
	if err := h.Store.Create(c.Request.Context(), call); err != nil {
		log.Error("call create failed", "err", err)
		h.respondTechnicalDifficulties(c)
		return
	}

	if !bctx.AgentReady() {
		log.Warn("no usable agent config, falling back to apology", "business_id", bctx.Business.ID)
		twiml, err := SayRecordHangupTwiML(apologyMessage(bctx.Business.Name), h.RecordingCallbackURL, h.RecordingStatusURL)
		if err != nil {
			log.Error("apology twiml render failed", "err", err)
			h.respondTechnicalDifficulties(c)
			return
		}
		h.respondTwiML(c, twiml)
		return
	}

	ok, err := h.Cap.Acquire(c.Request.Context(), bctx.Business.ID)
	if err != nil {
		log.Error("concurrency cap check failed", "err", err)
		h.respondTechnicalDifficulties(c)
		return
	}
	if !ok {
		log.Warn("concurrent call cap reached", "business_id", bctx.Business.ID)
		h.respondReject(c)
		return
	}

	twiml, err := ConnectStreamTwiML(h.StreamURL, []StreamParam{
		{Name: "business_id", Value: bctx.Business.ID},
		{Name: "business_name", Value: bctx.Business.Name},
		{Name: "business_description", Value: bctx.Business.Description},
		{Name: "call_sid", Value: form.CallSid},
		{Name: "caller_number", Value: form.From},
		{Name: "openai_api_key", Value: bctx.Agent.APIKey},
		{Name: "custom_instructions", Value: bctx.Agent.CustomInstructions},
	})
	if err != nil {
		log.Error("stream twiml render failed", "err", err)
		_ = h.Cap.Release(c.Request.Context(), bctx.Business.ID)
		h.respondTechnicalDifficulties(c)
		return
	}
	log.Info("routing call to ai agent", "business_id", bctx.Business.ID, "reason", decision.Reason)
	h.respondTwiML(c, twiml)
}

// HandleCallStatus answers POST /webhooks/twilio/call-status.
// It acknowledges every outcome; Twilio retry cannot fix a bad payload.
func (h *WebhookHandlers) HandleCallStatus(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseStatusForm(c.Request)
	if err != nil {
		log.Warn("status callback parse failed", "err", err)
		c.Status(http.StatusNoContent)
		return
	}
	err = h.Tracker.ApplyStatus(c.Request.Context(), calls.StatusEvent{
		ProviderCallID: form.CallSid,
		Status:         form.CallStatus,
		DurationSecs:   form.CallDuration,
		Cost:           form.CallPrice,
	})
	if err != nil {
		log.Error("status callback apply failed", "provider_call_id", form.CallSid, "err", err)
	}
	c.Status(http.StatusNoContent)
}

// HandleRecordingComplete answers POST /webhooks/twilio/recording-complete.
func (h *WebhookHandlers) HandleRecordingComplete(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseRecordingForm(c.Request)
	if err != nil {
		log.Warn("recording callback parse failed", "err", err)
		c.Status(http.StatusNoContent)
		return
	}
	err = h.Tracker.ApplyRecording(c.Request.Context(), calls.RecordingEvent{
		ProviderCallID: form.CallSid,
		RecordingURL:   form.RecordingURL,
		RecordingSID:   form.RecordingSid,
		DurationSecs:   form.RecordingDuration,
	})
	if err != nil {
		log.Error("recording callback apply failed", "provider_call_id", form.CallSid, "err", err)
	}
	c.Status(http.StatusNoContent)
}

// HandleRecordingStatus answers POST /webhooks/twilio/recording-status.
// Status pings are observability only; the recording-complete callback
// carries the data we persist.
func (h *WebhookHandlers) HandleRecordingStatus(c *gin.Context) {
	_ = c.Request.ParseForm()
	logger.FromGin(c).Info("recording status",
		"recording_sid", c.Request.PostFormValue("RecordingSid"),
		"recording_status", c.Request.PostFormValue("RecordingStatus"),
	)
	c.Status(http.StatusNoContent)
}

func (h *WebhookHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *WebhookHandlers) respondTwiML(c *gin.Context, twiml string) {
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}

func (h *WebhookHandlers) respondReject(c *gin.Context) {
	twiml, err := RejectTwiML()
	if err != nil {
		h.respondTechnicalDifficulties(c)
		return
	}
	h.respondTwiML(c, twiml)
}

func (h *WebhookHandlers) respondTechnicalDifficulties(c *gin.Context) {
	twiml, err := SayHangupTwiML(techDifficultiesMessage)
	if err != nil {
		// Hand-rolled last resort; render cannot realistically fail here.
		twiml = `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`
	}
	h.respondTwiML(c, twiml)
}
