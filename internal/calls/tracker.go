package calls

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"call-assistant/pkg/logger"
)

// Tracker applies asynchronous provider callbacks to Call records.
//
// Callbacks arrive independently, possibly duplicated and out of order; the
// tracker routes everything through the Reduce state machine and the store's
// write-once update so replays are harmless. A callback for an unknown
// provider call id is a logged no-op, never an error: Twilio retries on
// non-2xx and there is nothing a retry would fix.
type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// StatusEvent is a call-status callback payload.
type StatusEvent struct {
	ProviderCallID string
	Status         string
	DurationSecs   *int
	Cost           *float64
}

// RecordingEvent is a recording-complete callback payload.
type RecordingEvent struct {
	ProviderCallID string
	RecordingURL   string
	RecordingSID   string
	DurationSecs   *int
}

// ApplyStatus folds one status callback into the stored call.
func (t *Tracker) ApplyStatus(ctx context.Context, ev StatusEvent) error {
	log := logger.From(ctx)
	if ev.ProviderCallID == "" {
		log.Warn("status callback without provider call id")
		return nil
	}

	call, err := t.store.FindByProviderID(ctx, ev.ProviderCallID)
	if errors.Is(err, ErrNotFound) {
		log.Warn("status callback for unknown call", "provider_call_id", ev.ProviderCallID, "call_status", ev.Status)
		return nil
	}
	if err != nil {
		return err
	}

	next, changed := Reduce(call.Status, ev.Status)
	upd := Update{}
	if changed {
		upd.Status = &next
	} else if call.Status.Terminal() && ev.Status != string(call.Status) {
		log.Info("status callback ignored, call already terminal",
			"provider_call_id", ev.ProviderCallID, "status", call.Status, "callback_status", ev.Status)
	}
	if next.Terminal() {
		end := t.now().UTC()
		upd.EndedAt = &end
	}
	// Duration and cost fill gaps even when the status itself is a replay;
	// the store never overwrites a value that is already set.
	upd.DurationSeconds = ev.DurationSecs
	upd.Cost = ev.Cost

	if err := t.store.Update(ctx, ev.ProviderCallID, upd); err != nil {
		return err
	}
	logStatus(log, call, next, changed)
	return nil
}

// ApplyRecording attaches recording metadata. It runs regardless of call
// status and only fills duration when no status callback set it first.
func (t *Tracker) ApplyRecording(ctx context.Context, ev RecordingEvent) error {
	log := logger.From(ctx)
	if ev.ProviderCallID == "" {
		log.Warn("recording callback without provider call id")
		return nil
	}

	if _, err := t.store.FindByProviderID(ctx, ev.ProviderCallID); err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("recording callback for unknown call", "provider_call_id", ev.ProviderCallID)
			return nil
		}
		return err
	}

	upd := Update{
		DurationSeconds: ev.DurationSecs,
	}
	if ev.RecordingURL != "" {
		upd.RecordingURL = &ev.RecordingURL
	}
	if ev.RecordingSID != "" {
		upd.RecordingSID = &ev.RecordingSID
	}
	if err := t.store.Update(ctx, ev.ProviderCallID, upd); err != nil {
		return err
	}
	log.Info("recording attached", "provider_call_id", ev.ProviderCallID, "recording_sid", ev.RecordingSID)
	return nil
}

func logStatus(log *slog.Logger, call Call, next CallStatus, changed bool) {
	if !changed {
		return
	}
	log.Info("call status updated",
		"provider_call_id", call.ProviderCallID,
		"business_id", call.BusinessID,
		"from", call.Status,
		"to", next,
	)
}
