package calls

import (
	"context"
	"testing"
	"time"
)

func seedCall(t *testing.T, store *MemoryStore, status CallStatus) Call {
	t.Helper()
	c := Call{
		ID:             "11111111-1111-1111-1111-111111111111",
		ProviderCallID: "CA123",
		BusinessID:     "b1",
		PhoneNumberID:  "p1",
		CallerNumber:   "+15551234567",
		Type:           CallTypeAI,
		Status:         status,
	}
	if err := store.Create(context.Background(), c); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return c
}

func TestTracker_CompletedSetsDurationAndCost(t *testing.T) {
	store := NewMemoryStore()
	seedCall(t, store, CallStatusInProgress)
	tr := NewTracker(store)

	dur := 42
	cost := 0.0075
	err := tr.ApplyStatus(context.Background(), StatusEvent{
		ProviderCallID: "CA123",
		Status:         "completed",
		DurationSecs:   &dur,
		Cost:           &cost,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, _ := store.FindByProviderID(context.Background(), "CA123")
	if got.Status != CallStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.DurationSeconds == nil || *got.DurationSeconds != 42 {
		t.Fatalf("expected duration 42, got %v", got.DurationSeconds)
	}
	if got.Cost == nil || *got.Cost != 0.0075 {
		t.Fatalf("expected cost 0.0075, got %v", got.Cost)
	}
	if got.EndedAt == nil {
		t.Fatalf("expected ended_at on terminal status")
	}
}

func TestTracker_TerminalStatusIsNotReverted(t *testing.T) {
	store := NewMemoryStore()
	seedCall(t, store, CallStatusCompleted)
	tr := NewTracker(store)

	if err := tr.ApplyStatus(context.Background(), StatusEvent{ProviderCallID: "CA123", Status: "in-progress"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got, _ := store.FindByProviderID(context.Background(), "CA123")
	if got.Status != CallStatusCompleted {
		t.Fatalf("terminal status reverted to %s", got.Status)
	}

	if err := tr.ApplyStatus(context.Background(), StatusEvent{ProviderCallID: "CA123", Status: "busy"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got, _ = store.FindByProviderID(context.Background(), "CA123")
	if got.Status != CallStatusCompleted {
		t.Fatalf("terminal status reverted to %s", got.Status)
	}
}

func TestTracker_DurationAndCostAreWriteOnce(t *testing.T) {
	store := NewMemoryStore()
	seedCall(t, store, CallStatusInProgress)
	tr := NewTracker(store)

	d1, c1 := 42, 0.0075
	_ = tr.ApplyStatus(context.Background(), StatusEvent{ProviderCallID: "CA123", Status: "completed", DurationSecs: &d1, Cost: &c1})

	d2, c2 := 99, 9.99
	_ = tr.ApplyStatus(context.Background(), StatusEvent{ProviderCallID: "CA123", Status: "completed", DurationSecs: &d2, Cost: &c2})

	got, _ := store.FindByProviderID(context.Background(), "CA123")
	if *got.DurationSeconds != 42 || *got.Cost != 0.0075 {
		t.Fatalf("write-once violated: duration=%d cost=%v", *got.DurationSeconds, *got.Cost)
	}
}

func TestTracker_UnknownCallIsNoOp(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store)

	if err := tr.ApplyStatus(context.Background(), StatusEvent{ProviderCallID: "CA404", Status: "completed"}); err != nil {
		t.Fatalf("unknown call must be a no-op, got %v", err)
	}
	if err := tr.ApplyRecording(context.Background(), RecordingEvent{ProviderCallID: "CA404", RecordingURL: "https://x"}); err != nil {
		t.Fatalf("unknown call must be a no-op, got %v", err)
	}
	if store.Count() != 0 {
		t.Fatalf("no calls should be created by callbacks")
	}
}

func TestTracker_RecordingAttachesWithoutTouchingStatus(t *testing.T) {
	store := NewMemoryStore()
	seedCall(t, store, CallStatusCompleted)
	tr := NewTracker(store)

	dur := 40
	err := tr.ApplyRecording(context.Background(), RecordingEvent{
		ProviderCallID: "CA123",
		RecordingURL:   "https://api.twilio.com/recordings/RE1",
		RecordingSID:   "RE1",
		DurationSecs:   &dur,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got, _ := store.FindByProviderID(context.Background(), "CA123")
	if got.Status != CallStatusCompleted {
		t.Fatalf("recording callback must not change status")
	}
	if got.RecordingURL == "" || got.RecordingSID != "RE1" {
		t.Fatalf("recording fields not attached: %+v", got)
	}
	if got.DurationSeconds == nil || *got.DurationSeconds != 40 {
		t.Fatalf("expected recording duration fallback, got %v", got.DurationSeconds)
	}
}

func TestTracker_RecordingDoesNotOverwriteDuration(t *testing.T) {
	store := NewMemoryStore()
	seedCall(t, store, CallStatusInProgress)
	tr := NewTracker(store)

	d1 := 42
	_ = tr.ApplyStatus(context.Background(), StatusEvent{ProviderCallID: "CA123", Status: "completed", DurationSecs: &d1})

	d2 := 40
	_ = tr.ApplyRecording(context.Background(), RecordingEvent{
		ProviderCallID: "CA123",
		RecordingURL:   "https://api.twilio.com/recordings/RE1",
		RecordingSID:   "RE1",
		DurationSecs:   &d2,
	})

	got, _ := store.FindByProviderID(context.Background(), "CA123")
	if *got.DurationSeconds != 42 {
		t.Fatalf("recording duration overwrote status duration: %d", *got.DurationSeconds)
	}
	if got.RecordingSID != "RE1" {
		t.Fatalf("recording sid missing")
	}
}

func TestMemoryStore_EndedAtIsWriteOnce(t *testing.T) {
	store := NewMemoryStore()
	seedCall(t, store, CallStatusInProgress)

	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	_ = store.Update(context.Background(), "CA123", Update{EndedAt: &first})
	_ = store.Update(context.Background(), "CA123", Update{EndedAt: &second})

	got, _ := store.FindByProviderID(context.Background(), "CA123")
	if got.EndedAt == nil || !got.EndedAt.Equal(first) {
		t.Fatalf("ended_at overwritten: %v", got.EndedAt)
	}
}
