package calls

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seed(t *testing.T, r *MemoryRepo, id, sid string) {
	t.Helper()
	if err := r.Create(context.Background(), CallRecord{ID: id, Name: "Asha", Phone: "+919876543210", CallSID: sid, Status: CallStatusRinging}); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestMemoryRepo_CreateRejectsDuplicateSID(t *testing.T) {
	r := NewMemoryRepo()
	seed(t, r, "1", "CA1")
	err := r.Create(context.Background(), CallRecord{ID: "2", Phone: "+919876543210", CallSID: "CA1", Status: CallStatusRinging})
	if !errors.Is(err, ErrDuplicateSID) {
		t.Fatalf("expected ErrDuplicateSID, got %v", err)
	}
}

func TestMemoryRepo_CarrierUpdateKeepsScheduled(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	seed(t, r, "1", "CA1")

	at := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	if err := r.ScheduleCallback(ctx, "CA1", at); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	d := 42
	if err := r.ApplyCarrierUpdate(ctx, "CA1", CarrierUpdate{Status: CallStatusCompleted, DurationSeconds: &d, CallerCountry: "IN"}); err != nil {
		t.Fatalf("carrier update: %v", err)
	}

	rec, _ := r.FindByCallSID(ctx, "CA1")
	if rec.Status != CallStatusScheduled {
		t.Fatalf("expected scheduled to survive carrier update, got %q", rec.Status)
	}
	if rec.DurationSeconds == nil || *rec.DurationSeconds != 42 {
		t.Fatalf("expected duration recorded")
	}
	if rec.CallerCountry == nil || *rec.CallerCountry != "IN" {
		t.Fatalf("expected caller country recorded")
	}
	if rec.TimeToCall == nil || !rec.TimeToCall.Equal(at) {
		t.Fatalf("expected time_to_call %v, got %v", at, rec.TimeToCall)
	}
}

func TestMemoryRepo_MissingRecordIsNotFound(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	if err := r.Complete(ctx, "CA404", Completion{Transcript: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.ApplyCarrierUpdate(ctx, "CA404", CarrierUpdate{Status: CallStatusBusy}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepo_CompleteWritesAllFieldsTogether(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	seed(t, r, "1", "CA1")

	err := r.Complete(ctx, "CA1", Completion{
		Transcript:      "user: hi\nassistant: hello",
		Summary:         "greeting",
		QualityScore:    70,
		Intent:          "inquiry",
		Outcome:         "resolved",
		AnalysisVersion: "v1",
		Status:          CallStatusCompleted,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	rec, _ := r.Get(ctx, "1")
	if rec.Status != CallStatusCompleted || rec.Analysis == nil || *rec.Analysis != "greeting" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.QualityScore == nil || *rec.QualityScore != 70 {
		t.Fatalf("expected score 70")
	}
	if rec.CallbackTime != nil {
		t.Fatalf("expected empty callback time to stay nil")
	}
}

func TestMemoryRepo_DueCallbacks(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	seed(t, r, "1", "CA1")
	seed(t, r, "2", "CA2")

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	_ = r.ScheduleCallback(ctx, "CA1", now.Add(-time.Minute))
	_ = r.ScheduleCallback(ctx, "CA2", now.Add(time.Hour))

	due, err := r.ListDueCallbacks(ctx, now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != "1" {
		t.Fatalf("expected only record 1 due, got %+v", due)
	}

	if err := r.ClearCallback(ctx, "1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	due, _ = r.ListDueCallbacks(ctx, now, 10)
	if len(due) != 0 {
		t.Fatalf("expected no due callbacks after clear")
	}
}
