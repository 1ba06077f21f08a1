package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
// It is not intended for production use.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]CallRecord // key: id
	bySID   map[string]string     // call_sid -> id
	clock   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		records: map[string]CallRecord{},
		bySID:   map[string]string{},
		clock:   time.Now,
	}
}

func (r *MemoryRepo) Create(ctx context.Context, rec CallRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[rec.CallSID]; ok {
		return ErrDuplicateSID
	}
	now := r.clock().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.records[rec.ID] = rec
	r.bySID[rec.CallSID] = rec.ID
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) FindByCallSID(ctx context.Context, callSID string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySID[callSID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return r.records[id], nil
}

func (r *MemoryRepo) List(ctx context.Context, f ListFilter) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0, len(r.records))
	for _, rec := range r.records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.Email != "" && rec.Email != f.Email {
			continue
		}
		if !f.From.IsZero() && rec.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !rec.CreatedAt.Before(f.To) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) ApplyCarrierUpdate(ctx context.Context, callSID string, u CarrierUpdate) error {
	return r.updateBySID(callSID, func(rec *CallRecord) {
		if u.Status != "" && !rec.Status.StickyAgainstCarrier() {
			rec.Status = u.Status
		}
		if u.DurationSeconds != nil {
			d := *u.DurationSeconds
			rec.DurationSeconds = &d
		}
		setIfPresent(&rec.CallerCountry, u.CallerCountry)
		setIfPresent(&rec.CallerZip, u.CallerZip)
		setIfPresent(&rec.ToCountry, u.ToCountry)
		setIfPresent(&rec.FromCountry, u.FromCountry)
	})
}

func (r *MemoryRepo) ScheduleCallback(ctx context.Context, callSID string, at time.Time) error {
	return r.updateBySID(callSID, func(rec *CallRecord) {
		t := at.UTC()
		rec.Status = CallStatusScheduled
		rec.TimeToCall = &t
	})
}

func (r *MemoryRepo) SetTimeToCall(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	t := at.UTC()
	rec.TimeToCall = &t
	rec.UpdatedAt = r.clock().UTC()
	r.records[id] = rec
	return nil
}

func (r *MemoryRepo) Complete(ctx context.Context, callSID string, c Completion) error {
	return r.updateBySID(callSID, func(rec *CallRecord) {
		score := c.QualityScore
		rec.Transcript = &c.Transcript
		rec.Analysis = &c.Summary
		rec.QualityScore = &score
		rec.Intent = &c.Intent
		rec.Outcome = &c.Outcome
		rec.CallbackTime = strPtr(c.CallbackTime)
		rec.AppointmentTime = strPtr(c.AppointmentTime)
		rec.AnalysisVersion = strPtr(c.AnalysisVersion)
		if c.Status != "" {
			rec.Status = c.Status
		}
	})
}

func (r *MemoryRepo) SetRecordingURL(ctx context.Context, callSID, url string) error {
	return r.updateBySID(callSID, func(rec *CallRecord) {
		rec.RecordingURL = strPtr(url)
	})
}

func (r *MemoryRepo) ListDueCallbacks(ctx context.Context, now time.Time, limit int) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, rec := range r.records {
		if rec.Status != CallStatusScheduled || rec.TimeToCall == nil {
			continue
		}
		if rec.TimeToCall.After(now) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeToCall.Before(*out[j].TimeToCall) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) ClearCallback(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.TimeToCall = nil
	rec.Status = CallStatusCompleted
	rec.UpdatedAt = r.clock().UTC()
	r.records[id] = rec
	return nil
}

func (r *MemoryRepo) updateBySID(callSID string, fn func(rec *CallRecord)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySID[callSID]
	if !ok {
		return ErrNotFound
	}
	rec := r.records[id]
	fn(&rec)
	rec.UpdatedAt = r.clock().UTC()
	r.records[id] = rec
	return nil
}

func setIfPresent(dst **string, v string) {
	if v != "" {
		s := v
		*dst = &s
	}
}
