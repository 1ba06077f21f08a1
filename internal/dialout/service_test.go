package dialout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"voicebot/internal/audit"
	"voicebot/internal/calls"
	"voicebot/internal/contacts"
)

type fakeDialer struct {
	mu    sync.Mutex
	n     int
	fail  map[string]error
	dials []string
}

func (f *fakeDialer) Dial(ctx context.Context, to, from string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials = append(f.dials, to+"<"+from)
	if err := f.fail[to]; err != nil {
		return "", err
	}
	f.n++
	return fmt.Sprintf("CA%03d", f.n), nil
}

func strp(s string) *string { return &s }

func newService(d Dialer, repo *calls.MemoryRepo) (*Service, *audit.MemoryRepo) {
	ev := audit.NewMemoryRepo()
	return NewService(d, repo, audit.NewService(ev), Config{FromNumber: "+15550001111", CountryCode: "+91"}), ev
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct{ in, cc, want string }{
		{"9876543210", "+91", "+919876543210"},
		{"+19876543210", "+91", "+19876543210"},
		{"  9876543210 ", "91", "+919876543210"},
		{"", "+91", ""},
	}
	for _, c := range cases {
		if got := NormalizePhone(c.in, c.cc); got != c.want {
			t.Fatalf("NormalizePhone(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}

func TestBatch_SkipsMissingPhoneAndKeepsOrder(t *testing.T) {
	repo := calls.NewMemoryRepo()
	svc, _ := newService(&fakeDialer{}, repo)

	out := svc.Batch(context.Background(), []contacts.Contact{
		{Name: "A", Phone: strp("9876543210"), Email: "a@x.com"},
		{Name: "B", Email: "b@x.com"},
	})

	if len(out) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(out))
	}
	if out[0].Name != "A" || out[0].Status != OutcomeInitiated || out[0].CallSID == "" {
		t.Fatalf("unexpected outcome for A: %+v", out[0])
	}
	if out[1].Name != "B" || out[1].Status != OutcomeSkipped || out[1].Error != "No phone number" {
		t.Fatalf("unexpected outcome for B: %+v", out[1])
	}

	rec, err := repo.FindByCallSID(context.Background(), out[0].CallSID)
	if err != nil {
		t.Fatalf("expected record for A: %v", err)
	}
	if rec.Status != calls.CallStatusRinging || rec.Phone != "+919876543210" || rec.Email != "a@x.com" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestBatch_FailureDoesNotStopBatch(t *testing.T) {
	repo := calls.NewMemoryRepo()
	d := &fakeDialer{fail: map[string]error{"+911111111111": errors.New("invalid number")}}
	svc, _ := newService(d, repo)

	out := svc.Batch(context.Background(), []contacts.Contact{
		{Name: "X", Phone: strp("1111111111")},
		{Name: "Y", Phone: strp("+447700900123")},
	})
	if out[0].Status != OutcomeFailed || out[0].Error != "invalid number" {
		t.Fatalf("unexpected outcome for X: %+v", out[0])
	}
	if out[1].Status != OutcomeInitiated {
		t.Fatalf("expected Y initiated, got %+v", out[1])
	}
	all, _ := repo.List(context.Background(), calls.ListFilter{})
	if len(all) != 1 {
		t.Fatalf("expected only the successful dial persisted, got %d", len(all))
	}
}

func TestBatch_InvalidContactIsNotDialed(t *testing.T) {
	repo := calls.NewMemoryRepo()
	d := &fakeDialer{}
	svc, _ := newService(d, repo)

	out := svc.Batch(context.Background(), []contacts.Contact{
		{Name: "A", Phone: strp("9876543210"), Email: "n/a"},
		{Name: "C", Phone: strp("98765 43210"), Email: "c@x.com"},
	})
	if len(d.dials) != 0 {
		t.Fatalf("expected no dials, got %v", d.dials)
	}
	for _, o := range out {
		if o.Status != OutcomeFailed || !strings.Contains(o.Error, "invalid record") {
			t.Fatalf("expected failed with a validation error, got %+v", o)
		}
	}
	all, _ := repo.List(context.Background(), calls.ListFilter{})
	if len(all) != 0 {
		t.Fatalf("expected 0 records, got %d", len(all))
	}
}

type rejectingStore struct{}

func (rejectingStore) Create(ctx context.Context, r calls.CallRecord) error {
	return errors.New("connection reset")
}

func (rejectingStore) Get(ctx context.Context, id string) (calls.CallRecord, error) {
	return calls.CallRecord{}, calls.ErrNotFound
}

func TestSingle_UnsavedRecordIsReportedFailed(t *testing.T) {
	d := &fakeDialer{}
	svc := NewService(d, rejectingStore{}, nil, Config{FromNumber: "+15550001111"})

	o, err := svc.Single(context.Background(), "9876543210", "")
	if err == nil {
		t.Fatalf("expected error for an unsaved record")
	}
	if o.Status != OutcomeFailed || o.CallSID != "CA001" || o.RecordID != "" {
		t.Fatalf("expected failed outcome carrying the call sid, got %+v", o)
	}
	if !strings.Contains(o.Error, "record not saved") {
		t.Fatalf("expected record error, got %q", o.Error)
	}
}

func TestSingle_RequiresSender(t *testing.T) {
	svc := NewService(&fakeDialer{}, calls.NewMemoryRepo(), nil, Config{})
	if _, err := svc.Single(context.Background(), "9876543210", ""); !errors.Is(err, ErrNoFromNumber) {
		t.Fatalf("expected ErrNoFromNumber, got %v", err)
	}
}

func TestSingle_FromOverride(t *testing.T) {
	d := &fakeDialer{}
	svc, _ := newService(d, calls.NewMemoryRepo())
	o, err := svc.Single(context.Background(), "9876543210", "+15559998888")
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	if o.Status != OutcomeInitiated || d.dials[0] != "+919876543210<+15559998888" {
		t.Fatalf("unexpected dial %v outcome %+v", d.dials, o)
	}
}

func TestRedial_CreatesNewRecord(t *testing.T) {
	repo := calls.NewMemoryRepo()
	svc, events := newService(&fakeDialer{}, repo)

	first, err := svc.Single(context.Background(), "9876543210", "")
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	second, err := svc.Redial(context.Background(), first.RecordID)
	if err != nil {
		t.Fatalf("redial: %v", err)
	}
	if second.RecordID == first.RecordID || second.CallSID == first.CallSID {
		t.Fatalf("expected a distinct record, got %+v and %+v", first, second)
	}
	orig, _ := repo.Get(context.Background(), first.RecordID)
	if orig.CallSID != first.CallSID || orig.Status != calls.CallStatusRinging {
		t.Fatalf("original record changed: %+v", orig)
	}

	evs, _ := events.ListByCallSID(context.Background(), second.CallSID)
	if len(evs) != 2 || evs[1].Message != "redial" {
		t.Fatalf("expected dialed and redial events, got %+v", evs)
	}
}

func TestRedial_NotFound(t *testing.T) {
	svc, _ := newService(&fakeDialer{}, calls.NewMemoryRepo())
	if _, err := svc.Redial(context.Background(), "missing"); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSingle_RequiresNumber(t *testing.T) {
	svc, _ := newService(&fakeDialer{}, calls.NewMemoryRepo())
	if _, err := svc.Single(context.Background(), "  ", ""); !errors.Is(err, ErrNoPhoneNumber) {
		t.Fatalf("expected ErrNoPhoneNumber, got %v", err)
	}
}
