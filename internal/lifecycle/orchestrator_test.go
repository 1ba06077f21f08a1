package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voicebot/internal/analysis"
	"voicebot/internal/audit"
	"voicebot/internal/calls"
	"voicebot/internal/functions"
	"voicebot/internal/transcript"
)

type countingStore struct {
	*calls.MemoryRepo
	completes atomic.Int32
}

func (s *countingStore) Complete(ctx context.Context, callSID string, c calls.Completion) error {
	s.completes.Add(1)
	return s.MemoryRepo.Complete(ctx, callSID, c)
}

type fakeAnalyzer struct {
	calls atomic.Int32
	seen  atomic.Value
	delay time.Duration
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text string) analysis.Result {
	f.calls.Add(1)
	f.seen.Store(text)
	time.Sleep(f.delay)
	if text == "" {
		return analysis.NoConversation()
	}
	return analysis.Result{Summary: "asked for a callback", QualityScore: 72, Intent: "Callback", Outcome: "callback_requested"}
}

type fakeRecorder struct {
	started atomic.Bool
	url     string
	err     error
}

func (r *fakeRecorder) Start() { r.started.Store(true) }
func (r *fakeRecorder) Finish(ctx context.Context, sid string) (string, error) {
	return r.url, r.err
}

type fakeClaimer struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (c *fakeClaimer) Claim(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		c.keys = map[string]bool{}
	}
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type harness struct {
	orch     *Orchestrator
	store    *countingStore
	analyzer *fakeAnalyzer
	events   *audit.MemoryRepo
	canceled *atomic.Int32
}

func newHarness(t *testing.T, withRecord bool) harness {
	t.Helper()
	store := &countingStore{MemoryRepo: calls.NewMemoryRepo()}
	if withRecord {
		if err := store.Create(context.Background(), calls.CallRecord{
			ID: "r1", Name: "Asha", Email: "asha@example.com", Phone: "+919876543210", CallSID: "CA1", Status: calls.CallStatusRinging,
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	events := audit.NewMemoryRepo()
	an := &fakeAnalyzer{}
	var canceled atomic.Int32
	o := New(Deps{
		Store:    store,
		Analyzer: an,
		Events:   audit.NewService(events),
		Clock:    func() time.Time { return fixedNow },
	}, func() { canceled.Add(1) })
	return harness{orch: o, store: store, analyzer: an, events: events, canceled: &canceled}
}

func TestConnect_StartsRecordingAndKickoff(t *testing.T) {
	h := newHarness(t, true)
	rec := &fakeRecorder{}
	h.orch.deps.Recorder = rec

	kicked := false
	if err := h.orch.Connect(context.Background(), "CA1", func(context.Context) error {
		kicked = true
		return errors.New("tts unavailable")
	}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if h.orch.State() != StateActive || !rec.started.Load() || !kicked {
		t.Fatalf("expected active with recording and kickoff, got %s", h.orch.State())
	}
	if err := h.orch.Connect(context.Background(), "CA1", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on reconnect, got %v", err)
	}
}

func TestEnd_IdempotentUnderConcurrentTriggers(t *testing.T) {
	h := newHarness(t, true)
	h.analyzer.delay = 20 * time.Millisecond
	_ = h.orch.Connect(context.Background(), "CA1", nil)
	_ = h.orch.AppendTurn(transcript.RoleUser, "hello")

	var wg sync.WaitGroup
	var winners atomic.Int32
	for _, r := range []EndReason{ReasonDisconnect, ReasonEndCall, ReasonDisconnect} {
		wg.Add(1)
		go func(r EndReason) {
			defer wg.Done()
			if h.orch.End(context.Background(), r) {
				winners.Add(1)
			}
		}(r)
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Fatalf("expected exactly one teardown, got %d", winners.Load())
	}
	if h.analyzer.calls.Load() != 1 || h.store.completes.Load() != 1 {
		t.Fatalf("expected one analysis and one write, got %d and %d", h.analyzer.calls.Load(), h.store.completes.Load())
	}
	if h.canceled.Load() != 1 {
		t.Fatalf("expected pipeline canceled once, got %d", h.canceled.Load())
	}
	select {
	case <-h.orch.Done():
	default:
		t.Fatalf("expected done closed")
	}
	if h.orch.State() != StateEnded {
		t.Fatalf("expected ended, got %s", h.orch.State())
	}
	if h.orch.AppendTurn(transcript.RoleUser, "late") == nil {
		t.Fatalf("expected append after end to fail")
	}
}

func TestEnd_WritesAnalysisAndCompletes(t *testing.T) {
	h := newHarness(t, true)
	h.orch.deps.Recorder = &fakeRecorder{url: "https://files.example.com/call-recordings/recordings/CA1.wav"}
	_ = h.orch.Connect(context.Background(), "CA1", nil)
	_ = h.orch.AppendTurn(transcript.RoleAssistant, "Hi Asha")
	_ = h.orch.AppendTurn(transcript.RoleUser, "Hi")

	h.orch.End(context.Background(), ReasonDisconnect)

	rec, _ := h.store.FindByCallSID(context.Background(), "CA1")
	if rec.Status != calls.CallStatusCompleted {
		t.Fatalf("expected completed, got %s", rec.Status)
	}
	if rec.Transcript == nil || *rec.Transcript != "assistant: Hi Asha\nuser: Hi" {
		t.Fatalf("unexpected transcript %v", rec.Transcript)
	}
	if rec.QualityScore == nil || *rec.QualityScore != 72 || *rec.AnalysisVersion != analysis.SchemaVersion {
		t.Fatalf("unexpected analysis fields: %+v", rec)
	}
	if rec.RecordingURL == nil || !strings.HasSuffix(*rec.RecordingURL, "CA1.wav") {
		t.Fatalf("expected recording url, got %v", rec.RecordingURL)
	}
	if h.orch.Reason() != ReasonDisconnect {
		t.Fatalf("unexpected reason %s", h.orch.Reason())
	}
}

func TestScheduleCallback_StringDelayPersistsAndKeepsScheduled(t *testing.T) {
	h := newHarness(t, true)
	_ = h.orch.Connect(context.Background(), "CA1", nil)

	inv, err := functions.Decode("schedule_callback", `{"minutes_delay":"90"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	res := h.orch.Invoke(context.Background(), inv)
	if res.Status != functions.StatusSuccess || !res.EndCall {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(res.Speech, "1 hour") {
		t.Fatalf("expected hour phrasing, got %q", res.Speech)
	}

	rec, _ := h.store.FindByCallSID(context.Background(), "CA1")
	want := fixedNow.Add(90 * time.Minute)
	if rec.Status != calls.CallStatusScheduled || rec.TimeToCall == nil || !rec.TimeToCall.Equal(want) {
		t.Fatalf("unexpected schedule: %s %v", rec.Status, rec.TimeToCall)
	}

	// caller hangs up while the goodbye plays; the callback still stands
	h.orch.End(context.Background(), ReasonDisconnect)
	h.orch.End(context.Background(), ReasonFor(inv))
	rec, _ = h.store.FindByCallSID(context.Background(), "CA1")
	if rec.Status != calls.CallStatusScheduled || rec.TimeToCall == nil {
		t.Fatalf("expected scheduled after analysis, got %s", rec.Status)
	}
}

func TestScheduleCallback_IntAndStringBehaveAlike(t *testing.T) {
	for _, args := range []string{`{"minutes_delay":1500}`, `{"minutes_delay":"1500"}`} {
		h := newHarness(t, true)
		_ = h.orch.Connect(context.Background(), "CA1", nil)
		inv, err := functions.Decode("schedule_callback", args)
		if err != nil {
			t.Fatalf("decode %s: %v", args, err)
		}
		res := h.orch.Invoke(context.Background(), inv)
		if !strings.Contains(res.Speech, "1 day") || res.Data["time_to_call"] != fixedNow.Add(1500*time.Minute).Format(time.RFC3339) {
			t.Fatalf("unexpected result for %s: %+v", args, res)
		}
	}
}

func TestScheduleCallback_MissingRecordTolerated(t *testing.T) {
	h := newHarness(t, false)
	_ = h.orch.Connect(context.Background(), "CA1", nil)
	res := h.orch.Invoke(context.Background(), functions.ScheduleCallback{MinutesDelay: 5})
	if res.Status != functions.StatusSuccess || !res.EndCall {
		t.Fatalf("expected acknowledged callback, got %+v", res)
	}
	if !h.orch.End(context.Background(), ReasonScheduleCallback) {
		t.Fatalf("expected teardown")
	}
	if h.analyzer.calls.Load() != 1 {
		t.Fatalf("expected analysis to run even without a record")
	}
}

func TestInvoke_NotActive(t *testing.T) {
	h := newHarness(t, true)
	res := h.orch.Invoke(context.Background(), functions.EndCall{})
	if res.Status != functions.StatusError {
		t.Fatalf("expected error result before connect, got %+v", res)
	}
}

func TestInvoke_EndCallAndLookup(t *testing.T) {
	h := newHarness(t, true)
	_ = h.orch.Connect(context.Background(), "CA1", nil)

	res := h.orch.Invoke(context.Background(), functions.LookupContact{})
	if res.Status != functions.StatusSuccess || res.Data["name"] != "Asha" {
		t.Fatalf("unexpected lookup %+v", res)
	}
	res = h.orch.Invoke(context.Background(), functions.EndCall{})
	if res.Speech != functions.GoodbyeMessage || !res.EndCall {
		t.Fatalf("unexpected end_call result %+v", res)
	}

	evs, _ := h.events.ListByCallSID(context.Background(), "CA1")
	var fn int
	for _, e := range evs {
		if e.Type == audit.EventTypeFunction {
			fn++
		}
	}
	if fn != 2 {
		t.Fatalf("expected 2 function events, got %d", fn)
	}
}

func TestEnd_ClaimedElsewhereSkipsAnalysis(t *testing.T) {
	h := newHarness(t, true)
	cl := &fakeClaimer{keys: map[string]bool{"analysis:CA1": true}}
	h.orch.deps.Claimer = cl
	_ = h.orch.Connect(context.Background(), "CA1", nil)

	h.orch.End(context.Background(), ReasonDisconnect)
	if h.analyzer.calls.Load() != 0 || h.store.completes.Load() != 0 {
		t.Fatalf("expected no analysis when claim is held")
	}
}

func TestEnd_RunsEndingHandlerOnce(t *testing.T) {
	h := newHarness(t, true)
	var hangups atomic.Int32
	h.orch.OnEnding(func() { hangups.Add(1) })
	_ = h.orch.Connect(context.Background(), "CA1", nil)

	h.orch.End(context.Background(), ReasonEndCall)
	h.orch.End(context.Background(), ReasonDisconnect)
	if hangups.Load() != 1 {
		t.Fatalf("expected one hangup, got %d", hangups.Load())
	}
}

func TestEnd_BeforeConnectSkipsAnalysis(t *testing.T) {
	h := newHarness(t, true)
	if !h.orch.End(context.Background(), ReasonDisconnect) {
		t.Fatalf("expected teardown")
	}
	if h.analyzer.calls.Load() != 0 || h.canceled.Load() != 1 {
		t.Fatalf("expected cancel without analysis")
	}
}

func TestEnd_EmptyTranscriptUsesDefault(t *testing.T) {
	h := newHarness(t, true)
	_ = h.orch.Connect(context.Background(), "CA1", nil)
	h.orch.End(context.Background(), ReasonDisconnect)

	if got := h.analyzer.seen.Load(); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
	rec, _ := h.store.FindByCallSID(context.Background(), "CA1")
	if rec.Analysis == nil || *rec.Analysis != "No conversation occurred" {
		t.Fatalf("unexpected summary %v", rec.Analysis)
	}
}
