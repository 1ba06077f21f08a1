// Package lifecycle owns one call's state machine from media connect to teardown.
//
// States move AwaitingConnect -> Active -> Ending -> Ended. The first end trigger wins;
// later triggers are no-ops, so post-call analysis and the record write happen once.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voicebot/internal/analysis"
	"voicebot/internal/audit"
	"voicebot/internal/calls"
	"voicebot/internal/functions"
	"voicebot/internal/transcript"
	"voicebot/pkg/logger"
)

type State int

const (
	StateAwaitingConnect State = iota
	StateActive
	StateEnding
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateAwaitingConnect:
		return "awaiting_connect"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type EndReason string

const (
	ReasonDisconnect       EndReason = "disconnect"
	ReasonEndCall          EndReason = "end_call"
	ReasonScheduleCallback EndReason = "schedule_callback"
)

// ReasonFor maps an ending invocation to its end reason.
func ReasonFor(inv functions.Invocation) EndReason {
	if _, ok := inv.(functions.ScheduleCallback); ok {
		return ReasonScheduleCallback
	}
	return ReasonEndCall
}

var (
	ErrInvalidTransition = errors.New("lifecycle: invalid transition")
	ErrNotActive         = errors.New("lifecycle: call is not active")
)

// Store is the slice of the call record store the orchestrator writes.
type Store interface {
	FindByCallSID(ctx context.Context, callSID string) (calls.CallRecord, error)
	ScheduleCallback(ctx context.Context, callSID string, at time.Time) error
	Complete(ctx context.Context, callSID string, c calls.Completion) error
	SetRecordingURL(ctx context.Context, callSID, url string) error
}

type Analyzer interface {
	Analyze(ctx context.Context, transcript string) analysis.Result
}

type Recorder interface {
	Start()
	Finish(ctx context.Context, callSID string) (string, error)
}

// Claimer guards analysis across processes; the first claim of a key wins.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
}

type Events interface {
	Record(ctx context.Context, callSID string, typ audit.EventType, message string, metadata map[string]any)
}

// Deps are shared across calls. Recorder, Claimer and Events are optional.
type Deps struct {
	Store    Store
	Analyzer Analyzer
	Recorder Recorder
	Claimer  Claimer
	Events   Events
	Clock    func() time.Time

	// AnalysisTimeout bounds the whole teardown, recording upload included.
	AnalysisTimeout time.Duration
}

type Orchestrator struct {
	deps       Deps
	cancel     context.CancelFunc
	cancelOnce sync.Once
	transcript *transcript.Accumulator
	done       chan struct{}

	mu                sync.Mutex
	state             State
	callSID           string
	reason            EndReason
	callbackScheduled bool
	onEnding          func()
}

// New creates an orchestrator for one call. cancel stops the call's pipeline once Ended.
func New(deps Deps, cancel context.CancelFunc) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.AnalysisTimeout <= 0 {
		deps.AnalysisTimeout = 45 * time.Second
	}
	return &Orchestrator{
		deps:       deps,
		cancel:     cancel,
		transcript: transcript.New(),
		done:       make(chan struct{}),
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) CallSID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.callSID
}

// Reason is the trigger that ended the call, empty while it is live.
func (o *Orchestrator) Reason() EndReason {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reason
}

// Done is closed once the call reaches Ended.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Transcript returns the entries captured so far.
func (o *Orchestrator) Transcript() []transcript.Entry { return o.transcript.Entries() }

// OnEnding registers the transition handler run once on entering Ending, before
// analysis. Sessions use it to hang up so the caller is not held during teardown.
func (o *Orchestrator) OnEnding(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onEnding = fn
}

// Connect moves the call to Active, starts recording and runs kickoff, which lets the
// agent speak first. A kickoff failure is logged; the call stays up.
func (o *Orchestrator) Connect(ctx context.Context, callSID string, kickoff func(context.Context) error) error {
	o.mu.Lock()
	if o.state != StateAwaitingConnect {
		st := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: connect from %s", ErrInvalidTransition, st)
	}
	o.state = StateActive
	o.callSID = callSID
	o.mu.Unlock()

	if o.deps.Recorder != nil {
		o.deps.Recorder.Start()
	}
	o.event(ctx, callSID, audit.EventTypeLifecycle, StateActive.String(), nil)

	if kickoff != nil {
		if err := kickoff(ctx); err != nil {
			logger.From(ctx).Warn("opening turn failed", "call_sid", callSID, "err", err)
		}
	}
	return nil
}

// AppendTurn records one utterance in arrival order. It fails once teardown has begun.
func (o *Orchestrator) AppendTurn(role transcript.Role, text string) error {
	return o.transcript.Append(role, text)
}

// Invoke runs one decoded function call. Failures come back as error results for the model.
func (o *Orchestrator) Invoke(ctx context.Context, inv functions.Invocation) functions.Result {
	o.mu.Lock()
	st, sid := o.state, o.callSID
	o.mu.Unlock()
	if st != StateActive {
		return functions.Failure(ErrNotActive)
	}
	log := logger.From(ctx).With("call_sid", sid)

	var res functions.Result
	switch v := inv.(type) {
	case functions.ScheduleCallback:
		res = o.scheduleCallback(ctx, log, sid, v)
	case functions.EndCall:
		res = functions.Success("ending call")
		res.Speech = functions.GoodbyeMessage
		res.EndCall = true
	case functions.LookupContact:
		res = o.lookupContact(ctx, sid)
	default:
		res = functions.Failure(fmt.Errorf("%w: %T", functions.ErrUnknownFunction, inv))
	}

	md := map[string]any{"status": string(res.Status)}
	if res.Error != "" {
		md["error"] = res.Error
	}
	if inv != nil {
		o.event(ctx, sid, audit.EventTypeFunction, string(inv.Name()), md)
	}
	return res
}

func (o *Orchestrator) scheduleCallback(ctx context.Context, log *slog.Logger, sid string, v functions.ScheduleCallback) functions.Result {
	if v.MinutesDelay < 0 {
		return functions.Failure(fmt.Errorf("%w: minutes_delay must be >= 0", functions.ErrInvalidArguments))
	}
	at := o.deps.Clock().UTC().Add(time.Duration(v.MinutesDelay) * time.Minute)

	err := o.deps.Store.ScheduleCallback(ctx, sid, at)
	switch {
	case errors.Is(err, calls.ErrNotFound):
		log.Warn("callback requested for unknown call; not persisted")
	case err != nil:
		log.Error("schedule callback failed", "err", err)
		return functions.Failure(errors.New("could not schedule the callback"))
	default:
		o.mu.Lock()
		o.callbackScheduled = true
		o.mu.Unlock()
	}

	res := functions.Success("callback scheduled")
	res.Data = map[string]any{
		"minutes_delay": v.MinutesDelay,
		"time_to_call":  at.Format(time.RFC3339),
	}
	res.Speech = functions.CallbackAck(v.MinutesDelay)
	res.EndCall = true
	return res
}

func (o *Orchestrator) lookupContact(ctx context.Context, sid string) functions.Result {
	rec, err := o.deps.Store.FindByCallSID(ctx, sid)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			return functions.Failure(errors.New("no contact details on file for this call"))
		}
		return functions.Failure(errors.New("contact lookup failed"))
	}
	res := functions.Success("contact found")
	res.Data = map[string]any{"name": rec.Name, "email": rec.Email, "phone": rec.Phone}
	return res
}

// End runs teardown for the first trigger and reports whether this call did so.
// It blocks until analysis is written (bounded by AnalysisTimeout) and ignores ctx cancellation.
func (o *Orchestrator) End(ctx context.Context, reason EndReason) bool {
	o.mu.Lock()
	if o.state == StateEnding || o.state == StateEnded {
		o.mu.Unlock()
		return false
	}
	connected := o.state == StateActive
	o.state = StateEnding
	o.reason = reason
	sid := o.callSID
	scheduled := o.callbackScheduled
	onEnding := o.onEnding
	o.mu.Unlock()

	text := o.transcript.Close()
	if onEnding != nil {
		onEnding()
	}

	if connected {
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.deps.AnalysisTimeout)
		o.teardown(tctx, sid, reason, text, scheduled)
		cancel()
	}

	o.mu.Lock()
	o.state = StateEnded
	o.mu.Unlock()
	o.cancelOnce.Do(func() {
		if o.cancel != nil {
			o.cancel()
		}
	})
	close(o.done)
	return true
}

func (o *Orchestrator) teardown(ctx context.Context, sid string, reason EndReason, text string, scheduled bool) {
	log := logger.From(ctx).With("call_sid", sid, "reason", string(reason))
	o.event(ctx, sid, audit.EventTypeLifecycle, StateEnding.String(), map[string]any{"reason": string(reason)})

	if o.deps.Recorder != nil {
		url, err := o.deps.Recorder.Finish(ctx, sid)
		switch {
		case err != nil:
			log.Warn("recording upload failed", "err", err)
		case url != "":
			if err := o.deps.Store.SetRecordingURL(ctx, sid, url); err != nil {
				log.Warn("recording url not saved", "err", err)
			}
			o.event(ctx, sid, audit.EventTypeRecording, "uploaded", map[string]any{"url": url})
		}
	}

	if o.deps.Claimer != nil {
		ok, err := o.deps.Claimer.Claim(ctx, "analysis:"+sid)
		if err != nil {
			log.Warn("analysis claim failed; analyzing anyway", "err", err)
		} else if !ok {
			log.Info("analysis already claimed; skipping")
			return
		}
	}

	res := o.deps.Analyzer.Analyze(ctx, text)
	status := calls.CallStatusCompleted
	if scheduled {
		status = calls.CallStatusScheduled
	}
	err := o.deps.Store.Complete(ctx, sid, calls.Completion{
		Transcript:      text,
		Summary:         res.Summary,
		QualityScore:    res.QualityScore,
		Intent:          res.Intent,
		Outcome:         res.Outcome,
		CallbackTime:    res.CallbackTime,
		AppointmentTime: res.AppointmentTime,
		AnalysisVersion: analysis.SchemaVersion,
		Status:          status,
	})
	switch {
	case errors.Is(err, calls.ErrNotFound):
		log.Warn("no call record for analysis; skipped")
	case err != nil:
		log.Error("analysis write failed", "err", err)
	default:
		log.Info("call analyzed", "status", string(status), "quality_score", res.QualityScore, "outcome", res.Outcome)
		o.event(ctx, sid, audit.EventTypeLifecycle, StateEnded.String(), map[string]any{"status": string(status)})
	}
}

func (o *Orchestrator) event(ctx context.Context, sid string, typ audit.EventType, msg string, md map[string]any) {
	if o.deps.Events == nil || sid == "" {
		return
	}
	o.deps.Events.Record(ctx, sid, typ, msg, md)
}
