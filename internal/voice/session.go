package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/agentplexus/omnivoice/transport"

	"voicebot/internal/lifecycle"
	"voicebot/internal/transcript"
	"voicebot/pkg/logger"
)

var errAtCapacity = errors.New("voice: live session cap reached")

// openingTurn asks the agent for its first line instead of answering the caller.
const openingTurn = "\x00open"

type session struct {
	srv      *Server
	conn     *mediaConn
	orch     *lifecycle.Orchestrator
	speaker  Speaker
	listener Listener
	turns    *turnQueue
	log      *slog.Logger
	slotHeld bool
}

// serve owns one media stream from accept to Ended.
func (s *Server) serve(parent context.Context, raw transport.Connection) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var rec CallRecorder
	if s.deps.NewRecorder != nil {
		rec = s.deps.NewRecorder()
	}
	var tap AudioTap
	if rec != nil {
		tap = rec
	}
	conn := newMediaConn(raw, tap)

	deps := lifecycle.Deps{
		Store:           s.deps.Store,
		Analyzer:        s.deps.Analyzer,
		Claimer:         s.deps.Claimer,
		Events:          s.deps.Events,
		AnalysisTimeout: s.opts.AnalysisTimeout,
	}
	if rec != nil {
		deps.Recorder = rec
	}
	sess := &session{
		srv:   s,
		conn:  conn,
		orch:  lifecycle.New(deps, cancel),
		turns: newTurnQueue(),
		log:   logger.From(ctx),
	}
	sess.orch.OnEnding(func() { _ = conn.Close() })
	defer sess.cleanup()

	for {
		select {
		case <-ctx.Done():
			sess.end(parent, lifecycle.ReasonDisconnect)
			return
		case ev, ok := <-conn.Events():
			if !ok {
				sess.end(parent, lifecycle.ReasonDisconnect)
				return
			}
			switch ev.Type {
			case transport.EventAudioStarted:
				if sess.orch.State() != lifecycle.StateAwaitingConnect {
					continue
				}
				var err error
				if ctx, err = sess.start(ctx); err != nil {
					if !errors.Is(err, errAtCapacity) {
						sess.log.Error("session start failed", "err", err)
					}
					sess.end(parent, lifecycle.ReasonDisconnect)
					return
				}
			case transport.EventDisconnected:
				sess.end(parent, lifecycle.ReasonDisconnect)
				return
			case transport.EventError:
				sess.log.Warn("media stream error", "err", ev.Error)
			case transport.EventDTMF:
				sess.log.Debug("dtmf", "digit", ev.Data)
			}
		}
	}
}

// start runs when the stream reports its call SID: it claims a session slot,
// personalises the agent and brings up speech in both directions.
func (ss *session) start(ctx context.Context) (context.Context, error) {
	sid := ss.conn.CallSID()
	if sid == "" {
		sid = ss.conn.ID()
	}
	ctx, ss.log = logger.ForCall(ctx, sid)

	ss.speaker = ss.srv.deps.Speech.NewSpeaker(func(err error) {
		ss.log.Warn("speech synthesis error", "err", err)
	})

	if slots := ss.srv.deps.Slots; slots != nil {
		ok, err := slots.Acquire(ctx)
		switch {
		case err != nil:
			ss.log.Warn("session cap unavailable; admitting call", "err", err)
		case !ok:
			ss.log.Warn("session cap reached; rejecting call")
			if err := ss.speaker.Speak(ctx, AtCapacityMessage, ss.conn); err != nil {
				ss.log.Warn("apology not spoken", "err", err)
			}
			ss.conn.WaitPlayout(ctx, ss.srv.opts.MaxGoodbyeWait)
			return ctx, errAtCapacity
		default:
			ss.slotHeld = true
		}
	}

	name := DefaultContactName
	if rec, err := ss.srv.deps.Store.FindByCallSID(ctx, sid); err == nil && rec.Name != "" {
		name = rec.Name
	}
	agent := NewAgent(ss.srv.deps.Model, SystemPrompt(name))

	var kickoff func(context.Context) error
	if ss.srv.opts.BotSpeaksFirst {
		kickoff = func(context.Context) error {
			ss.turns.push(openingTurn)
			return nil
		}
	}
	if err := ss.orch.Connect(ctx, sid, kickoff); err != nil {
		return ctx, err
	}

	ss.listener = ss.srv.deps.Speech.NewListener(ListenerHooks{
		OnFinal: ss.heard,
		OnSpeechStart: func() {
			if ss.speaker.Speaking() {
				ss.speaker.Interrupt()
			}
		},
		OnError: func(err error) { ss.log.Warn("speech recognition error", "err", err) },
	})
	if err := ss.listener.Start(ctx, ss.conn); err != nil {
		return ctx, err
	}

	go ss.converse(ctx, agent)
	ss.log.Info("call connected", "contact", name)
	return ctx, nil
}

// heard records a final caller utterance as soon as it arrives, then queues
// it for an answer.
func (ss *session) heard(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if err := ss.orch.AppendTurn(transcript.RoleUser, text); err != nil {
		ss.log.Debug("utterance after call end", "text", text)
		return
	}
	ss.turns.push(text)
}

// converse answers queued utterances one at a time in arrival order.
func (ss *session) converse(ctx context.Context, agent *Agent) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ss.turns.ready():
		}
		for {
			text, ok := ss.turns.pop()
			if !ok {
				break
			}
			if text == openingTurn {
				text = ""
			}

			turn, err := agent.Respond(ctx, text, ss.orch.Invoke)
			if err != nil {
				ss.log.Warn("agent turn failed", "err", err)
			}
			if turn.Say != "" {
				if err := ss.orch.AppendTurn(transcript.RoleAssistant, turn.Say); err != nil {
					return
				}
				if err := ss.speaker.Speak(ctx, turn.Say, ss.conn); err != nil {
					ss.log.Warn("reply not spoken", "err", err)
				}
			}
			if turn.End != nil {
				ss.conn.WaitPlayout(ctx, ss.srv.opts.MaxGoodbyeWait)
				ss.orch.End(ctx, lifecycle.ReasonFor(turn.End))
				return
			}
		}
	}
}

// end triggers teardown, or waits for the teardown already in progress.
func (ss *session) end(ctx context.Context, reason lifecycle.EndReason) {
	if !ss.orch.End(ctx, reason) {
		<-ss.orch.Done()
	}
}

func (ss *session) cleanup() {
	if ss.listener != nil {
		ss.listener.Stop()
	}
	if ss.speaker != nil && ss.speaker.Speaking() {
		ss.speaker.Interrupt()
	}
	_ = ss.conn.Close()
	if ss.slotHeld {
		if err := ss.srv.deps.Slots.Release(context.Background()); err != nil {
			ss.log.Warn("session slot not released", "err", err)
		}
	}
}

// turnQueue is an unbounded FIFO of utterances waiting for an answer.
type turnQueue struct {
	mu     sync.Mutex
	items  []string
	signal chan struct{}
}

func newTurnQueue() *turnQueue {
	return &turnQueue{signal: make(chan struct{}, 1)}
}

func (q *turnQueue) push(text string) {
	q.mu.Lock()
	q.items = append(q.items, text)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *turnQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	text := q.items[0]
	q.items = q.items[1:]
	return text, true
}

func (q *turnQueue) ready() <-chan struct{} { return q.signal }
