package voice

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/agentplexus/omnivoice/transport"

	"voicebot/internal/analysis"
	"voicebot/internal/llm"
)

// fakeConn embeds the interface so methods the tests never touch stay nil.
type fakeConn struct {
	transport.Connection
	sid    string
	events chan transport.Event

	mu     sync.Mutex
	out    []byte
	in     io.Reader
	closed bool
}

func newFakeConn(sid string) *fakeConn {
	return &fakeConn{sid: sid, events: make(chan transport.Event, 8), in: eofReader{}}
}

func (c *fakeConn) ID() string                     { return "MZ-" + c.sid }
func (c *fakeConn) CallSID() string                { return c.sid }
func (c *fakeConn) Events() <-chan transport.Event { return c.events }
func (c *fakeConn) AudioIn() io.WriteCloser        { return fakeWriter{c} }
func (c *fakeConn) AudioOut() io.Reader            { return c.in }
func (c *fakeConn) send(ev transport.Event)        { c.events <- ev }

func (c *fakeConn) written() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.out)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeWriter struct{ c *fakeConn }

func (w fakeWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	w.c.out = append(w.c.out, p...)
	return len(p), nil
}
func (w fakeWriter) Close() error { return nil }

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

type scriptedModel struct {
	mu      sync.Mutex
	replies []llm.Reply
	err     error
	seen    [][]llm.Message
}

func (m *scriptedModel) Chat(ctx context.Context, msgs []llm.Message, tools []llm.Tool) (llm.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, append([]llm.Message(nil), msgs...))
	if m.err != nil {
		return llm.Reply{}, m.err
	}
	if len(m.replies) == 0 {
		return llm.Reply{Content: "Okay."}, nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

// heldModel greets immediately, then holds every later reply until the call ends.
type heldModel struct {
	greeted bool
	held    chan struct{}
}

func (m *heldModel) Chat(ctx context.Context, msgs []llm.Message, tools []llm.Tool) (llm.Reply, error) {
	if !m.greeted {
		m.greeted = true
		return llm.Reply{Content: "Hi Asha"}, nil
	}
	m.held <- struct{}{}
	<-ctx.Done()
	return llm.Reply{}, ctx.Err()
}

type fakeSpeech struct {
	spoken   chan string
	listener *fakeListener
}

func newFakeSpeech() *fakeSpeech {
	return &fakeSpeech{spoken: make(chan string, 8), listener: &fakeListener{started: make(chan struct{})}}
}

func (f *fakeSpeech) NewSpeaker(func(error)) Speaker { return fakeSpeaker{f} }
func (f *fakeSpeech) NewListener(h ListenerHooks) Listener {
	f.listener.hooks = h
	return f.listener
}

type fakeSpeaker struct{ f *fakeSpeech }

func (s fakeSpeaker) Speak(ctx context.Context, text string, conn transport.Connection) error {
	s.f.spoken <- text
	return nil
}
func (fakeSpeaker) Speaking() bool { return false }
func (fakeSpeaker) Interrupt()     {}

type fakeListener struct {
	hooks   ListenerHooks
	started chan struct{}
	once    sync.Once
	stopped bool
}

func (l *fakeListener) Start(ctx context.Context, conn transport.Connection) error {
	l.once.Do(func() { close(l.started) })
	return nil
}
func (l *fakeListener) Stop() { l.stopped = true }

type stubAnalyzer struct {
	mu   sync.Mutex
	seen []string
}

func (a *stubAnalyzer) Analyze(ctx context.Context, text string) analysis.Result {
	a.mu.Lock()
	a.seen = append(a.seen, text)
	a.mu.Unlock()
	return analysis.Result{Summary: "callback requested", QualityScore: 80, Intent: "Callback", Outcome: "callback_requested"}
}

type fakeSlots struct {
	mu       sync.Mutex
	free     int
	released int
	err      error
}

func (s *fakeSlots) Acquire(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if s.free == 0 {
		return false, nil
	}
	s.free--
	return true, nil
}

func (s *fakeSlots) Release(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
	s.free++
	return nil
}

func recv(ch <-chan string) (string, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-time.After(2 * time.Second):
		return "", errors.New("timed out")
	}
}
