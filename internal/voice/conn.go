package voice

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/agentplexus/omnivoice/transport"
)

// bytesPerSecond is 8 kHz mono mu-law.
const bytesPerSecond = 8000

// AudioTap receives copies of call audio. *recording.Recorder satisfies it.
type AudioTap interface {
	WriteCaller(p []byte)
	WriteBot(p []byte)
}

// mediaConn wraps a transport connection so both audio directions pass through
// the tap, and tracks when queued bot audio will have finished playing.
type mediaConn struct {
	transport.Connection
	tap   AudioTap
	clock func() time.Time

	mu           sync.Mutex
	playoutUntil time.Time
}

func newMediaConn(c transport.Connection, tap AudioTap) *mediaConn {
	return &mediaConn{Connection: c, tap: tap, clock: time.Now}
}

func (c *mediaConn) AudioIn() io.WriteCloser { return botWriter{c} }
func (c *mediaConn) AudioOut() io.Reader     { return callerReader{c} }

// CallSID is known once the media stream has started.
func (c *mediaConn) CallSID() string {
	if v, ok := c.Connection.(interface{ CallSID() string }); ok {
		return v.CallSID()
	}
	return ""
}

// WaitPlayout blocks until queued bot audio has played, at most limit.
func (c *mediaConn) WaitPlayout(ctx context.Context, limit time.Duration) {
	c.mu.Lock()
	wait := c.playoutUntil.Sub(c.clock())
	c.mu.Unlock()
	if wait <= 0 {
		return
	}
	if wait > limit {
		wait = limit
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *mediaConn) queued(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	if c.playoutUntil.Before(now) {
		c.playoutUntil = now
	}
	c.playoutUntil = c.playoutUntil.Add(time.Duration(n) * time.Second / bytesPerSecond)
}

type botWriter struct{ c *mediaConn }

func (w botWriter) Write(p []byte) (int, error) {
	n, err := w.c.Connection.AudioIn().Write(p)
	if n > 0 {
		w.c.queued(n)
		if w.c.tap != nil {
			w.c.tap.WriteBot(p[:n])
		}
	}
	return n, err
}

func (w botWriter) Close() error { return w.c.Connection.AudioIn().Close() }

type callerReader struct{ c *mediaConn }

func (r callerReader) Read(p []byte) (int, error) {
	n, err := r.c.Connection.AudioOut().Read(p)
	if n > 0 && r.c.tap != nil {
		r.c.tap.WriteCaller(p[:n])
	}
	return n, err
}
