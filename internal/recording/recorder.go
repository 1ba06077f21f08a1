// Package recording captures both directions of a call's audio and stores them as a stereo WAV.
package recording

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Uploader stores an object and returns its URL.
type Uploader interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error)
}

// MaxDuration bounds per-call buffering; audio past it is dropped.
const MaxDuration = 2 * time.Hour

// Recorder buffers caller audio on the left channel and bot audio on the right.
// Writes are placed by wall-clock offset from Start so the channels stay aligned.
type Recorder struct {
	uploader Uploader
	clock    func() time.Time

	mu      sync.Mutex
	started time.Time
	caller  []byte
	bot     []byte
}

func NewRecorder(u Uploader) *Recorder {
	return &Recorder{uploader: u, clock: time.Now}
}

func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started.IsZero() {
		r.started = r.clock()
	}
}

func (r *Recorder) WriteCaller(p []byte) { r.write(&r.caller, p) }
func (r *Recorder) WriteBot(p []byte)    { r.write(&r.bot, p) }

func (r *Recorder) write(track *[]byte, p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started.IsZero() || len(p) == 0 {
		return
	}
	limit := int(MaxDuration.Seconds()) * sampleRate
	at := int(r.clock().Sub(r.started) * sampleRate / time.Second)
	if at > limit {
		return
	}
	for len(*track) < at {
		*track = append(*track, muLawSilence)
	}
	if room := limit - len(*track); len(p) > room {
		p = p[:room]
	}
	*track = append(*track, p...)
}

// Stereo interleaves both tracks, padding the shorter with silence.
func (r *Recorder) Stereo() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := max(len(r.caller), len(r.bot))
	out := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		out = append(out, sampleAt(r.caller, i), sampleAt(r.bot, i))
	}
	return out
}

func sampleAt(track []byte, i int) byte {
	if i < len(track) {
		return track[i]
	}
	return muLawSilence
}

// Finish encodes and uploads the recording to recordings/<call_sid>.wav.
// It returns an empty URL when nothing was captured.
func (r *Recorder) Finish(ctx context.Context, callSID string) (string, error) {
	samples := r.Stereo()
	if len(samples) == 0 || r.uploader == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := WriteMuLawWAV(&buf, samples, 2); err != nil {
		return "", fmt.Errorf("recording: encode: %w", err)
	}
	return r.uploader.Put(ctx, ObjectName(callSID), bytes.NewReader(buf.Bytes()), int64(buf.Len()), "audio/wav")
}

func ObjectName(callSID string) string { return "recordings/" + callSID + ".wav" }
