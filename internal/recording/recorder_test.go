package recording

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"
)

type memUploader struct {
	name string
	ct   string
	data []byte
}

func (m *memUploader) Put(ctx context.Context, name string, r io.Reader, size int64, ct string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if int64(len(b)) != size {
		return "", io.ErrShortWrite
	}
	m.name, m.ct, m.data = name, ct, b
	return "https://files.example.com/" + name, nil
}

func TestRecorder_AlignsTracksByTime(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := NewRecorder(nil)
	r.clock = func() time.Time { return now }
	r.Start()

	r.WriteCaller([]byte{1, 2})
	now = now.Add(time.Millisecond) // 8 samples in
	r.WriteBot([]byte{9})

	s := r.Stereo()
	if len(s) != 18 {
		t.Fatalf("expected 9 stereo frames, got %d bytes", len(s))
	}
	if s[0] != 1 || s[2] != 2 || s[4] != muLawSilence {
		t.Fatalf("unexpected caller channel: %v", s)
	}
	if s[1] != muLawSilence || s[17] != 9 {
		t.Fatalf("unexpected bot channel: %v", s)
	}
}

func TestRecorder_IgnoresWritesBeforeStart(t *testing.T) {
	r := NewRecorder(nil)
	r.WriteCaller([]byte{1, 2, 3})
	if len(r.Stereo()) != 0 {
		t.Fatalf("expected no audio before start")
	}
}

func TestRecorder_FinishUploadsWAV(t *testing.T) {
	up := &memUploader{}
	r := NewRecorder(up)
	r.clock = func() time.Time { return time.Unix(1700000000, 0) }
	r.Start()
	r.WriteCaller(bytes.Repeat([]byte{0x7F}, 160))

	url, err := r.Finish(context.Background(), "CA1")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if url != "https://files.example.com/recordings/CA1.wav" || up.ct != "audio/wav" {
		t.Fatalf("unexpected upload %q %q", url, up.ct)
	}
	if string(up.data[0:4]) != "RIFF" || string(up.data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF header")
	}
	if f := binary.LittleEndian.Uint16(up.data[20:22]); f != formatMuLaw {
		t.Fatalf("expected mu-law format tag, got %d", f)
	}
	if ch := binary.LittleEndian.Uint16(up.data[22:24]); ch != 2 {
		t.Fatalf("expected 2 channels, got %d", ch)
	}
	dataLen := binary.LittleEndian.Uint32(up.data[54:58])
	if string(up.data[50:54]) != "data" || int(dataLen) != 320 {
		t.Fatalf("unexpected data chunk %q len %d", up.data[50:54], dataLen)
	}
}

func TestRecorder_FinishWithoutAudio(t *testing.T) {
	up := &memUploader{}
	r := NewRecorder(up)
	r.Start()
	url, err := r.Finish(context.Background(), "CA1")
	if err != nil || url != "" || up.name != "" {
		t.Fatalf("expected no upload, got %q %v", url, err)
	}
}
