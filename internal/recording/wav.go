package recording

import (
	"encoding/binary"
	"io"
)

const (
	sampleRate   = 8000
	formatMuLaw  = 7
	bitsPerMuLaw = 8

	// muLawSilence is the mu-law code for a zero sample.
	muLawSilence = 0xFF
)

// WriteMuLawWAV writes interleaved mu-law samples as a WAV file.
// Non-PCM formats carry a cbSize field and a fact chunk.
func WriteMuLawWAV(w io.Writer, samples []byte, channels int) error {
	blockAlign := channels * bitsPerMuLaw / 8
	frames := len(samples) / blockAlign
	data := samples[:frames*blockAlign]
	pad := len(data) % 2

	riffSize := 4 + (8 + 18) + (8 + 4) + (8 + len(data) + pad)

	hdr := []any{
		[4]byte{'R', 'I', 'F', 'F'}, uint32(riffSize), [4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '}, uint32(18),
		uint16(formatMuLaw), uint16(channels), uint32(sampleRate),
		uint32(sampleRate * blockAlign), uint16(blockAlign), uint16(bitsPerMuLaw), uint16(0),
		[4]byte{'f', 'a', 'c', 't'}, uint32(4), uint32(frames),
		[4]byte{'d', 'a', 't', 'a'}, uint32(len(data)),
	}
	for _, v := range hdr {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if pad == 1 {
		_, err := w.Write([]byte{0})
		return err
	}
	return nil
}
