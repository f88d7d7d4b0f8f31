package proxy

import (
	"bytes"
	"context"
	"io"
	"unicode/utf8"
)

// Silent MPEG-1 layer III frame: 128kbps, 44.1kHz, mono, no CRC.
var silentFrameHeader = []byte{0xFF, 0xFB, 0x90, 0xC4}

const silentFrameSize = 417

// MockSynthesizer answers every request with silence roughly as long as
// reading the text aloud would take. It needs no credentials.
type MockSynthesizer struct {
	// FramesPerRune sets the clip length, about 26ms per frame.
	FramesPerRune int
}

// Synthesize returns silent MP3 frames sized to text.
func (m MockSynthesizer) Synthesize(_ context.Context, text string) (io.ReadCloser, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	per := m.FramesPerRune
	if per <= 0 {
		per = 2
	}
	return io.NopCloser(bytes.NewReader(SilentMP3(per * utf8.RuneCountInString(text)))), nil
}

// SilentMP3 returns n frames of silent MP3 audio.
func SilentMP3(n int) []byte {
	out := make([]byte, n*silentFrameSize)
	for i := 0; i < n; i++ {
		copy(out[i*silentFrameSize:], silentFrameHeader)
	}
	return out
}

var _ Synthesizer = MockSynthesizer{}
