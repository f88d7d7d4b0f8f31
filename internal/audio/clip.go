package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

const (
	// Channels is the channel count of every decoded clip.
	Channels = 2
	// BytesPerSample is the size of one 16-bit sample.
	BytesPerSample = 2

	frameSize = Channels * BytesPerSample
)

// ErrDecode is returned when a clip is not playable MP3.
var ErrDecode = errors.New("unable to decode clip")

// Clip is decoded audio: interleaved signed 16-bit little endian stereo PCM.
type Clip struct {
	PCM        []byte
	SampleRate int
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	frames := len(c.PCM) / frameSize
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Decode decodes an MP3 clip.
func Decode(data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(pcm) < frameSize {
		return nil, fmt.Errorf("%w: no audio frames", ErrDecode)
	}

	return &Clip{
		PCM:        pcm[:len(pcm)-len(pcm)%frameSize],
		SampleRate: d.SampleRate(),
	}, nil
}

// resample converts stereo PCM between sample rates by linear interpolation.
// The output context runs at one rate, clips may not.
func resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}

	in := len(pcm) / frameSize
	if in == 0 {
		return nil
	}
	out := int(int64(in) * int64(to) / int64(from))
	buf := make([]byte, out*frameSize)

	sample := func(frame, ch int) float64 {
		if frame >= in {
			frame = in - 1
		}
		off := frame*frameSize + ch*BytesPerSample
		return float64(int16(binary.LittleEndian.Uint16(pcm[off:])))
	}

	ratio := float64(from) / float64(to)
	for i := 0; i < out; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		frac := pos - float64(j)
		for ch := 0; ch < Channels; ch++ {
			v := sample(j, ch)*(1-frac) + sample(j+1, ch)*frac
			off := i*frameSize + ch*BytesPerSample
			binary.LittleEndian.PutUint16(buf[off:], uint16(int16(math.Round(v))))
		}
	}
	return buf
}
