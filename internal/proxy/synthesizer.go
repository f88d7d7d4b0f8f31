package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"
)

// ErrEmptyText is returned by synthesizers asked to speak nothing.
var ErrEmptyText = errors.New("text cannot be empty")

// Synthesizer turns text into an MP3 stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// Limited allows at most requestsPerMinute calls to s. Callers over the
// limit wait for their turn or for ctx to end.
func Limited(s Synthesizer, requestsPerMinute int) Synthesizer {
	if requestsPerMinute <= 0 {
		return s
	}

	return &limitedSynthesizer{
		Synthesizer: s,
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
	}
}

type limitedSynthesizer struct {
	Synthesizer
	limiter *rate.Limiter
}

func (l *limitedSynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return l.Synthesizer.Synthesize(ctx, text)
}
