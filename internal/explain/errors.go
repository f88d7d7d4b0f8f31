package explain

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrEmptyInput is returned when there is no code to explain. No request
	// is made in that case.
	ErrEmptyInput = errors.New("no code to explain")

	// ErrMalformedResponse matches every *MalformedResponseError.
	ErrMalformedResponse = errors.New("malformed explanation response")
)

// MalformedResponseError describes a model answer that could not be turned
// into tokens.
type MalformedResponseError struct {
	Reason  string // What was wrong with the payload
	Content string // The raw model output, possibly truncated
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedResponse, e.Reason)
}

// Is reports whether target is ErrMalformedResponse.
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

const maxErrorContent = 256

func malformed(content, format string, args ...any) *MalformedResponseError {
	if len(content) > maxErrorContent {
		cut := maxErrorContent
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut] + "..."
	}
	return &MalformedResponseError{
		Reason:  fmt.Sprintf(format, args...),
		Content: content,
	}
}
