package speech

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// TextParam is the query parameter carrying the text to vocalize.
const TextParam = "text"

// ResolveAudioURL returns the clip URL for text on the proxy endpoint base.
// The text is percent-encoded with spaces as %20. Query parameters already
// present on base are kept.
func ResolveAudioURL(text, base string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid speech url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, errors.New("invalid speech url: must be absolute")
	}

	param := TextParam + "=" + encodeComponent(text)
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery += "&" + param
	}

	return u, nil
}

// componentUnescaper undoes the QueryEscape output that encodeURIComponent
// leaves alone. QueryEscape turns a literal '+' into %2B, so any '+' left is
// a space.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeComponent escapes s the way browsers escape a URI component.
func encodeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
