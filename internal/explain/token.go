package explain

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Token is one explained piece of code. Index is the token's position in
// narration order.
type Token struct {
	Index       int    `json:"index"`
	Token       string `json:"token"`
	Explanation string `json:"explanation"`
}

// ParseTokens turns the model's raw answer into ordered tokens.
//
// Key order follows the document. A key that appears more than once keeps
// the position of its first occurrence and the value of its last one.
func ParseTokens(content string) ([]Token, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, malformed(content, "empty content")
	}
	if !gjson.Valid(content) {
		return nil, malformed(content, "content is not valid JSON")
	}

	root := gjson.Parse(content)
	if !root.IsObject() {
		return nil, malformed(content, "expected a JSON object, got %s", root.Type)
	}

	var (
		tokens   []Token
		position = make(map[string]int)
		bad      *MalformedResponseError
	)

	root.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.String {
			bad = malformed(content, "value of %q is %s, not a string", key.String(), value.Type)
			return false
		}

		name := key.String()
		if i, ok := position[name]; ok {
			tokens[i].Explanation = value.String()
			return true
		}

		position[name] = len(tokens)
		tokens = append(tokens, Token{
			Index:       len(tokens),
			Token:       name,
			Explanation: value.String(),
		})
		return true
	})

	if bad != nil {
		return nil, bad
	}
	// An empty object is a valid answer with nothing to narrate.
	if tokens == nil {
		tokens = []Token{}
	}

	return tokens, nil
}
