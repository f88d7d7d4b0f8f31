// Package explain asks a chat-completion model to explain a piece of code
// token by token. The model answers with a flat JSON object whose keys are
// code tokens and whose values are short, speakable explanations; the
// package turns that object into an ordered slice of tokens.
package explain
