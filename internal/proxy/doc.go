// Package proxy serves synthesized speech over HTTP. Clients pass the text
// to speak to /aiVoice and receive an MP3 stream.
package proxy
