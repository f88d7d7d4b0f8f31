// Package audio decodes MP3 clips and plays them on the sound card using
// the oto/v3 library. Backend adapts it to the playback controller.
package audio
