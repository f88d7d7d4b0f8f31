// Package playback sequences spoken explanations. A Controller owns one
// audio slot per token and plays them either one after another (a
// sequence started with Start) or one at a time when a label is selected.
//
// All controller logic runs on a single goroutine. Public methods, media
// signals and timers post work to that goroutine, so state is never touched
// concurrently. Observers follow along through the Events channel.
package playback
