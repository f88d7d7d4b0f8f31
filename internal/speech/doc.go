// Package speech talks to the speech proxy: it builds clip URLs for
// explanation text and downloads the MP3 clips behind them.
package speech
