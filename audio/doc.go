// Package audio converts client audio frames to the mono float32 PCM the
// transcription backends consume.
package audio
