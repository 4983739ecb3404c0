// Package session routes client connections to transcription models.
//
// Each connection moves Connected -> Bound -> Streaming -> Closed. Local
// models run one inference per audio frame; cloud models stream frames to a
// remote recognition whose callbacks are re-emitted in order. All outbound
// traffic goes through an Emitter, which turns sends on a closed connection
// into no-ops.
package session
