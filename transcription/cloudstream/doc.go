// Package cloudstream streams session audio to a cloud speech service over
// its websocket recognition protocol.
//
// Each client session gets its own Recognition. Hypotheses arrive as
// partial events and recognized phrases as final events, both delivered on
// the connection's reader goroutine. Dials go through a circuit breaker so
// an unreachable service fails sessions fast instead of stalling them.
package cloudstream
