// Package model owns registered transcription models and their lifecycle:
//
//	Registered -> Loading -> Ready | LoadFailed
//	Ready -> Unloaded -> Loading ...
//
// A model is Ready only after its adapter opened it and one latency probe
// succeeded; Ready, a live instance and a recorded latency always go
// together. Loads are deduplicated per model, transitions on one model
// never block another, and an instance is closed only after every
// in-flight inference on it has returned.
//
// Store writes are best-effort. A failed write is logged and the in-memory
// state stays authoritative.
package model
