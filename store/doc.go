// Package store persists model metadata and archived transcripts.
//
// GormStore writes the asr_models and asr_records tables through the
// database package; Memory keeps the same data in process. Both satisfy
// Store. Writes are best-effort from the registry's point of view: callers
// log failures and keep their in-memory state.
package store
