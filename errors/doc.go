// Package errors provides the unified error type used across speechgate.
//
// Every failure that reaches an administrative caller or a streaming client
// is expressed as an *AppError carrying a machine-readable code, an HTTP
// status and a retryable flag. Provider adapters return plain sentinel
// errors; the registry and session boundaries classify them into AppErrors.
package errors
