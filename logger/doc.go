// Package logger provides structured logging for speechgate using zerolog.
//
// Loggers carry a service tag and optional component/session/model fields.
// Fields are passed as maps so call sites stay compact:
//
//	log := logger.WithComponent("registry")
//	log.Info("model loaded", logger.Fields("model_id", id, "latency_ms", 12.5))
package logger
