// Package middleware holds the gateway's HTTP middleware. Handler-level
// middleware (CORS, BodySizeLimit) wraps the whole server; Gin middleware
// (Recovery, RequestID, RequestLogger, Auth, RateLimit) is installed on the
// engine or on route groups.
package middleware
