// Package component defines the lifecycle contract for the gateway's
// long-lived parts (database, model registry, session router, HTTP server)
// and a registry that starts them in order and stops them in reverse.
package component
