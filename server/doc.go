// Package server provides the gateway's HTTP server: Gin behind an h2c
// handler, the standard middleware stack, /health and /info, and the
// response helpers the admin handlers share.
package server
