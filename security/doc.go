// Package security builds client TLS settings for the gateway's upstream
// connections: the inference sidecar and the cloud recognizer. Both may sit
// behind a private CA or require a client certificate.
package security
