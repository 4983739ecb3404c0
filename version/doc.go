// Package version exposes build information for GET /info.
//
// Values are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/speechgate/version.Version=1.2.0"
//
// Anything left unset is filled from the embedded VCS build settings.
package version
