// Package bootstrap runs the speechgate process lifecycle: it validates the
// typed config, starts registered components in order, blocks until a
// shutdown signal and stops everything in reverse order within a deadline.
package bootstrap
