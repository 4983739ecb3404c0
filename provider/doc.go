// Package provider is a small generic registry for swappable backends,
// keyed case-insensitively by name. Backends may implement Initializable
// and Closeable to join the registry's InitAll and CloseAll passes.
package provider
