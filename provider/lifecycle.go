package provider

import "context"

// Initializable backends are set up once before the first model loads.
type Initializable interface {
	Init(ctx context.Context) error
}

// Closeable backends hold process-wide resources such as pooled
// connections, released on shutdown after every model is gone.
type Closeable interface {
	Close(ctx context.Context) error
}
