package intake

import "context"

// Resolver turns a transport-hosted photo into a durable, externally
// hosted image URL.
type Resolver interface {
	// Resolve takes a Telegram file ID and returns a durable URL on the
	// hosting service. Any failure aborts the intake; callers abandon the
	// current wizard session rather than retry silently.
	Resolve(ctx context.Context, fileID string) (string, error)
}

// FileLinker resolves a transport file reference to a transient download
// URL via the transport's file-metadata API. Implemented by the bot's
// Telegram client; faked in tests.
type FileLinker interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}
