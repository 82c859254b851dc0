package analysis

import "context"

// Stager keeps the transient copy of an upload for the duration of one request.
type Stager interface {
	Stage(ctx context.Context, name, contentType string, data []byte) (key string, err error)
	Load(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
}

// SectionResolver recovers one section from raw model text. It is the I/O bound
// last step of the parse cascade.
type SectionResolver interface {
	ResolveSection(ctx context.Context, section Section, raw string) (string, error)
}
