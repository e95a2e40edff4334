package capture

import "context"

// Source is an open acquisition source scoped to one slot.
type Source interface {
	Close() error
}

// SourceFactory opens the source for a slot in the given mode.
type SourceFactory interface {
	Open(ctx context.Context, mode Mode, slot string) (Source, error)
}

// SourceFactoryFunc adapts a function to SourceFactory.
type SourceFactoryFunc func(ctx context.Context, mode Mode, slot string) (Source, error)

func (f SourceFactoryFunc) Open(ctx context.Context, mode Mode, slot string) (Source, error) {
	return f(ctx, mode, slot)
}
