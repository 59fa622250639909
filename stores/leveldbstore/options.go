package leveldbstore

import (
	"go.uber.org/zap"
)

// Options configure a Store.
type Options struct {
	// Logger receives debug and corruption reports. Defaults to a no-op
	// logger.
	Logger *zap.SugaredLogger

	// SyncWrites forces every node write to disk before returning. Root
	// pointer writes are always synced.
	SyncWrites bool
}

// Option is a generic option type. Options type assert their target
// record and are ignored when the assertion fails, so option lists can
// be shared across store implementations.
type Option func(any)

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	options := Options{
		Logger:     zap.NewNop().Sugar(),
		SyncWrites: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(opts any) {
		if o, ok := opts.(*Options); ok {
			o.Logger = logger
		}
	}
}

// WithSyncWrites controls per-write syncing of node records.
func WithSyncWrites(sync bool) Option {
	return func(opts any) {
		if o, ok := opts.(*Options); ok {
			o.SyncWrites = sync
		}
	}
}
