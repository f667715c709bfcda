package refcache

import (
	"log/slog"

	"github.com/dmitrymomot/weakref/pkg/reference"
)

const (
	defaultShards        = 16
	defaultPurgeInterval = 64
)

// Option configures a Cache.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	soft          reference.SoftPolicy
	shards        int
	purgeInterval uint64
}

func defaultOptions() *options {
	return &options{
		logger:        slog.New(slog.DiscardHandler),
		shards:        defaultShards,
		purgeInterval: defaultPurgeInterval,
	}
}

// WithLogger sets the logger used for purge and supplier diagnostics.
// Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithShards sets the number of lock shards, rounded up to a power of two.
// Default: 16.
func WithShards(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shards = n
		}
	}
}

// WithPurgeInterval sets how many operations pass between opportunistic
// purges of reclaimed entries. Default: 64.
func WithPurgeInterval(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.purgeInterval = uint64(n)
		}
	}
}

// WithSoftPolicy sets when soft pins are released. Only used by Soft caches.
// Default: reference.SoftPolicy{} (one second per free MiB).
func WithSoftPolicy(p reference.SoftPolicy) Option {
	return func(o *options) {
		o.soft = p
	}
}

func shardCount(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}
