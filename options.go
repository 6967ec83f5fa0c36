package shuffle

import (
	"time"

	"go.uber.org/zap"
)

const (
	// defaultBufferCapacity is the byte budget a receiving collection may
	// accumulate before a flush is forced.
	defaultBufferCapacity = 64 << 20

	// defaultFlushTimeout bounds every blocking wait on flush completion.
	defaultFlushTimeout = 5 * time.Minute

	// defaultMergeFanIn is the target number of output files when spill
	// files are consolidated at finalize time.
	defaultMergeFanIn = 1
)

// Option is a functional option for configuring a Partition.
type Option func(*config)

type config struct {
	bufferCapacity int64
	flushTimeout   time.Duration
	mergeFanIn     int
	subKV          bool
	log            *zap.SugaredLogger
}

func defaultConfig() *config {
	return &config{
		bufferCapacity: defaultBufferCapacity,
		flushTimeout:   defaultFlushTimeout,
		mergeFanIn:     defaultMergeFanIn,
		log:            zap.NewNop().Sugar(),
	}
}

// WithBufferCapacity sets the byte budget an in-memory collection may reach
// before the partition swaps roles and flushes it to a spill file.
func WithBufferCapacity(n int64) Option {
	return func(c *config) {
		c.bufferCapacity = n
	}
}

// WithFlushTimeout bounds how long AddBuffer and Iterator wait for an
// in-flight flush. Exceeding it is fatal to the partition.
func WithFlushTimeout(d time.Duration) Option {
	return func(c *config) {
		c.flushTimeout = d
	}
}

// WithMergeFanIn sets the target number of output files produced when
// spill files are consolidated at finalize time.
//
// The consolidation step currently overrides this to 1 because the sorting
// engine cannot iterate sub-key entries across multiple files; the knob is
// kept so the override can be lifted once the engine supports it.
func WithMergeFanIn(n int) Option {
	return func(c *config) {
		c.mergeFanIn = n
	}
}

// WithSubKV marks the partition's records as carrying sub-key entries
// (edges grouped under a vertex key). The flag is passed through to every
// sort, merge and iterate call on the engine.
func WithSubKV() Option {
	return func(c *config) {
		c.subKV = true
	}
}

// WithLogger sets the logger used for flush failures and lifecycle events.
// Defaults to a no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *config) {
		c.log = log
	}
}
