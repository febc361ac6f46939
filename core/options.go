package core

import (
	"time"

	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/caskdb/internal/keydir"
)

type options struct {
	logger            *zap.Logger
	observer          Observer
	keydirKind        string
	maxDatafileSize   int64
	valueCacheEntries int
	lockDirectory     bool
	clock             func() time.Time
}

func defaultOptions() options {
	return options{
		logger:        zap.NewNop(),
		observer:      NopObserver{},
		keydirKind:    keydir.KindMap,
		lockDirectory: true,
		clock:         time.Now,
	}
}

// Option configures Open.
type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithKeydir selects the keydir implementation by name, see keydir.Kinds.
func WithKeydir(kind string) Option {
	return func(o *options) {
		o.keydirKind = kind
	}
}

// WithMaxDatafileSize rotates the active file once an append would take it
// past n bytes. Zero or less disables rotation. A single record larger than n
// still gets written, alone in its own file.
func WithMaxDatafileSize(n int64) Option {
	return func(o *options) {
		o.maxDatafileSize = n
	}
}

// WithValueCache keeps up to n recently read values in memory.
func WithValueCache(n int) Option {
	return func(o *options) {
		o.valueCacheEntries = n
	}
}

// WithoutDirectoryLock skips the LOCK file. The caller is then responsible for
// never opening the same directory twice.
func WithoutDirectoryLock() Option {
	return func(o *options) {
		o.lockDirectory = false
	}
}

// WithClock replaces time.Now for record timestamps and data file ids.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}
