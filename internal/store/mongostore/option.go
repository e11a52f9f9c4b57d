package mongostore

import (
	"time"

	"go.uber.org/zap"
)

type options struct {
	database string
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures Store.
type Option func(*options)

func WithDatabase(name string) Option {
	return func(o *options) { o.database = name }
}

// WithTimeout bounds every single database round trip.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts ...Option) *options {
	o := &options{
		database: "chat",
		timeout:  5 * time.Second,
		logger:   zap.NewNop(),
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}
