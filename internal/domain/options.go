package domain

import "time"

const defaultBackgroundTimeout = 10 * time.Second

type options struct {
	intn              IntN
	backgroundTimeout time.Duration
}

// Option configures a Discovery or LikeSynchronizer.
type Option func(*options)

// WithShuffle sets the random source used to order the discovery queue.
func WithShuffle(intn IntN) Option {
	return func(o *options) { o.intn = intn }
}

// WithBackgroundTimeout bounds fire-and-forget remote calls such as the
// unlike issued by a dismiss.
func WithBackgroundTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.backgroundTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{backgroundTimeout: defaultBackgroundTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
