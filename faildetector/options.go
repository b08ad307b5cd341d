package faildetector

import (
	"time"

	"github.com/go-kit/log"
)

type Option func(*Detector)

// WithProbeTimeout sets how long to wait for an ack before the probed member
// becomes suspect.
func WithProbeTimeout(t time.Duration) Option {
	return func(d *Detector) {
		d.probeTimeout = t
	}
}

// WithSuspicionTimeout sets how long a member may stay suspect before it is
// declared dead.
func WithSuspicionTimeout(t time.Duration) Option {
	return func(d *Detector) {
		d.suspicionTimeout = t
	}
}

// WithDeadRetention sets how long dead members are kept as tombstones.
func WithDeadRetention(t time.Duration) Option {
	return func(d *Detector) {
		d.deadRetention = t
	}
}

func WithLogger(logger log.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}
