// Package scale implements the consumer count manager (component E): a
// pure policy object that turns observed queue depth into a target number
// of active subscriptions. It never performs I/O.
package scale

import (
	"math"
	"time"

	"github.com/warrenmq/warren/signal"
)

// Config bundles the scaling policy's tunables.
type Config struct {
	MinConcurrentConsumers   uint
	MaxConcurrentConsumers   uint
	MessagesPerConsumerRatio uint
	AutoScaleInterval        time.Duration
}

// Validate enforces the invariants from the scaling policy's contract:
// 0 <= min <= max, ratio >= 1, interval > 0.
func (c Config) Validate() error {
	if c.MinConcurrentConsumers > c.MaxConcurrentConsumers {
		return signal.ValidationErr("min_concurrent_consumers must be <= max_concurrent_consumers")
	}
	if c.MessagesPerConsumerRatio < 1 {
		return signal.ValidationErr("messages_per_consumer_ratio must be >= 1")
	}
	if c.AutoScaleInterval <= 0 {
		return signal.ValidationErr("auto_scale_interval must be > 0")
	}
	return nil
}

// Manager is the policy contract a Queue Consumer polls on every scaling
// tick. Implementations must not block on I/O.
type Manager interface {
	TargetScale(currentQueueDepth uint64, currentActive uint) uint
}

// Default implements the clamp(ceil(depth/ratio), min, max) policy from
// the core spec.
type Default struct {
	Conf Config
}

// New returns the default Consumer Count Manager for conf. conf must have
// already passed Validate.
func New(conf Config) Default {
	return Default{Conf: conf}
}

func (d Default) TargetScale(currentQueueDepth uint64, _ uint) uint {
	ratio := uint64(d.Conf.MessagesPerConsumerRatio)
	raw := uint(math.Ceil(float64(currentQueueDepth) / float64(ratio)))

	if raw < d.Conf.MinConcurrentConsumers {
		return d.Conf.MinConcurrentConsumers
	}
	if raw > d.Conf.MaxConcurrentConsumers {
		return d.Conf.MaxConcurrentConsumers
	}
	return raw
}

// Fixed is the degenerate variant (min == max): it always returns the
// same target, ignoring observed depth entirely.
type Fixed struct {
	Target uint
}

func (f Fixed) TargetScale(uint64, uint) uint { return f.Target }
