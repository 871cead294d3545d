// Package signal carries the structured error vocabulary a processing
// callback uses to direct a worker's retry/requeue/discard decision.
package signal

import "errors"

// Kind is the closed set of queuing signals a callback error can carry.
type Kind string

const (
	Retry   Kind = "retry"
	Requeue Kind = "requeue"
	Discard Kind = "discard"
)

// Strategy is the closed set of default processing strategies a worker
// falls back to when a callback error carries no signal.
type Strategy string

const (
	StrategyRetry   Strategy = "retry"
	StrategyRequeue Strategy = "requeue"
	StrategyDiscard Strategy = "discard"
	StrategyNone    Strategy = "none"
)

// RetrySignal wraps a callback error to request another invocation
// attempt, subject to the configured retry count.
type RetrySignal struct {
	Err error
}

func (e *RetrySignal) Error() string { return "retry: " + e.Err.Error() }
func (e *RetrySignal) Unwrap() error { return e.Err }
func (e *RetrySignal) Kind() Kind    { return Retry }

// RequeueSignal wraps a callback error to request the message be
// returned to the broker for later redelivery, bypassing further retries.
type RequeueSignal struct {
	Err error
}

func (e *RequeueSignal) Error() string { return "requeue: " + e.Err.Error() }
func (e *RequeueSignal) Unwrap() error { return e.Err }
func (e *RequeueSignal) Kind() Kind    { return Requeue }

// DiscardSignal wraps a callback error to request the message be
// permanently rejected without requeue.
type DiscardSignal struct {
	Err error
}

func (e *DiscardSignal) Error() string { return "discard: " + e.Err.Error() }
func (e *DiscardSignal) Unwrap() error { return e.Err }
func (e *DiscardSignal) Kind() Kind    { return Discard }

type kinder interface{ Kind() Kind }

// Classify inspects err and, if not nil, its immediate cause (exactly two
// levels, per the core's classification contract) for a signal kind. The
// zero Kind is returned when neither level carries one. Deeper causes are
// deliberately not consulted: the contract is two levels, not a full
// errors.As traversal.
func Classify(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}

	if k, ok := err.(kinder); ok {
		return k.Kind(), true
	}

	cause := errors.Unwrap(err)
	if cause == nil {
		return "", false
	}
	if k, ok := cause.(kinder); ok {
		return k.Kind(), true
	}

	return "", false
}
