package signal

import "fmt"

var (
	// ErrBrokerUnreachable is returned by a Queue Consumer's Start when the
	// connection pool cannot obtain a healthy connection after bounded retry.
	ErrBrokerUnreachable = fmt.Errorf("warren: broker unreachable")

	// ErrPoolDisposed is returned by any connection pool operation once the
	// pool has been disposed. Terminal.
	ErrPoolDisposed = fmt.Errorf("warren: connection pool disposed")

	// ErrFeedbackAlreadySent is raised when a FeedbackSender's Ack or Nack
	// is called a second time. Programmer error.
	ErrFeedbackAlreadySent = fmt.Errorf("warren: feedback already sent")
)

// ValidationError reports an invalid configuration field, matching the
// `cerr.ValidationErr` idiom used throughout the connector layer this
// package descends from.
type ValidationError string

func (e ValidationError) Error() string { return "warren: invalid config: " + string(e) }

func ValidationErr(msg string) error { return ValidationError(msg) }
