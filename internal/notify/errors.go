package notify

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("invalid notification request")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrNoSubscription     = errors.New("no active subscription for subscriber")
	ErrNoAdapter          = errors.New("no adapter for channel")
	ErrAllChannelsFailed  = errors.New("all channels failed")
	ErrDuplicateRequest   = errors.New("duplicate request within dedup window")
	ErrCircuitOpen        = errors.New("channel circuit open")
)

// ErrorClass splits channel errors into retryable and terminal.
type ErrorClass int

const (
	ClassTransient ErrorClass = iota // timeout, provider 5xx/429: retry may help
	ClassPermanent                   // destination gone or malformed: never retry
)

// ChannelError is the classified error every adapter must return. The
// transient/permanent split is what lets the failover coordinator choose
// between "retry this channel" and "invalidate and move on".
type ChannelError struct {
	Class ErrorClass
	Code  string // provider-specific code, e.g. "410" or "throttled"
	Err   error
}

func (e *ChannelError) Error() string {
	class := "transient"
	if e.Class == ClassPermanent {
		class = "permanent"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s channel error (%s): %v", class, e.Code, e.Err)
	}
	return fmt.Sprintf("%s channel error: %v", class, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable channel error.
func Transient(code string, err error) *ChannelError {
	return &ChannelError{Class: ClassTransient, Code: code, Err: err}
}

// Permanent wraps err as a non-retryable channel error.
func Permanent(code string, err error) *ChannelError {
	return &ChannelError{Class: ClassPermanent, Code: code, Err: err}
}

// IsPermanent reports whether err carries a permanent classification.
// Unclassified errors count as transient so a sloppy adapter can only cause
// extra retries, never a wrongly burned destination.
func IsPermanent(err error) bool {
	var ce *ChannelError
	return errors.As(err, &ce) && ce.Class == ClassPermanent
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool { return err != nil && !IsPermanent(err) }
