// Package errors provides the error classification used across fedgraph.
// Every error is Transient (retry), Invalid (bad input, do not retry) or
// Fatal (stop; for start-up errors the service refuses to run).
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c360/fedgraph/pkg/retry"
)

// ErrorClass tells callers how to react to an error.
type ErrorClass int

const (
	ErrorTransient ErrorClass = iota // retry later
	ErrorInvalid                     // caller's input is wrong
	ErrorFatal                       // stop
)

var classNames = [...]string{
	ErrorTransient: "transient",
	ErrorInvalid:   "invalid",
	ErrorFatal:     "fatal",
}

func (c ErrorClass) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return "unknown"
	}
	return classNames[c]
}

var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")

	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrNoResponders      = errors.New("no responders available")

	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")

	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrKeyNotFound        = errors.New("key not found")

	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// sentinelClasses classifies bare sentinels that reach IsTransient,
// IsInvalid, IsFatal or Classify without a ClassifiedError around them.
var sentinelClasses = []struct {
	err   error
	class ErrorClass
}{
	{ErrConnectionTimeout, ErrorTransient},
	{ErrConnectionLost, ErrorTransient},
	{ErrNoConnection, ErrorTransient},
	{ErrNoResponders, ErrorTransient},
	{ErrStorageUnavailable, ErrorTransient},
	{ErrLookupTimeout, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},
	{context.Canceled, ErrorTransient},
	{ErrInvalidData, ErrorInvalid},
	{ErrParsingFailed, ErrorInvalid},
	{ErrInvalidConfig, ErrorFatal},
	{ErrMissingConfig, ErrorFatal},
	{ErrKeyMismatch, ErrorFatal},
}

// transientHints match messages of foreign errors, typically from drivers,
// that signal a passing condition.
var transientHints = []string{"timeout", "connection", "network", "temporary", "unavailable"}

// ClassifiedError carries an error's class and where it was raised.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// classOf reports the class err declares, through a ClassifiedError, a
// federation error type or a known sentinel. ok is false for anything
// else.
func classOf(err error) (class ErrorClass, ok bool) {
	if err == nil {
		return ErrorTransient, false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}

	var (
		dup        *DuplicateTypeError
		unknown    *UnknownTypeError
		incomplete *IncompleteKeyError
		keyType    *KeyTypeError
		invalid    *InvalidTypeError
	)
	switch {
	case errors.As(err, &dup):
		return ErrorFatal, true
	case errors.As(err, &unknown), errors.As(err, &incomplete),
		errors.As(err, &keyType), errors.As(err, &invalid):
		return ErrorInvalid, true
	}

	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class, true
		}
	}
	return ErrorTransient, false
}

// IsTransient reports whether err is worth retrying. Unclassified errors
// count as transient only when their message looks like a network or
// availability failure.
func IsTransient(err error) bool {
	if class, ok := classOf(err); ok {
		return class == ErrorTransient
	}
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// IsInvalid reports whether err blames the caller's input.
func IsInvalid(err error) bool {
	class, ok := classOf(err)
	return ok && class == ErrorInvalid
}

// IsFatal reports whether err should stop processing.
func IsFatal(err error) bool {
	class, ok := classOf(err)
	return ok && class == ErrorFatal
}

// Classify returns err's class. Errors of unknown origin are transient.
func Classify(err error) ErrorClass {
	class, _ := classOf(err)
	return class
}

// Wrap adds "component.method: action failed: " context to err.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps err as a transient failure of component.method.
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapInvalid wraps err as an invalid-input failure of component.method.
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}

// WrapFatal wraps err as a fatal failure of component.method.
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// RetryConfig is the retry budget for calls to peer subgraphs.
type RetryConfig struct {
	MaxRetries    int // attempts after the first
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig allows two retries within about a second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}
}

// ShouldRetry reports whether a transient err seen on attempt (zero based)
// leaves budget for another try.
func (rc RetryConfig) ShouldRetry(err error, attempt int) bool {
	return err != nil && attempt < rc.MaxRetries && IsTransient(err)
}

// ToRetryConfig converts rc for retry.Do.
func (rc RetryConfig) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  rc.MaxRetries + 1,
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.BackoffFactor,
		AddJitter:    true,
	}
}
