package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			if got := test.class.String(); got != test.expected {
				t.Errorf("expected %s, got %s", test.expected, got)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"no responders", ErrNoResponders, true},
		{"lookup timeout", ErrLookupTimeout, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"invalid data", ErrInvalidData, false},
		{"network error", fmt.Errorf("network connection failed"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
		{"invalid wrapping a timeout", WrapInvalid(ErrConnectionTimeout, "Loader", "Load", "parse"), false},
		{"plain error", errors.New("boom"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsTransient(test.err); got != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, got, test.err)
			}
		})
	}
}

func TestClassify_FederationErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"duplicate type is fatal", &DuplicateTypeError{TypeName: "Market"}, ErrorFatal},
		{"key mismatch is fatal", fmt.Errorf("verify: %w", ErrKeyMismatch), ErrorFatal},
		{"unknown type is invalid", &UnknownTypeError{TypeName: "Ghost"}, ErrorInvalid},
		{"incomplete key is invalid", &IncompleteKeyError{TypeName: "Market", Missing: []string{"id"}}, ErrorInvalid},
		{"key type is invalid", &KeyTypeError{TypeName: "Market", Field: "id", Want: "ID", Got: true}, ErrorInvalid},
		{"lookup timeout is transient", ErrLookupTimeout, ErrorTransient},
		{"wrapped fatal", WrapFatal(errors.New("boom"), "Registry", "Build", "register"), ErrorFatal},
		{"missing config is fatal", ErrMissingConfig, ErrorFatal},
		{"parse failure is invalid", fmt.Errorf("decode: %w", ErrParsingFailed), ErrorInvalid},
		{"unknown origin is transient", errors.New("boom"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("expected %s, got %s for error: %v", test.expected, got, test.err)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if IsNotFound(nil) {
		t.Error("nil must not be NotFound")
	}
	for _, err := range []error{
		ErrNotFound,
		ErrLookupTimeout,
		fmt.Errorf("store: %w", ErrNotFound),
		&UnknownTypeError{TypeName: "Ghost"},
		&IncompleteKeyError{TypeName: "Market"},
		&KeyTypeError{TypeName: "Market", Field: "id"},
	} {
		if !IsNotFound(err) {
			t.Errorf("expected NotFound for %v", err)
		}
	}
	if IsNotFound(ErrConnectionLost) {
		t.Error("connection errors are not NotFound markers")
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "resolved"},
		{&UnknownTypeError{TypeName: "Ghost"}, "unknown_type"},
		{&IncompleteKeyError{TypeName: "Market"}, "incomplete_key"},
		{&KeyTypeError{TypeName: "Market"}, "key_type"},
		{fmt.Errorf("lookup: %w", ErrLookupTimeout), "timeout"},
		{ErrNotFound, "not_found"},
		{fmt.Errorf("%w: not an object", ErrInvalidData), "malformed"},
		{errors.New("redis down"), "lookup_error"},
	}
	for _, test := range tests {
		if got := Reason(test.err); got != test.want {
			t.Errorf("Reason(%v) = %s, want %s", test.err, got, test.want)
		}
	}
}

func TestIncompleteKeyError_Message(t *testing.T) {
	err := &IncompleteKeyError{TypeName: "Market", Missing: []string{"id"}, Extra: []string{"name"}}
	want := `key for "Market" is incomplete: missing id; unexpected name`
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("disk")
	err := WrapTransient(base, "Store", "Get", "read record")
	if err.Error() != "Store.Get: read record failed: disk" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error must unwrap to its cause")
	}
	if Wrap(nil, "a", "b", "c") != nil {
		t.Error("wrapping nil must return nil")
	}
}

func TestRetryConfig(t *testing.T) {
	rc := DefaultRetryConfig()
	if !rc.ShouldRetry(ErrNoResponders, 0) {
		t.Error("transient errors should be retried")
	}
	if rc.ShouldRetry(&UnknownTypeError{TypeName: "x"}, 0) {
		t.Error("invalid errors should not be retried")
	}
	if rc.ShouldRetry(ErrNoResponders, rc.MaxRetries) {
		t.Error("retries must stop at MaxRetries")
	}
	if got := rc.ToRetryConfig().MaxAttempts; got != rc.MaxRetries+1 {
		t.Errorf("MaxAttempts = %d, want %d", got, rc.MaxRetries+1)
	}
}
