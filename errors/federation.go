package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Federation sentinels. At the reference-resolution boundary all of these
// collapse into a per-entity NotFound.
var (
	// ErrNotFound means the backing lookup has no record for the key.
	ErrNotFound = errors.New("entity not found")

	// ErrLookupTimeout means the backing lookup did not answer within the
	// caller-supplied deadline.
	ErrLookupTimeout = errors.New("entity lookup deadline exceeded")

	// ErrKeyMismatch means the keys advertised in a composed schema differ
	// from the keys the resolver accepts.
	ErrKeyMismatch = errors.New("advertised keys do not match resolvable keys")
)

// UnknownTypeError is returned when a type name is not registered.
type UnknownTypeError struct {
	TypeName string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown entity type %q", e.TypeName)
}

// DuplicateTypeError is returned when a type name is registered twice in
// one service. It is a start-up error.
type DuplicateTypeError struct {
	TypeName string
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("entity type %q is already registered", e.TypeName)
}

// InvalidTypeError is returned when an entity type declaration breaks a
// registry invariant.
type InvalidTypeError struct {
	TypeName string
	Reason   string
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("entity type %q: %s", e.TypeName, e.Reason)
}

// IncompleteKeyError is returned when a representation's key does not carry
// exactly the key fields of its type.
type IncompleteKeyError struct {
	TypeName string
	Missing  []string
	Extra    []string
}

func (e *IncompleteKeyError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Extra, ", "))
	}
	return fmt.Sprintf("key for %q is incomplete: %s", e.TypeName, strings.Join(parts, "; "))
}

// KeyTypeError is returned when a key field value is not compatible with the
// field's declared scalar type.
type KeyTypeError struct {
	TypeName string
	Field    string
	Want     string
	Got      any
}

func (e *KeyTypeError) Error() string {
	return fmt.Sprintf("key field %s.%s: want %s, got %T", e.TypeName, e.Field, e.Want, e.Got)
}

// IsNotFound reports whether err resolves to a NotFound marker at the
// protocol boundary.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrLookupTimeout) {
		return true
	}
	var (
		unknown    *UnknownTypeError
		incomplete *IncompleteKeyError
		keyType    *KeyTypeError
	)
	return errors.As(err, &unknown) || errors.As(err, &incomplete) || errors.As(err, &keyType)
}

// Reason returns a short, stable label for an entity-level failure. It is
// used as a metric label and in GraphQL error extensions.
func Reason(err error) string {
	var (
		unknown    *UnknownTypeError
		incomplete *IncompleteKeyError
		keyType    *KeyTypeError
	)
	switch {
	case err == nil:
		return "resolved"
	case errors.As(err, &unknown):
		return "unknown_type"
	case errors.As(err, &incomplete):
		return "incomplete_key"
	case errors.As(err, &keyType):
		return "key_type"
	case errors.Is(err, ErrLookupTimeout):
		return "timeout"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidData):
		return "malformed"
	default:
		return "lookup_error"
	}
}
