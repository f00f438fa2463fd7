package graphql

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/c360/fedgraph/errors"
)

// Error codes set in extensions.code.
const (
	CodeValidationFailed      = "GRAPHQL_VALIDATION_FAILED"
	CodeBadUserInput          = "BAD_USER_INPUT"
	CodeOperationNotSupported = "OPERATION_NOT_SUPPORTED"
	CodeEntityNotFound        = "ENTITY_NOT_FOUND"
	CodeExternalField         = "EXTERNAL_FIELD"
	CodeTimeout               = "TIMEOUT"
	CodeServiceUnavailable    = "SERVICE_UNAVAILABLE"
	CodeInternal              = "INTERNAL_SERVER_ERROR"
)

// newError returns a field error at path with code.
func newError(path ast.Path, code, format string, args ...any) *gqlerror.Error {
	return &gqlerror.Error{
		Message:    fmt.Sprintf(format, args...),
		Path:       path,
		Extensions: map[string]any{"code": code},
	}
}

// withCode sets code on every error in list that has none.
func withCode(list gqlerror.List, code string) gqlerror.List {
	for _, err := range list {
		if err.Extensions == nil {
			err.Extensions = map[string]any{}
		}
		if _, ok := err.Extensions["code"]; !ok {
			err.Extensions["code"] = code
		}
	}
	return list
}

// codeOf classifies a resolver or lookup error.
func codeOf(err error) string {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, errors.ErrLookupTimeout),
		stderrors.Is(err, errors.ErrConnectionTimeout):
		return CodeTimeout
	case errors.IsNotFound(err):
		return CodeEntityNotFound
	case errors.IsInvalid(err):
		return CodeBadUserInput
	case errors.IsTransient(err):
		return CodeServiceUnavailable
	default:
		return CodeInternal
	}
}

// mapError converts an operation error to a field error at path. Internal
// errors do not leak their message.
func mapError(err error, path ast.Path) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if stderrors.As(err, &gqlErr) {
		if gqlErr.Path == nil {
			gqlErr.Path = path
		}
		return gqlErr
	}

	code := codeOf(err)
	switch code {
	case CodeTimeout:
		return newError(path, code, "Query timeout - please try again")
	case CodeServiceUnavailable:
		e := newError(path, code, "Temporary error: %s", err.Error())
		e.Extensions["retryable"] = true
		return e
	case CodeInternal:
		return newError(path, code, "Internal server error")
	default:
		return newError(path, code, "%s", err.Error())
	}
}

// notFoundError reports an entity that did not resolve.
func notFoundError(path ast.Path, typeName string, cause error) *gqlerror.Error {
	if typeName == "" {
		typeName = "representation"
	}
	code := CodeEntityNotFound
	if codeOf(cause) == CodeTimeout {
		code = CodeTimeout
	}
	e := newError(path, code, "%s could not be resolved", typeName)
	e.Extensions["typename"] = typeName
	e.Extensions["reason"] = errors.Reason(cause)
	return e
}
