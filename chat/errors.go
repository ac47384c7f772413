package chat

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/aschepis/backscratcher/toolchat/mcp"
)

// ErrorKind classifies a turn failure.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"
	KindConnection    ErrorKind = "connection"
	KindNotConnected  ErrorKind = "not_connected"
	KindProvider      ErrorKind = "provider"
	KindToolExecution ErrorKind = "tool_execution"
	KindPersistence   ErrorKind = "persistence"
)

// Error is a classified turn failure. Message is what callers see.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports a request that can never succeed as sent.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewConfigurationError reports missing server-side setup such as a provider key.
func NewConfigurationError(message string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: message, Err: err}
}

// NewProviderError wraps a failure talking to an LLM provider.
func NewProviderError(provider string, err error) *Error {
	return &Error{
		Kind:    KindProvider,
		Message: fmt.Sprintf("%s request failed: %v", llm.DisplayName(provider), err),
		Err:     err,
	}
}

// KindOf classifies err. Errors from the mcp and llm packages are mapped to
// their kind; anything else is reported as a provider failure.
func KindOf(err error) ErrorKind {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Kind
	}
	switch {
	case errors.Is(err, mcp.ErrNotConnected):
		return KindNotConnected
	case mcp.IsConnectionError(err):
		return KindConnection
	case mcp.IsToolExecutionError(err):
		return KindToolExecution
	}
	return KindProvider
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}

// HTTPStatus maps a turn failure to the status code returned to callers:
// 400 for validation failures, 500 for everything else.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if KindOf(err) == KindValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
