package mcp

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when a tool call is made on a session that has
// no live connection.
var ErrNotConnected = errors.New("not connected to MCP server")

// ConnectionError reports a failure to establish a session with a tool server.
type ConnectionError struct {
	ServerURL string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to MCP server %s: %v", e.ServerURL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ToolExecutionError reports that the tool server rejected or failed a call.
// Message is the remote error text.
type ToolExecutionError struct {
	Tool    string
	Message string
	Err     error
}

func (e *ToolExecutionError) Error() string {
	return e.Message
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is a ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsToolExecutionError reports whether err is a ToolExecutionError.
func IsToolExecutionError(err error) bool {
	var toolErr *ToolExecutionError
	return errors.As(err, &toolErr)
}
