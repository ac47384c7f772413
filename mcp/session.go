package mcp

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// ProtocolVersion is the MCP protocol revision announced during initialize.
const ProtocolVersion = "2024-11-05"

// SessionOptions configures sessions created by a Manager or NewSession.
type SessionOptions struct {
	ClientName    string
	ClientVersion string
	// ToolTimeout bounds a single tools/call. Zero means no bound beyond the caller's context.
	ToolTimeout time.Duration
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.ClientName == "" {
		o.ClientName = "toolchat"
	}
	if o.ClientVersion == "" {
		o.ClientVersion = "1.0.0"
	}
	return o
}

// Session is one caller's connection to a tool server over MCP streamable
// HTTP. Connect and Disconnect take the write lock; every other method takes
// the read lock, so tool calls from concurrent turns share a session.
type Session struct {
	mu        sync.RWMutex
	client    *client.Client
	serverURL string
	callerID  string
	tools     []ToolDescriptor
	names     *NameAdapter
	lastUsed  atomic.Int64
	opts      SessionOptions
	logger    zerolog.Logger
}

// NewSession creates a disconnected session.
func NewSession(logger zerolog.Logger, opts SessionOptions) *Session {
	s := &Session{
		names:  NewNameAdapter(),
		opts:   opts.withDefaults(),
		logger: logger.With().Str("component", "mcpSession").Logger(),
	}
	s.touch()
	return s
}

// SessionURL builds the endpoint for a caller: the server URL without its
// trailing slash, the /mcp path, and the caller id as the userId query parameter.
func SessionURL(serverURL, callerID string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(serverURL), "/")
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("invalid server URL %q: scheme must be http or https", serverURL)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", serverURL)
	}
	return base + "/mcp?userId=" + url.QueryEscape(callerID), nil
}

// Connect establishes the session: initialize, then tools/list. An existing
// connection is closed first. On failure the session is left disconnected.
func (s *Session) Connect(ctx context.Context, serverURL, callerID string) ([]ToolDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.disconnectLocked()
	}

	endpoint, err := SessionURL(serverURL, callerID)
	if err != nil {
		return nil, &ConnectionError{ServerURL: serverURL, Err: err}
	}

	logger := s.logger.With().Str("endpoint", endpoint).Str("caller_id", callerID).Logger()
	logger.Info().Msg("Connecting to MCP server")

	c, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, &ConnectionError{ServerURL: serverURL, Err: err}
	}

	fail := func(err error) ([]ToolDescriptor, error) {
		if closeErr := c.Close(); closeErr != nil {
			logger.Debug().Err(closeErr).Msg("Failed to close MCP client after connect error")
		}
		logger.Error().Err(err).Msg("Failed to connect to MCP server")
		return nil, &ConnectionError{ServerURL: serverURL, Err: err}
	}

	// the transport outlives the request that opened it
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		return fail(fmt.Errorf("start transport: %w", err))
	}

	initResult, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    s.opts.ClientName,
				Version: s.opts.ClientVersion,
			},
		},
	})
	if err != nil {
		return fail(fmt.Errorf("initialize: %w", err))
	}
	if initResult == nil || initResult.ProtocolVersion == "" {
		return fail(fmt.Errorf("initialize: response has no protocolVersion"))
	}

	listResult, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fail(fmt.Errorf("list tools: %w", err))
	}

	tools := make([]ToolDescriptor, 0, len(listResult.Tools))
	for _, tool := range listResult.Tools {
		tools = append(tools, fromMCPTool(tool))
	}

	s.client = c
	s.serverURL = serverURL
	s.callerID = callerID
	s.tools = tools
	s.names.Reset()
	s.touch()

	logger.Info().
		Str("server", initResult.ServerInfo.Name).
		Str("protocol_version", initResult.ProtocolVersion).
		Int("tool_count", len(tools)).
		Msg("Connected to MCP server")

	return s.copyTools(), nil
}

// Disconnect closes the transport and forgets the tool list. It never fails.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked()
}

func (s *Session) disconnectLocked() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Debug().Err(err).Str("caller_id", s.callerID).Msg("Error closing MCP client")
		}
		s.logger.Info().Str("caller_id", s.callerID).Msg("Disconnected from MCP server")
	}
	s.client = nil
	s.serverURL = ""
	s.callerID = ""
	s.tools = nil
	s.names.Reset()
}

// IsConnected reports whether the session has a live connection.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// Tools returns a copy of the cached tool list; empty when not connected.
func (s *Session) Tools() []ToolDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyTools()
}

func (s *Session) copyTools() []ToolDescriptor {
	out := make([]ToolDescriptor, len(s.tools))
	copy(out, s.tools)
	return out
}

// ServerURL returns the URL given to Connect, or "" when disconnected.
func (s *Session) ServerURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverURL
}

// Names returns the session's tool name adapter.
func (s *Session) Names() *NameAdapter {
	return s.names
}

// LastUsed returns when the session was last connected or called.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// CallTool invokes a tool and returns its decoded result payload.
// It returns ErrNotConnected without a connection and *ToolExecutionError when
// the server answers with an error or flags the result with isError.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		return nil, ErrNotConnected
	}
	s.touch()

	if s.opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ToolTimeout)
		defer cancel()
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	s.logger.Debug().Str("tool", name).Str("caller_id", s.callerID).Msg("Calling tool")

	result, err := s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, &ToolExecutionError{Tool: name, Message: err.Error(), Err: err}
	}
	if result.IsError {
		return nil, &ToolExecutionError{Tool: name, Message: errorText(result)}
	}

	return decodeToolResult(result), nil
}
