// Package client talks to a running toolchatd gateway over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/toolchat/chat"
	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/aschepis/backscratcher/toolchat/mcp"
)

const (
	// DefaultAddress is the default gateway URL.
	DefaultAddress = "http://localhost:3000"
)

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Message)
}

// IsValidation reports whether err is a gateway 400 response.
func IsValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest
}

// Client is the main client for interacting with the toolchatd gateway.
type Client struct {
	baseURL string
	http    *http.Client
}

// Connect returns a client for the gateway at address. A bare host:port is
// treated as http. timeout bounds each call; zero means no bound.
func Connect(address string, timeout time.Duration) (*Client, error) {
	if address == "" {
		address = DefaultAddress
	}
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	parsed, err := url.Parse(address)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid gateway address %q", address)
	}

	return &Client{
		baseURL: strings.TrimRight(address, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Chat sends one turn.
func (c *Client) Chat(ctx context.Context, req *chat.TurnRequest) (*chat.TurnResult, error) {
	var out chat.TurnResult
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConnectTools connects the caller to a tool server and returns its tools.
func (c *Client) ConnectTools(ctx context.Context, serverURL, userID string) ([]mcp.ToolSummary, error) {
	var out struct {
		Success bool              `json:"success"`
		Tools   []mcp.ToolSummary `json:"tools"`
	}
	body := map[string]string{"serverUrl": serverURL, "userId": userID}
	if err := c.do(ctx, http.MethodPost, "/api/mcp/connect", body, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// DisconnectTools drops the caller's tool session.
func (c *Client) DisconnectTools(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/api/mcp/disconnect", map[string]string{"userId": userID}, nil)
}

// ToolsStatus is the caller's tool session as reported by the gateway.
type ToolsStatus struct {
	Connected bool              `json:"connected"`
	ServerURL string            `json:"serverUrl,omitempty"`
	Tools     []mcp.ToolSummary `json:"tools"`
}

// Tools lists the caller's cached tools.
func (c *Client) Tools(ctx context.Context, userID string) (*ToolsStatus, error) {
	var out ToolsStatus
	if err := c.do(ctx, http.MethodGet, "/api/mcp/tools?userId="+url.QueryEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Providers lists the gateway's providers and its default provider id.
func (c *Client) Providers(ctx context.Context) ([]llm.ProviderStatus, string, error) {
	var out struct {
		Default   string               `json:"default"`
		Providers []llm.ProviderStatus `json:"providers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/providers", nil, &out); err != nil {
		return nil, "", err
	}
	return out.Providers, out.Default, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach gateway at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Nothing to do about close errors on a drained body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
