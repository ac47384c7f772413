package server

import (
	"net/http"
	"strings"

	"github.com/aschepis/backscratcher/toolchat/mcp"
)

// DefaultUserID is the caller identity used when a tool server request names none.
const DefaultUserID = "default-user"

type connectRequest struct {
	ServerURL string `json:"serverUrl"`
	UserID    string `json:"userId"`
}

type connectResponse struct {
	Success bool              `json:"success"`
	Tools   []mcp.ToolSummary `json:"tools"`
}

func callerOrDefault(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return DefaultUserID
}

// handleConnect connects the caller's tool session and reports the tools found.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ServerURL) == "" {
		writeError(w, http.StatusBadRequest, "Server URL is required")
		return
	}
	callerID := callerOrDefault(req.UserID)

	tools, err := s.manager.Connect(r.Context(), req.ServerURL, callerID)
	if err != nil {
		s.logger.Error().Err(err).Str("caller_id", callerID).Str("server_url", req.ServerURL).Msg("MCP connect failed")
		writeError(w, http.StatusInternalServerError, "Failed to connect to MCP server: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, connectResponse{Success: true, Tools: mcp.Summaries(tools)})
}

// handleDisconnect drops the caller's tool session.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.manager.Disconnect(callerOrDefault(req.UserID))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type toolsResponse struct {
	Connected bool              `json:"connected"`
	ServerURL string            `json:"serverUrl,omitempty"`
	Tools     []mcp.ToolSummary `json:"tools"`
}

// handleTools lists the caller's cached tools without calling the tool server.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	callerID := callerOrDefault(r.URL.Query().Get("userId"))

	resp := toolsResponse{Tools: []mcp.ToolSummary{}}
	if session, ok := s.manager.Lookup(callerID); ok && session.IsConnected() {
		resp.Connected = true
		resp.ServerURL = session.ServerURL()
		resp.Tools = mcp.Summaries(session.Tools())
	}
	writeJSON(w, http.StatusOK, resp)
}
