package server

import (
	"net/http"

	"github.com/aschepis/backscratcher/toolchat/chat"
)

// handleChat runs one turn. Failures are reported as {"error": message} with
// 400 for invalid requests and 500 for everything else.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.TurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.dispatcher.HandleTurn(r.Context(), &req)
	if err != nil {
		status := chat.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error().Err(err).Str("kind", string(chat.KindOf(err))).Str("caller_id", req.CallerID).Msg("Chat turn failed")
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}
