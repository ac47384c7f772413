package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aschepis/backscratcher/toolchat/conversations"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// NewStoreHandler serves the conversation backend API from store.
func NewStoreHandler(store *conversations.Store, logger zerolog.Logger) http.Handler {
	logger = logger.With().Str("component", "store-server").Logger()
	r := newRouter(logger)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	StoreRoutes(r, store, logger)
	return r
}

// StoreRoutes mounts the conversation backend API on r.
func StoreRoutes(r chi.Router, store *conversations.Store, logger zerolog.Logger) {
	h := &storeHandler{store: store, logger: logger}

	r.Route("/api/conversations", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.remove)
		r.Get("/{id}/messages", h.get)
		r.Post("/{id}/messages", h.appendMessage)
	})
}

type storeHandler struct {
	store  *conversations.Store
	logger zerolog.Logger
}

// fail maps store errors to responses. Unknown errors are logged and hidden.
func (h *storeHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, conversations.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	h.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Store request failed")
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func (h *storeHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	out, err := h.store.List(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *storeHandler) create(w http.ResponseWriter, r *http.Request) {
	var req conversations.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.Title == "" {
		var first interface{}
		if len(req.Messages) > 0 {
			first = req.Messages[0].Content
		}
		req.Title = conversations.Title(first)
	}

	conv, err := h.store.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *storeHandler) get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *storeHandler) appendMessage(w http.ResponseWriter, r *http.Request) {
	var msg conversations.NewMessage
	if err := decodeJSON(w, r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg.Role == "" {
		writeError(w, http.StatusBadRequest, "role is required")
		return
	}

	stored, err := h.store.AppendMessage(r.Context(), chi.URLParam(r, "id"), msg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (h *storeHandler) update(w http.ResponseWriter, r *http.Request) {
	var req conversations.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	conv, err := h.store.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *storeHandler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
