package server

import (
	"net/http"
	"time"

	"github.com/aschepis/backscratcher/toolchat/llm"
)

type providersResponse struct {
	Default   string               `json:"default"`
	Providers []llm.ProviderStatus `json:"providers"`
}

// handleProviders lists enabled providers and whether each has credentials.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers := s.registry.Providers()
	if providers == nil {
		providers = []llm.ProviderStatus{}
	}
	writeJSON(w, http.StatusOK, providersResponse{
		Default:   s.registry.DefaultProvider(),
		Providers: providers,
	})
}

type healthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Uptime:   time.Since(s.startedAt).Truncate(time.Second).String(),
		Sessions: len(s.manager.Callers()),
	})
}
