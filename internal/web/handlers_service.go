package web

import (
	"net/http"

	"github.com/sony/gobreaker"
)

// CleanResponse reports how many cache entries a clean removed.
type CleanResponse struct {
	Cache   string `json:"cache"`
	Removed int    `json:"removed"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.cfg.Settings())
}

// handleStats writes the counters snapshot: sections of name to count, so
// two snapshots can be diffed key by key. Breaker states are summarized as
// counts in the upstream section.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.exec.Stats()

	upstream := snap["upstream"]
	if upstream == nil {
		upstream = make(map[string]int64)
		snap["upstream"] = upstream
	}
	upstream["breakers_open"] = 0
	upstream["breakers_half_open"] = 0
	for _, state := range s.breakerStates() {
		switch state {
		case gobreaker.StateOpen.String():
			upstream["breakers_open"]++
		case gobreaker.StateHalfOpen.String():
			upstream["breakers_half_open"]++
		}
	}
	writeJSON(w, snap)
}

// handleBreakers lists the circuit breaker state per upstream server.
func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.breakerStates())
}

func (s *Server) breakerStates() map[string]string {
	if s.breakers == nil {
		return map[string]string{}
	}
	return s.breakers.BreakerStates()
}

func (s *Server) handleCleanOriginCache(w http.ResponseWriter, r *http.Request) {
	n, err := s.exec.ClearOriginCache(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, CleanResponse{Cache: "origin", Removed: n})
}

func (s *Server) handleCleanResponseCache(w http.ResponseWriter, r *http.Request) {
	n, err := s.exec.ClearResponseCache(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, CleanResponse{Cache: "response", Removed: n})
}
