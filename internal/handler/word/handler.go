package word

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	wordmodel "github.com/zhouzirui/helpline/backend/internal/model/word"
	wordservice "github.com/zhouzirui/helpline/backend/internal/service/word"
)

// Handler scores batches of recognized caller words.
type Handler struct {
	svc *wordservice.Service
}

// New creates the word triage handler.
func New(svc *wordservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the triage route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/word", h.handleAssess)
}

func (h *Handler) handleAssess(w http.ResponseWriter, r *http.Request) {
	var observations []wordmodel.Observation
	if err := json.NewDecoder(r.Body).Decode(&observations); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(observations) == 0 {
		respondError(w, http.StatusBadRequest, "no data provided")
		return
	}

	assessments, err := h.svc.Assess(r.Context(), observations)
	if err != nil {
		log.Printf("[word] assessment failed: %v", err)
		respondError(w, http.StatusInternalServerError, "assessment failed")
		return
	}

	respondJSON(w, http.StatusOK, assessments)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
