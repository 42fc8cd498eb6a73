package call

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	callservice "github.com/zhouzirui/helpline/backend/internal/service/call"
	"github.com/zhouzirui/helpline/backend/pkg/utils"
)

// Handler exposes the operator surface over plain HTTP, mirroring the
// websocket control commands one to one.
type Handler struct {
	svc *callservice.Service
}

// New creates the operator HTTP handler.
func New(svc *callservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the operator routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/callers/waiting", h.handleListWaiting)
	r.Post("/callers/{callerID}/accept", h.handleAccept)
	r.Post("/callers/{callerID}/reject", h.handleReject)
}

func (h *Handler) handleListWaiting(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"callers": h.svc.Waiting(),
	})
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	callerID := chi.URLParam(r, "callerID")

	if err := h.svc.Accept(r.Context(), callerID); err != nil {
		utils.RespondError(w, http.StatusBadRequest, describeError(err))
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":   "accepted",
		"callerId": callerID,
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	callerID := chi.URLParam(r, "callerID")

	if err := h.svc.Reject(callerID); err != nil {
		utils.RespondError(w, http.StatusBadRequest, describeError(err))
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":   "rejected",
		"callerId": callerID,
	})
}
