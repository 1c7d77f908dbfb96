package raffle_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/raffle"
	"ms-raffle/internal/utils"
)

type Handler struct {
	Service *raffle.Service
	Logger  *logger.Logger
}

// Create handles POST /api/admin/raffle.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req raffle.CreateRaffleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "Invalid request body", models.NewValidationError("invalid JSON: %v", err))
		return
	}

	created, err := h.Service.Create(req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateRaffle: %v", err))
		utils.WriteError(w, "Raffle creation failed", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Raffle created", created))
}

// Get handles GET /api/raffle/{raffleId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	raffleID := chi.URLParam(r, "raffleId")

	found, err := h.Service.Get(raffleID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetRaffle: %v", err))
		utils.WriteError(w, "Could not fetch raffle", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Raffle", found))
}

// List handles GET /api/raffle?state=ACTIVE.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")

	raffles, err := h.Service.List(state)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListRaffles: %v", err))
		utils.WriteError(w, "Could not list raffles", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Raffles", raffles))
}

type transitionRequest struct {
	State string `json:"state"`
}

// Transition handles POST /api/admin/raffle/{raffleId}/state.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	raffleID := chi.URLParam(r, "raffleId")

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "Invalid request body", models.NewValidationError("invalid JSON: %v", err))
		return
	}
	if req.State == "" {
		utils.WriteError(w, "Invalid request body", models.NewValidationError("state is required"))
		return
	}

	updated, err := h.Service.Transition(raffleID, req.State)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("TransitionRaffle: %v", err))
		utils.WriteError(w, "State transition failed", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Raffle updated", updated))
}
