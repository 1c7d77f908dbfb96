package reservation_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/reservation"
	"ms-raffle/internal/utils"
)

type Handler struct {
	Service *reservation.Service
	Logger  *logger.Logger
}

// Reserve handles POST /api/raffle/{raffleId}/reserve.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	raffleID := chi.URLParam(r, "raffleId")
	h.Logger.Info("API", fmt.Sprintf("Reserve: raffleId=%s", raffleID))

	var req models.ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Reserve: failed to decode request body: %v", err))
		utils.WriteError(w, "Invalid request body", models.NewValidationError("invalid JSON: %v", err))
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("Reserve: numbers=%v celular=%s", req.Numbers, models.MaskPhone(req.Participant.Celular)))

	response, err := h.Service.Reserve(raffleID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Reserve: reservation failed: %v", err))
		utils.WriteError(w, "Reservation failed", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Tickets reserved", response))
	h.Logger.Info("API", fmt.Sprintf("Reserve: purchase %s created", response.PurchaseID))
}

// PurchaseStatus handles GET /api/purchase/{purchaseId} and
// GET /api/purchase?referencia=...
func (h *Handler) PurchaseStatus(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")
	reference := r.URL.Query().Get("referencia")
	h.Logger.Info("API", fmt.Sprintf("PurchaseStatus: purchaseId=%s referencia=%s", purchaseID, reference))

	summary, err := h.Service.PurchaseStatus(purchaseID, reference)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PurchaseStatus: %v", err))
		utils.WriteError(w, "Could not fetch purchase", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Purchase status", summary))
}

// Availability handles GET /api/raffle/{raffleId}/tickets.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	raffleID := chi.URLParam(r, "raffleId")

	grid, err := h.Service.Availability(raffleID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Availability: %v", err))
		utils.WriteError(w, "Could not fetch availability", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket availability", grid))
}
