package draw_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-raffle/internal/draw"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/utils"
)

type Handler struct {
	Service *draw.Service
	Logger  *logger.Logger
}

type drawRequest struct {
	Seed string `json:"seed,omitempty"`
}

// RunDraw handles POST /api/admin/raffle/{raffleId}/draw.
func (h *Handler) RunDraw(w http.ResponseWriter, r *http.Request) {
	raffleID := chi.URLParam(r, "raffleId")
	h.Logger.Info("API", fmt.Sprintf("RunDraw: raffleId=%s", raffleID))

	var req drawRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.WriteError(w, "Invalid request body", models.NewValidationError("invalid JSON: %v", err))
			return
		}
	}

	result, err := h.Service.Draw(raffleID, req.Seed)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RunDraw: %v", err))
		utils.WriteError(w, "Draw failed", err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Draw completed", result))
}

// VerifyDraw handles GET /api/draw/{drawId}/verify.
func (h *Handler) VerifyDraw(w http.ResponseWriter, r *http.Request) {
	drawID := chi.URLParam(r, "drawId")

	verification, err := h.Service.Verify(drawID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("VerifyDraw: %v", err))
		utils.WriteError(w, "Could not verify draw", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Draw verification", verification))
}
