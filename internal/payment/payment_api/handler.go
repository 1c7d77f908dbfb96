package payment_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/payment"
	"ms-raffle/internal/utils"
)

type Handler struct {
	Service *payment.Service
	Logger  *logger.Logger
}

// SubmitProof handles POST /api/purchase/{purchaseId}/proof.
func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")
	h.Logger.Info("API", fmt.Sprintf("SubmitProof: purchaseId=%s", purchaseID))

	var req models.ProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "Invalid request body", models.NewValidationError("invalid JSON: %v", err))
		return
	}

	purchase, err := h.Service.SubmitProof(purchaseID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("SubmitProof: %v", err))
		utils.WriteError(w, "Proof submission failed", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Proof submitted", purchase))
}

// AdminDecide handles PATCH /api/admin/purchase/{purchaseId}.
func (h *Handler) AdminDecide(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")
	h.Logger.Info("API", fmt.Sprintf("AdminDecide: purchaseId=%s", purchaseID))

	var req models.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "Invalid request body", models.NewValidationError("invalid JSON: %v", err))
		return
	}

	purchase, err := h.Service.Decide(purchaseID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("AdminDecide: %v", err))
		utils.WriteError(w, "Decision failed", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Purchase decided", purchase))
}

// CreatePaymentIntent handles POST /api/purchase/{purchaseId}/payment-intent.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")
	h.Logger.Info("API", fmt.Sprintf("CreatePaymentIntent: purchaseId=%s", purchaseID))

	intent, err := h.Service.CreatePaymentIntent(purchaseID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePaymentIntent: %v", err))
		utils.WriteError(w, "Could not create payment intent", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment intent created", map[string]string{
		"payment_intent_id": intent.ID,
		"client_secret":     intent.ClientSecret,
	}))
}

// StripeWebhook handles POST /api/stripe/webhook.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.HandleStripeWebhook(r); err != nil {
		var webhookErr *payment.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Error("WEBHOOK", webhookErr.InternalError)
			utils.WriteJSON(w, webhookErr.StatusCode, utils.ErrorResponse("Webhook error", webhookErr.PublicError))
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Webhook processing failed: %v", err))
		utils.WriteError(w, "Webhook processing failed", err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Webhook processed", nil))
}
