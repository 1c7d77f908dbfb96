package payment

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-raffle/internal/models"
)

// InitStripe sets the API key for the stripe client.
func InitStripe(secretKey string) {
	stripe.Key = secretKey
}

// CreatePaymentIntent creates (or retrieves) the Stripe payment intent for a
// pending purchase. The intent amount is the purchase's frozen total, so a
// later price change on the raffle never affects an open reservation.
func (s *Service) CreatePaymentIntent(purchaseID string) (*stripe.PaymentIntent, error) {
	purchase, err := s.DB.GetPurchaseByID(purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.State != models.PurchaseStatePending {
		return nil, models.ErrInvalidStateTransition
	}
	if time.Now().After(purchase.ExpiresAt) {
		return nil, models.ErrReservationExpired
	}

	if purchase.PaymentIntentID != "" {
		intent, err := paymentintent.Get(purchase.PaymentIntentID, nil)
		if err == nil && intent.Status != stripe.PaymentIntentStatusCanceled &&
			intent.Status != stripe.PaymentIntentStatusSucceeded {
			s.logger.Info("PAYMENT", fmt.Sprintf(
				"Reusing payment intent %s for purchase %s", intent.ID, purchaseID))
			return intent, nil
		}
		if err != nil {
			s.logger.Warn("PAYMENT", fmt.Sprintf(
				"Failed to retrieve payment intent %s, creating a new one: %v", purchase.PaymentIntentID, err))
		}
	}

	amountInCents := int64(purchase.TotalAmount * 100)
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String("usd"),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("purchase_id", purchaseID)

	intent, err := paymentintent.New(params)
	if err != nil {
		s.logger.Error("PAYMENT", fmt.Sprintf("Failed to create payment intent: %v", err))
		return nil, err
	}

	if err := s.DB.AttachPaymentIntent(purchaseID, intent.ID); err != nil {
		s.logger.Error("PAYMENT", fmt.Sprintf(
			"Failed to record payment intent %s on purchase %s: %v", intent.ID, purchaseID, err))
		return nil, err
	}

	s.logger.Info("PAYMENT", fmt.Sprintf(
		"Created payment intent %s for purchase %s (%.2f)", intent.ID, purchaseID, purchase.TotalAmount))
	return intent, nil
}

// WebhookError carries the HTTP status and a client-safe message alongside
// the detailed internal error.
type WebhookError struct {
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// HandleStripeWebhook processes Stripe events. A succeeded payment intent is
// a verified payment: the purchase goes through proof submission and approval
// in one step, with the intent ID as the payment reference.
func (s *Service) HandleStripeWebhook(r *http.Request) error {
	if s.WebhookSecret == "" {
		s.logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return &WebhookError{
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), s.WebhookSecret, opts)
	if err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Webhook signature verification failed: %v", err))
		return &WebhookError{
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	s.logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe event: %s", event.Type))

	switch event.Type {
	case "payment_intent.succeeded":
		intent, werr := unmarshalIntent(event.Data.Raw)
		if werr != nil {
			return werr
		}
		purchaseID := intent.Metadata["purchase_id"]
		if purchaseID == "" {
			return &WebhookError{
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid payment intent data",
				InternalError: "payment intent has no purchase_id in metadata",
			}
		}

		if _, err := s.SubmitProof(purchaseID, models.ProofRequest{Referencia: intent.ID}); err != nil {
			s.logger.Error("WEBHOOK", fmt.Sprintf(
				"Failed to submit stripe proof for purchase %s: %v", purchaseID, err))
			return &WebhookError{
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment",
				InternalError: fmt.Sprintf("failed to submit stripe proof for purchase %s: %v", purchaseID, err),
				OriginalErr:   err,
			}
		}
		if _, err := s.Decide(purchaseID, models.DecisionRequest{Accion: "aprobar", Notas: "stripe payment succeeded"}); err != nil {
			s.logger.Error("WEBHOOK", fmt.Sprintf(
				"Failed to confirm purchase %s after payment: %v", purchaseID, err))
			return &WebhookError{
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment",
				InternalError: fmt.Sprintf("failed to confirm purchase %s after payment: %v", purchaseID, err),
				OriginalErr:   err,
			}
		}
		s.logger.Info("WEBHOOK", fmt.Sprintf("Confirmed purchase %s via stripe", purchaseID))

	case "payment_intent.payment_failed":
		intent, werr := unmarshalIntent(event.Data.Raw)
		if werr != nil {
			return werr
		}
		// A failed attempt keeps the reservation alive; the participant can
		// retry until the hold elapses and the sweeper reclaims the numbers.
		s.logger.Warn("WEBHOOK", fmt.Sprintf(
			"Payment failed for purchase %s (intent %s)", intent.Metadata["purchase_id"], intent.ID))

	default:
		s.logger.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", event.Type))
	}

	return nil
}

func unmarshalIntent(raw json.RawMessage) (*stripe.PaymentIntent, *WebhookError) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, &WebhookError{
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("failed to unmarshal payment intent: %v", err),
			OriginalErr:   err,
		}
	}
	return &intent, nil
}
