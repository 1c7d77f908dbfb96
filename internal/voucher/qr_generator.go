package voucher

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"ms-raffle/internal/models"
)

// GeneratePurchaseQR renders the PNG voucher QR for a confirmed purchase.
// The payload is the purchase reference plus the ticket numbers, so door
// staff can verify ownership without a lookup.
func GeneratePurchaseQR(purchase *models.Purchase, tickets []models.Ticket) ([]byte, error) {
	numbers := make([]string, len(tickets))
	for i, t := range tickets {
		numbers[i] = models.DisplayNumber(t.Number)
	}

	payload := fmt.Sprintf("raffle:%s|purchase:%s|numbers:%s",
		purchase.RaffleID, purchase.PurchaseID, strings.Join(numbers, ","))

	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate voucher QR: %w", err)
	}
	return png, nil
}
