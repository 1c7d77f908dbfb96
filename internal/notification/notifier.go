package notification

import (
	"fmt"
	"strings"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/voucher"
)

// TelegramSender is what the notifier needs from the bot. Nil means
// notifications are log-only.
type TelegramSender interface {
	NotifyAdmin(text string)
	NotifyAdminPhoto(caption string, png []byte)
}

// Notifier turns lifecycle events into admin notifications. It is strictly
// fire-and-forget: failures are logged and never propagate back into the
// reservation engine.
type Notifier struct {
	Telegram TelegramSender
	Logger   *logger.Logger
}

func NewNotifier(telegram TelegramSender, log *logger.Logger) *Notifier {
	return &Notifier{
		Telegram: telegram,
		Logger:   log,
	}
}

// Handle processes one lifecycle event. Used as the Kafka consumer callback.
func (n *Notifier) Handle(event models.RaffleEvent) {
	text := formatEvent(event)
	if text == "" {
		n.Logger.Debug("NOTIFY", fmt.Sprintf("Ignoring event type %s", event.Type))
		return
	}

	n.Logger.Info("NOTIFY", text)
	if n.Telegram == nil {
		return
	}

	// Confirmed purchases get their voucher QR attached so the admin can
	// forward it to the participant directly.
	if event.Type == models.EventPurchaseDecided && event.State == models.PurchaseStateConfirmed {
		tickets := make([]models.Ticket, len(event.Numbers))
		for i, num := range event.Numbers {
			tickets[i] = models.Ticket{RaffleID: event.RaffleID, Number: num}
		}
		png, err := voucher.GeneratePurchaseQR(&models.Purchase{
			PurchaseID: event.PurchaseID,
			RaffleID:   event.RaffleID,
		}, tickets)
		if err == nil {
			n.Telegram.NotifyAdminPhoto(text, png)
			return
		}
		n.Logger.Warn("NOTIFY", fmt.Sprintf("Failed to render voucher QR for %s: %v", event.PurchaseID, err))
	}

	n.Telegram.NotifyAdmin(text)
}

func formatEvent(event models.RaffleEvent) string {
	numbers := make([]string, len(event.Numbers))
	for i, num := range event.Numbers {
		numbers[i] = models.DisplayNumber(num)
	}
	joined := strings.Join(numbers, ", ")

	switch event.Type {
	case models.EventTicketsReserved:
		return fmt.Sprintf("🎟 Tickets reserved [%s] in raffle %s (purchase %s)",
			joined, event.RaffleID, event.PurchaseID)
	case models.EventProofSubmitted:
		return fmt.Sprintf("🧾 Payment proof submitted for purchase %s (referencia %s). Review pending.",
			event.PurchaseID, event.Reference)
	case models.EventPurchaseDecided:
		return fmt.Sprintf("⚖️ Purchase %s decided: %s", event.PurchaseID, event.State)
	case models.EventPurchaseExpired:
		return fmt.Sprintf("⏰ Purchase %s expired, numbers [%s] are available again",
			event.PurchaseID, joined)
	case models.EventDrawCompleted:
		if len(numbers) > 0 {
			return fmt.Sprintf("🏆 Raffle %s drawn! Winning number: %s", event.RaffleID, numbers[0])
		}
		return fmt.Sprintf("🏆 Raffle %s drawn!", event.RaffleID)
	}
	return ""
}
