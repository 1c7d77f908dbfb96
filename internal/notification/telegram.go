package notification

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ms-raffle/internal/logger"
)

// Telegram pushes admin notifications through a bot. The admin chat can be
// preconfigured, or registered at runtime by messaging /start to the bot.
type Telegram struct {
	Bot         *tgbotapi.BotAPI
	AdminChatID int64
	Logger      *logger.Logger
}

func NewTelegram(token string, adminChatID int64, log *logger.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	t := &Telegram{
		Bot:         bot,
		AdminChatID: adminChatID,
		Logger:      log,
	}
	log.Info("TELEGRAM", fmt.Sprintf("Bot authorized as %s", bot.Self.UserName))

	go t.listenForCommands()
	return t, nil
}

func (t *Telegram) listenForCommands() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.Bot.GetUpdatesChan(u)
	for update := range updates {
		if update.Message == nil || !update.Message.IsCommand() {
			continue
		}
		switch update.Message.Command() {
		case "start":
			t.AdminChatID = update.Message.Chat.ID
			msg := tgbotapi.NewMessage(t.AdminChatID, fmt.Sprintf(
				"Admin chat registered (%d). Raffle notifications will arrive here.", t.AdminChatID))
			if _, err := t.Bot.Send(msg); err != nil {
				t.Logger.Error("TELEGRAM", fmt.Sprintf("Failed to confirm registration: %v", err))
			}
			t.Logger.Info("TELEGRAM", fmt.Sprintf("Admin chat ID registered: %d", t.AdminChatID))
		}
	}
}

// NotifyAdmin sends a text message to the registered admin chat.
func (t *Telegram) NotifyAdmin(text string) {
	if t.Bot == nil || t.AdminChatID == 0 {
		t.Logger.Warn("TELEGRAM", "Bot not started or admin chat unknown, dropping notification")
		return
	}

	msg := tgbotapi.NewMessage(t.AdminChatID, text)
	if _, err := t.Bot.Send(msg); err != nil {
		t.Logger.Error("TELEGRAM", fmt.Sprintf("Failed to send notification: %v", err))
	}
}

// NotifyAdminPhoto sends a captioned PNG (e.g. a voucher QR) to the admin chat.
func (t *Telegram) NotifyAdminPhoto(caption string, png []byte) {
	if t.Bot == nil || t.AdminChatID == 0 {
		t.Logger.Warn("TELEGRAM", "Bot not started or admin chat unknown, dropping notification")
		return
	}

	photo := tgbotapi.NewPhoto(t.AdminChatID, tgbotapi.FileBytes{Name: "voucher.png", Bytes: png})
	photo.Caption = caption
	if _, err := t.Bot.Send(photo); err != nil {
		t.Logger.Error("TELEGRAM", fmt.Sprintf("Failed to send photo notification: %v", err))
	}
}
