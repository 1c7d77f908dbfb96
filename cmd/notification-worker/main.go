// Notification worker: consumes the raffle lifecycle topics and forwards
// admin notifications to Telegram. Runs separately from the API service so a
// slow bot never backs up the reservation path.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-raffle/internal/config"
	"ms-raffle/internal/kafka"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/notification"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	var telegram notification.TelegramSender
	if cfg.Telegram.Enabled {
		bot, err := notification.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID, log)
		if err != nil {
			log.Error("TELEGRAM", fmt.Sprintf("Failed to start bot, notifications are log-only: %v", err))
		} else {
			telegram = bot
		}
	} else {
		log.Info("TELEGRAM", "Bot token not configured, notifications are log-only")
	}

	notifier := notification.NewNotifier(telegram, log)

	topics := cfg.Kafka.Topics.All()
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, topics, cfg.Kafka.GroupID+"-notifications")
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go consumer.Start(ctx, notifier.Handle)
	log.Info("APP", fmt.Sprintf("Notification worker consuming %d topics", len(topics)))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "Shutdown signal received")
	cancel()
}
