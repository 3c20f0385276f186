// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/overlaypush/broadcast-backend/internal/config"
	"github.com/overlaypush/broadcast-backend/internal/db"
	"github.com/overlaypush/broadcast-backend/internal/history"
	"github.com/overlaypush/broadcast-backend/internal/model"
	"github.com/overlaypush/broadcast-backend/internal/repository"
)

// The history worker drains completion records published by the delivery
// engine and appends them to the trigger_history table for the dashboard.
func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer conn.Close()
	if err := db.Migrate(conn); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	historyRepo := &repository.HistoryRepository{DB: conn}

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open channel")
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(history.QueueName, true, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to declare queue")
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register consumer")
	}

	log.Info().Str("queue", q.Name).Msg("history worker running")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down history worker")
			return
		case d, ok := <-msgs:
			if !ok {
				log.Error().Msg("consumer channel closed")
				return
			}

			var rec model.TriggerRecord
			if err := json.Unmarshal(d.Body, &rec); err != nil {
				log.Error().Err(err).Msg("dropping malformed trigger record")
				d.Ack(false)
				continue
			}

			if err := historyRepo.Append(ctx, rec); err != nil {
				log.Error().Err(err).Str("campaign_id", rec.CampaignID).Msg("failed to store trigger record")
				// One redelivery attempt, then drop rather than loop forever.
				if d.Redelivered {
					d.Ack(false)
				} else {
					d.Nack(false, true)
				}
				continue
			}

			log.Info().
				Str("campaign_id", rec.CampaignID).
				Int("success", rec.SuccessCount).
				Int("failed", rec.FailedCount).
				Msg("trigger record stored")
			d.Ack(false)
		}
	}
}
