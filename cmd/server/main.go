// cmd/server/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/overlaypush/broadcast-backend/internal/blob"
	"github.com/overlaypush/broadcast-backend/internal/config"
	"github.com/overlaypush/broadcast-backend/internal/controller"
	"github.com/overlaypush/broadcast-backend/internal/db"
	"github.com/overlaypush/broadcast-backend/internal/delivery"
	"github.com/overlaypush/broadcast-backend/internal/dispatch"
	"github.com/overlaypush/broadcast-backend/internal/history"
	"github.com/overlaypush/broadcast-backend/internal/repository"
	"github.com/overlaypush/broadcast-backend/internal/runner"
	"github.com/overlaypush/broadcast-backend/internal/scheduler"
	"github.com/overlaypush/broadcast-backend/internal/service"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var conn *sql.DB
	var repo repository.CampaignRepositoryInterface
	switch cfg.StoreDriver {
	case "memory":
		repo = repository.NewMemoryCampaignRepository()
	default:
		conn, err = db.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer conn.Close()
		if err := db.Migrate(conn); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		repo = &repository.CampaignRepository{DB: conn}
	}

	var blobs blob.Store
	switch cfg.BlobDriver {
	case "memory":
		blobs = blob.NewMemoryStore()
	default:
		redisStore, err := blob.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		blobs = redisStore
	}

	var historyAppender history.Appender
	var historyReader history.Reader
	switch cfg.HistoryDriver {
	case "amqp":
		if conn == nil {
			log.Fatal().Msg("amqp history driver requires the postgres store driver")
		}
		rec, err := history.NewAMQPRecorder(cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
		}
		defer rec.Close()
		historyAppender = rec
		historyReader = &repository.HistoryRepository{DB: conn}
	default:
		mem := history.NewMemoryRecorder()
		historyAppender = mem
		historyReader = mem
	}

	client := delivery.NewFCMClient(cfg.FCMEndpoint)
	dispatcher := dispatch.New(client,
		cfg.BatchSize, cfg.MaxParallelBatches, cfg.PerRecipientAttempts,
		cfg.RetryDelay, cfg.SendRatePerSec, log)

	campaignRunner := &runner.Runner{
		Repo:       repo,
		Blobs:      blobs,
		Dispatcher: dispatcher,
		History:    historyAppender,
		ChunkSize:  cfg.ChunkSize,
		MaxRetries: cfg.MaxRetries,
		Log:        log,
	}

	// Runs interrupted by a previous crash restart from the beginning.
	if requeued, err := repo.RequeueStuck(ctx); err != nil {
		log.Error().Err(err).Msg("failed to requeue interrupted campaigns")
	} else if requeued > 0 {
		log.Info().Int("count", requeued).Msg("requeued interrupted campaigns")
	}

	sched := &scheduler.Scheduler{
		Repo:     repo,
		Runner:   campaignRunner,
		Interval: cfg.SchedulerInterval,
		Log:      log,
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	campaignService := &service.CampaignService{
		Repo:      repo,
		Blobs:     blobs,
		History:   historyReader,
		MaxStored: cfg.MaxStoredCampaigns,
		Log:       log,
	}
	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		Log:             log,
	}

	r := chi.NewRouter()
	campaignController.Routes(r)

	srv := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	sched.Stop()
}
