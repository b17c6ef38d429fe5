/**
 * @description
 * This is the main entry point for the charge-service worker. It claims pending
 * charge jobs from the database queue, applies the charge effect, and publishes
 * status events. It shares the store and broker wiring with the API binary but
 * runs no HTTP surface.
 *
 * @dependencies
 * - log: Standard Go library for logging.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fintech/charge-service/internal/app"
	"github.com/fintech/charge-service/internal/config"
	"github.com/fintech/charge-service/internal/store"
	"github.com/fintech/charge-service/pkg/rabbitmq"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url must be configured\" env=DATABASE_URL")
	}

	workerID := strings.TrimSpace(cfg.WorkerID)
	if workerID == "" {
		host, hostErr := os.Hostname()
		if hostErr != nil || host == "" {
			host = "worker"
		}
		workerID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	log.Printf("level=info component=bootstrap msg=\"starting charge-service worker\" worker_id=%s poll_interval=%s", workerID, cfg.WorkerPollInterval())

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// The worker holds at most one claim transaction at a time; a small pool is enough.
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	if err := store.EnsureSchema(context.Background(), dbpool); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"schema bootstrap failed\" err=%v", err)
	}

	var producer rabbitmq.Publisher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; event publishing disabled\"")
	} else if ep, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.ChargeEventExchange); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		defer ep.Close()
		producer = ep
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	repository := store.NewPostgresRepository(dbpool)
	handler := app.NewProcessChargeHandler(repository, producer)
	worker := app.NewWorker(workerID, repository, cfg.WorkerPollInterval(), handler)

	if cfg.WorkerRunOnce {
		claimed, tickErr := worker.Tick(context.Background())
		if tickErr != nil {
			log.Fatalf("level=fatal component=worker msg=\"tick failed\" worker_id=%s err=%v", workerID, tickErr)
		}
		log.Printf("level=info component=worker msg=\"single tick complete\" worker_id=%s claimed=%t", workerID, claimed)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	worker.Run(ctx)
	log.Printf("level=info component=worker msg=\"shutdown complete\" worker_id=%s", workerID)
}
