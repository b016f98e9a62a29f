package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/statement-relay/internal/blobstore"
	"github.com/dvloznov/statement-relay/internal/config"
	infraBQ "github.com/dvloznov/statement-relay/internal/infra/bigquery"
	"github.com/dvloznov/statement-relay/internal/logger"
	"github.com/dvloznov/statement-relay/internal/messaging/rabbitmq"
	"github.com/dvloznov/statement-relay/internal/pipeline"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info().
		Str("parse_queue", cfg.RabbitMQ.ParseReadyQueue).
		Str("forward_queue", cfg.RabbitMQ.PDFReadyQueue).
		Str("blob_backend", cfg.Blob.Backend).
		Msg("Starting worker service")

	store, err := blobstore.Open(ctx, cfg.Blob)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open blob store")
	}
	defer store.Close()

	conn, err := rabbitmq.Dial(ctx, rabbitmq.DialOptions{
		URL:      cfg.RabbitMQ.URL,
		Attempts: cfg.RabbitMQ.ConnectAttempts,
		Delay:    cfg.RabbitMQ.ConnectDelay,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer conn.Close()

	producer, err := rabbitmq.NewProducer(conn, "", cfg.RabbitMQ.PDFReadyQueue, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create producer")
	}
	defer producer.Close()

	opts := []pipeline.Option{pipeline.WithForwardAttempts(cfg.ForwardAttempts)}
	if cfg.BigQuery.Enabled() {
		ledger, err := infraBQ.NewRunLedger(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create run ledger")
		}
		defer ledger.Close()

		if err := ledger.EnsureTable(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure run ledger table")
		}
		opts = append(opts, pipeline.WithRunRecorder(ledger))
	}

	relay := pipeline.NewRelay(store, producer, log, opts...)

	consumer, err := rabbitmq.NewConsumer(conn, cfg.RabbitMQ.ParseReadyQueue, cfg.RabbitMQ.Prefetch, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create consumer")
	}
	defer consumer.Close()

	if err := consumer.Start(ctx, relay.HandleJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start consumer")
	}

	log.Info().Msg("Worker service started, waiting for messages...")

	// Wait for interrupt signal or a dropped broker connection
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down worker service...")
	case amqpErr := <-conn.NotifyClose(make(chan *amqp.Error, 1)):
		log.Error().Interface("reason", amqpErr).Msg("RabbitMQ connection closed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Let the in-flight delivery settle before the channel goes away
	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}
