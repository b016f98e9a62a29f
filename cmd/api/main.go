package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/statement-relay/internal/api/handlers"
	"github.com/dvloznov/statement-relay/internal/api/middleware"
	"github.com/dvloznov/statement-relay/internal/config"
	"github.com/dvloznov/statement-relay/internal/jobs"
	"github.com/dvloznov/statement-relay/internal/jobs/inmemory"
	"github.com/dvloznov/statement-relay/internal/logger"
	"github.com/dvloznov/statement-relay/internal/messaging/rabbitmq"
	"github.com/dvloznov/statement-relay/internal/pipeline"
)

const (
	queueMemory   = "memory"
	queueRabbitMQ = "rabbitmq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Parse command-line flags
	var (
		port  = flag.String("port", cfg.HTTPPort, "HTTP server port (or set HTTP_PORT env)")
		queue = flag.String("queue", queueMemory, "Where enqueued statements go: memory (relay in-process) or rabbitmq (parse queue)")
	)
	flag.Parse()

	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogPretty)

	ctx := context.Background()

	var (
		publisher jobs.Publisher
		jobStore  *inmemory.Store
		jobQueue  *inmemory.Queue
	)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	switch *queue {
	case queueMemory:
		// Uploads carry their bytes inline, so no blob store is needed here
		relay := pipeline.NewRelay(nil, pipeline.NewLogForwarder(log), log,
			pipeline.WithForwardAttempts(cfg.ForwardAttempts))

		jobStore = inmemory.NewStore()
		jobQueue = inmemory.NewQueue(inmemory.DefaultConfig(), jobStore, log)
		publisher = jobQueue

		log.Info().Msg("Starting in-process relay workers")
		if err := jobQueue.Start(workerCtx, relay.HandleJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to start job workers")
		}

	case queueRabbitMQ:
		conn, err := rabbitmq.Dial(ctx, rabbitmq.DialOptions{
			URL:      cfg.RabbitMQ.URL,
			Attempts: cfg.RabbitMQ.ConnectAttempts,
			Delay:    cfg.RabbitMQ.ConnectDelay,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		defer conn.Close()

		producer, err := rabbitmq.NewProducer(conn, cfg.RabbitMQ.ParseReadyQueue, "", log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create producer")
		}
		publisher = producer

	default:
		log.Fatal().Str("queue", *queue).Msg("Unknown queue mode")
	}

	// Initialize handlers
	statementsHandler := handlers.NewStatementsHandler(pipeline.ParseUpload, publisher, log)

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/api/statement/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			statementsHandler.Upload(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/statements", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			statementsHandler.Enqueue(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Job status is only tracked when jobs run in-process
	if jobStore != nil {
		jobsHandler := handlers.NewJobsHandler(jobStore, log)

		mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				jobsHandler.ListJobs(w, r)
			} else {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})

		mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
				if jobID == "" {
					middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
					return
				}
				jobsHandler.GetJob(w, r, jobID)
			} else {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})
	}

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"queue":  *queue,
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(log)(
				middleware.CORS(mux),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Str("queue", *queue).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if jobQueue != nil {
		// Stop job queue and wait for in-flight jobs
		if err := jobQueue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping job queue")
		}
		cancelWorker()
	}

	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close publisher")
	}

	log.Info().Msg("Server exited")
}
