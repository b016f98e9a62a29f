package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/statement-relay/internal/blobstore"
	"github.com/dvloznov/statement-relay/internal/checksum"
	"github.com/dvloznov/statement-relay/internal/config"
	infraBQ "github.com/dvloznov/statement-relay/internal/infra/bigquery"
	"github.com/dvloznov/statement-relay/internal/jobs"
	"github.com/dvloznov/statement-relay/internal/logger"
	"github.com/dvloznov/statement-relay/internal/messaging/rabbitmq"
	"github.com/dvloznov/statement-relay/internal/parser"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "parse":
		runParse(logger.New())
	case "stage":
		runStage(mustLoad())
	case "publish":
		runPublish(mustLoad())
	case "runs":
		runRuns(mustLoad())
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Relay CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  parse     Parse a local extract and print the statement JSON")
	fmt.Println("  stage     Store a local extract in the blob store and publish a reference to it")
	fmt.Println("  publish   Publish a local extract inline to the parse queue")
	fmt.Println("  runs      List recent relay runs from BigQuery")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

type env struct {
	cfg *config.Config
	log zerolog.Logger
}

func mustLoad() env {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return env{cfg: cfg, log: logger.NewWithLevel(cfg.LogLevel, cfg.LogPretty)}
}

func runParse(log zerolog.Logger) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to local extract")
	compact := fs.Bool("compact", false, "Print JSON on a single line")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	record, err := parser.ParseFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Parse failed")
	}

	enc := json.NewEncoder(os.Stdout)
	if !*compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(record); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode statement")
	}
}

// readExtract loads a local file and its fingerprint.
func readExtract(e env, path string) ([]byte, string) {
	data, err := os.ReadFile(path)
	if err != nil {
		e.log.Fatal().Err(err).Str("file", path).Msg("Failed to read file")
	}
	return data, checksum.BytesChecksum(data)
}

func runStage(e env) {
	fs := flag.NewFlagSet("stage", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to local extract")
	jobID := fs.String("job-id", "", "Job ID to use (defaults to a new UUID)")
	orgID := fs.String("org-id", "", "Optional organisation ID to attach")
	ttl := fs.Duration("ttl", e.cfg.Blob.TTL, "Expiry for the staged blob (redis; object stores use BLOB_TTL as a bucket rule)")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		e.log.Fatal().Msg("Error: --file is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	data, hash := readExtract(e, *filePath)

	store, err := blobstore.Open(ctx, e.cfg.Blob)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to open blob store")
	}
	defer store.Close()

	if err := store.Put(ctx, hash, data, *ttl); err != nil {
		e.log.Fatal().Err(err).Msg("Failed to stage file")
	}

	e.log.Info().
		Str("file_hash", hash).
		Str("backend", e.cfg.Blob.Backend).
		Int("bytes", len(data)).
		Msg("File staged")

	msg := newMessage(*jobID, hash, *filePath, *orgID, data)
	msg.RedisKey = e.cfg.Blob.KeyPrefix + hash

	publish(ctx, e, msg)
}

func runPublish(e env) {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to local extract")
	orgID := fs.String("org-id", "", "Optional organisation ID to attach")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		e.log.Fatal().Msg("Error: --file is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	data, hash := readExtract(e, *filePath)

	msg := newMessage("", hash, *filePath, *orgID, data)
	msg.FileContent = base64.StdEncoding.EncodeToString(data)

	publish(ctx, e, msg)
}

func newMessage(jobID, hash, path, orgID string, data []byte) jobs.FileMessage {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	return jobs.FileMessage{
		JobID:    jobID,
		FileHash: hash,
		Filename: filepath.Base(path),
		FileSize: int64(len(data)),
		OrgID:    orgID,
	}
}

func publish(ctx context.Context, e env, msg jobs.FileMessage) {
	conn, err := rabbitmq.Dial(ctx, rabbitmq.DialOptions{
		URL:      e.cfg.RabbitMQ.URL,
		Attempts: 1,
	}, e.log)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer conn.Close()

	producer, err := rabbitmq.NewProducer(conn, e.cfg.RabbitMQ.ParseReadyQueue, "", e.log)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to create producer")
	}
	defer producer.Close()

	if err := producer.PublishParseStatement(ctx, jobs.NewParseStatementJob(msg)); err != nil {
		e.log.Fatal().Err(err).Msg("Publish failed")
	}

	fmt.Printf("Published job %s (file_hash %s) to %s\n", msg.JobID, msg.FileHash, e.cfg.RabbitMQ.ParseReadyQueue)
}

func runRuns(e env) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of runs to show")
	fs.Parse(os.Args[2:])

	if !e.cfg.BigQuery.Enabled() {
		e.log.Fatal().Msg("BQ_PROJECT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ledger, err := infraBQ.NewRunLedger(ctx, e.cfg.BigQuery.Project, e.cfg.BigQuery.Dataset)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to create run ledger")
	}
	defer ledger.Close()

	rows, err := ledger.ListRecentRuns(ctx, *limit)
	if err != nil {
		e.log.Fatal().Err(err).Msg("Failed to list runs")
	}

	fmt.Printf("\n=== Recent runs (%d) ===\n", len(rows))
	for i, row := range rows {
		fmt.Printf("\n%d. %s  %s\n", i+1, row.JobID, row.Status)
		fmt.Printf("   File:     %s (%s)\n", row.Filename, row.FileHash)
		fmt.Printf("   Source:   %s\n", row.SourceVariant)
		fmt.Printf("   Org:      %s\n", row.OrgID)
		if row.StatementDate.Valid {
			fmt.Printf("   Date:     %s\n", row.StatementDate.Date)
		}
		fmt.Printf("   Txns:     %d\n", row.TransactionCount)
		fmt.Printf("   Started:  %s\n", row.StartedTS.Format(time.RFC3339))
		if row.ErrorMessage != "" {
			fmt.Printf("   Failed:   %s: %s\n", row.FailedStage, row.ErrorMessage)
		}
	}
	fmt.Println()
}
