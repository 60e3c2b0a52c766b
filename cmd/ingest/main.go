// Command ingest publishes documents from a local file to the documents
// topic, one per line as "id<TAB>text" or as bare text with generated ids.
// Events are validated before leaving the machine. A rate limit caps
// documents per second, and dry-run prints the events instead of publishing.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/topicmine/platform/internal/ingest"
	"github.com/topicmine/platform/internal/ingest/validator"
	"github.com/topicmine/platform/pkg/config"
	"github.com/topicmine/platform/pkg/kafka"
	"github.com/topicmine/platform/pkg/logger"
)

const publishBatchSize = 200

func main() {
	var (
		configPath = flag.String("config", "configs/development.yaml", "path to config file")
		filePath   = flag.String("file", "", "document file, one id<TAB>text line per document")
		rate       = flag.Int("rate", 0, "maximum documents per second, 0 means unlimited")
		dryRun     = flag.Bool("dry-run", false, "print events instead of publishing them")
		source     = flag.String("source", "ingest-cli", "source recorded on each event")
	)
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	f, err := os.Open(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening %s: %v\n", *filePath, err)
		os.Exit(1)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var producer *kafka.Producer
	if !*dryRun {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Documents)
		defer producer.Close()
	}

	var limiter *time.Ticker
	if *rate > 0 {
		interval := time.Second / time.Duration(*rate)
		if interval <= 0 {
			interval = time.Nanosecond
		}
		limiter = time.NewTicker(interval)
		defer limiter.Stop()
	}

	started := time.Now()
	var published, rejected, failed int

	// Without a rate limit, documents go out in batches for throughput.
	batch := make([]kafka.Event, 0, publishBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := producer.PublishBatch(ctx, batch); err != nil {
			failed += len(batch)
		} else {
			published += len(batch)
		}
		batch = batch[:0]
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0

scan:
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "interrupted")
			break scan
		default:
		}
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		id, text, found := strings.Cut(line, "\t")
		if !found || strings.TrimSpace(id) == "" {
			id = fmt.Sprintf("doc-%06d", lineNo)
			text = line
		}
		event := ingest.DocumentEvent{
			ID:        id,
			Body:      text,
			Source:    *source,
			Timestamp: time.Now().UTC(),
		}
		if err := validator.ValidateDocumentEvent(&event); err != nil {
			fmt.Fprintf(os.Stderr, "line %d rejected: %v\n", lineNo, err)
			rejected++
			continue
		}

		if *dryRun {
			data, err := json.Marshal(event)
			if err != nil {
				fmt.Fprintf(os.Stderr, "line %d: %v\n", lineNo, err)
				rejected++
				continue
			}
			fmt.Println(string(data))
			published++
			continue
		}

		if limiter != nil {
			select {
			case <-ctx.Done():
				fmt.Fprintln(os.Stderr, "interrupted")
				break scan
			case <-limiter.C:
			}
			if err := producer.Publish(ctx, kafka.Event{Key: event.ID, Value: event}); err != nil {
				failed++
			} else {
				published++
			}
			continue
		}

		batch = append(batch, kafka.Event{Key: event.ID, Value: event})
		if len(batch) == publishBatchSize {
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "reading %s: %v\n", *filePath, err)
		os.Exit(1)
	}
	if !*dryRun {
		flush()
	}

	elapsed := time.Since(started)
	fmt.Println()
	fmt.Println("=== Ingest Report ===")
	if *dryRun {
		fmt.Println("Mode:       dry-run (nothing published)")
	} else {
		fmt.Printf("Topic:      %s\n", cfg.Kafka.Topics.Documents)
	}
	fmt.Printf("Documents:  %d\n", published)
	fmt.Printf("Rejected:   %d\n", rejected)
	fmt.Printf("Failed:     %d\n", failed)
	fmt.Printf("Duration:   %s\n", elapsed.Round(time.Millisecond))
	if published > 0 && elapsed > 0 {
		fmt.Printf("Docs/sec:   %.1f\n", float64(published)/elapsed.Seconds())
	}
	if failed > 0 {
		os.Exit(1)
	}
}
