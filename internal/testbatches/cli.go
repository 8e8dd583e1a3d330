package testbatches

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/cadencefin/riskpipe/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "test_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// writeBatchesJSON writes batches as an indented JSON array.
func writeBatchesJSON(w io.Writer, batches []batchPayload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(batches); err != nil {
		return fmt.Errorf("failed to encode batches: %w", err)
	}
	return nil
}

// ShowHelp prints usage information for the test batches tool.
func ShowHelp() {
	os.Stdout.WriteString(`Riskpipe Batch Test Tool
========================

A concurrent tool for exercising the riskpipe batch scoring service.

Usage:
  go run cmd/test-batches/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -batches int
        Number of batches to generate and submit (default 100)
  -records int
        Number of loan records per batch (default 50)
  -invalid float
        Fraction of records generated with violations (default 0.1)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Output file for generated batches (default: generated_batches_TIMESTAMP.json)
  -log string
        Log file for test output (default: test_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Test with default settings
  go run cmd/test-batches/main.go

  # Test with custom parameters
  go run cmd/test-batches/main.go -batches 500 -records 100 -url http://localhost:8080

  # Test with only clean records
  go run cmd/test-batches/main.go -invalid 0 -batches 50
`)
}
