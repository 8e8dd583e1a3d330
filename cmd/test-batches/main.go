package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/cadencefin/riskpipe/internal/testbatches"
)

// Default configuration constants.
const (
	defaultNumBatches   = 100
	defaultRecords      = 50
	defaultInvalidRatio = 0.1
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 250 * time.Millisecond
	defaultPollTimeout  = 60 * time.Second
	defaultTestTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numBatches   = flag.Int("batches", defaultNumBatches, "Number of batches to generate and submit")
		records      = flag.Int("records", defaultRecords, "Number of loan records per batch")
		invalidRatio = flag.Float64("invalid", defaultInvalidRatio, "Fraction of records generated with violations")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile   = flag.String("output", "", "Output file for generated batches (default: generated_batches_TIMESTAMP.json)")
		logFile      = flag.String("log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testbatches.ShowHelp()
		return
	}

	// Setup logging
	if err := testbatches.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	// Create test configuration
	config := &testbatches.Config{
		BaseURL:         *baseURL,
		NumBatches:      *numBatches,
		RecordsPerBatch: *records,
		InvalidRatio:    *invalidRatio,
		Workers:         *workers,
		Timeout:         *timeout,
		PollInterval:    defaultPollInterval,
		PollTimeout:     defaultPollTimeout,
		OutputFile:      *outputFile,
		LogFile:         *logFile,
		Verbose:         *verbose,
	}

	// Run the test
	if err := testbatches.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		return
	}
}
