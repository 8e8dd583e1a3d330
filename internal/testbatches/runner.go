package testbatches

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cadencefin/riskpipe/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// PercentageMultiplier converts a ratio to a percentage.
const PercentageMultiplier = 100.0

// Run executes the complete batch test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting riskpipe batch test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("batches", config.NumBatches),
		logger.Int("recordsPerBatch", config.RecordsPerBatch),
		logger.Float64("invalidRatio", config.InvalidRatio),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate batches
	batches, err := generateBatches(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("batch generation failed: %w", err)
	}

	// Step 3: Submit batches concurrently
	batchIDs, err := submitBatches(ctx, config, batches, stats)
	if err != nil {
		return fmt.Errorf("batch submission failed: %w", err)
	}

	// Step 4: Poll outcomes and verify committed reports
	if err := awaitOutcomes(ctx, config, batchIDs, stats); err != nil {
		return fmt.Errorf("outcome verification failed: %w", err)
	}

	// Step 5: Save batches to file
	if err := saveBatchesToFile(ctx, config, batches); err != nil {
		logger.Get().Warn(ctx, "failed to save batches to file", logger.Error(err))
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/healthz"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode != 200 {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveBatchesToFile saves the generated batches to a JSON file.
func saveBatchesToFile(ctx context.Context, config *Config, batches []batchPayload) error {
	if len(batches) == 0 {
		return fmt.Errorf("no batches to save")
	}

	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "generated_batches_" + timestamp + ".json"
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	if err := writeBatchesJSON(file, batches); err != nil {
		return err
	}

	logger.Get().Info(ctx, "batches saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var commitRate, batchesPerSecond float64

	if stats.BatchesAccepted > 0 {
		commitRate = float64(stats.BatchesCommitted) / float64(stats.BatchesAccepted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		batchesPerSecond = float64(stats.BatchesSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("batchesGenerated", stats.BatchesGenerated),
		logger.Int("batchesSubmitted", stats.BatchesSubmitted),
		logger.Int("batchesAccepted", stats.BatchesAccepted),
		logger.Int("batchesDuplicate", stats.BatchesDuplicate),
		logger.Int("batchesRejected", stats.BatchesRejected),
		logger.Int("batchesCommitted", stats.BatchesCommitted),
		logger.Int("batchesFailed", stats.BatchesFailed),
		logger.Int("batchesTimedOut", stats.BatchesTimedOut),
		logger.Int("recordsValid", stats.RecordsValid),
		logger.Int("recordsInvalid", stats.RecordsInvalid),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("commitRate", commitRate),
		logger.Float64("batchesPerSecond", batchesPerSecond))
}
