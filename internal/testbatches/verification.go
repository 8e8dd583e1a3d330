package testbatches

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cadencefin/riskpipe/pkg/logger"
)

// awaitOutcomes polls each accepted batch until it reaches a terminal state
// or the poll timeout elapses, then checks the committed reports for
// consistency.
func awaitOutcomes(ctx context.Context, config *Config, batchIDs []string, stats *Stats) error {
	logger.Get().Info(ctx, "waiting for batch outcomes", logger.Int("batches", len(batchIDs)))

	client := newHTTPClient(config.Timeout)

	for _, id := range batchIDs {
		report, err := pollBatch(ctx, client, config, id)
		if err != nil {
			stats.BatchesTimedOut++
			logger.Get().Warn(ctx, "batch did not settle", logger.String("batchID", id), logger.Error(err))
			continue
		}

		switch report.State {
		case "committed":
			stats.BatchesCommitted++
			if err := checkReport(report); err != nil {
				return fmt.Errorf("batch %s: %w", id, err)
			}
		case "failed":
			stats.BatchesFailed++
			logger.Get().Warn(ctx, "batch failed",
				logger.String("batchID", id),
				logger.String("kind", report.FatalKind))
		default:
			stats.BatchesTimedOut++
		}
	}

	logger.Get().Info(ctx, "batch outcomes collected",
		logger.Int("committed", stats.BatchesCommitted),
		logger.Int("failed", stats.BatchesFailed),
		logger.Int("timedOut", stats.BatchesTimedOut))
	return nil
}

// pollBatch fetches the batch report until the state is terminal.
func pollBatch(ctx context.Context, client *HTTPClient, config *Config, batchID string) (batchReport, error) {
	deadline := time.Now().Add(config.PollTimeout)
	url := config.BaseURL + "/batches/" + batchID

	for {
		if time.Now().After(deadline) {
			return batchReport{}, fmt.Errorf("timed out after %s", config.PollTimeout)
		}
		if err := ctx.Err(); err != nil {
			return batchReport{}, err
		}

		resp, err := client.Get(ctx, url)
		if err != nil {
			return batchReport{}, fmt.Errorf("failed to fetch batch: %w", err)
		}
		body, err := readResponseBody(resp)
		if err != nil {
			return batchReport{}, fmt.Errorf("failed to read batch response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return batchReport{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		var status batchStatus
		if err := json.Unmarshal(body, &status); err != nil {
			return batchReport{}, fmt.Errorf("failed to decode batch response: %w", err)
		}

		switch status.Report.State {
		case "committed", "failed":
			return status.Report, nil
		}

		select {
		case <-ctx.Done():
			return batchReport{}, ctx.Err()
		case <-time.After(config.PollInterval):
		}
	}
}

// checkReport verifies the committed counts are internally consistent:
// every record is either valid or invalid, and scored plus excluded
// accounts for every valid record.
func checkReport(r batchReport) error {
	if r.Valid+r.Invalid != r.Total {
		return fmt.Errorf("valid %d + invalid %d != total %d", r.Valid, r.Invalid, r.Total)
	}
	if r.Scored+r.Excluded+r.MissingRef > r.Valid {
		return fmt.Errorf("scored %d + excluded %d + missing_ref %d exceeds valid %d",
			r.Scored, r.Excluded, r.MissingRef, r.Valid)
	}
	return nil
}
