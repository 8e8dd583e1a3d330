package testbatches

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cadencefin/riskpipe/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	violationDivisor   = 3
)

// Constants for loan field generation ranges.
const (
	balanceMin     = 50_000.0
	balanceRange   = 450_000.0
	valuationSlack = 1.25
	creditMin      = 450
	creditRange    = 380
	incomeMin      = 30_000.0
	incomeRange    = 170_000.0
)

// Violation flavors injected into generated records.
const (
	caseMissingBalance = 0
	caseBadNumber      = 1
	caseReversedDates  = 2
)

var geographies = []string{"US-CA", "US-TX", "US-NY", "US-FL", "US-WA"}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func getRandomInt(bound int64) int64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(bound))
	return n.Int64()
}

// generateBatches creates the configured number of loan batches. Each batch
// carries a unique client_ref so submissions are idempotent per batch.
func generateBatches(ctx context.Context, config *Config, stats *Stats) ([]batchPayload, error) {
	logger.Get().Info(ctx, "generating loan batches",
		logger.Int("numBatches", config.NumBatches),
		logger.Int("recordsPerBatch", config.RecordsPerBatch))

	asOf := time.Now().UTC().Truncate(time.Hour)
	batches := make([]batchPayload, config.NumBatches)

	for i := 0; i < config.NumBatches; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records := make([]recordPayload, config.RecordsPerBatch)
		for j := 0; j < config.RecordsPerBatch; j++ {
			invalid := getRandomFloat() < config.InvalidRatio
			records[j] = generateRecord(i, j, asOf, invalid)
			if invalid {
				stats.RecordsInvalid++
			} else {
				stats.RecordsValid++
			}
		}

		batches[i] = batchPayload{
			ClientRef:     "test-" + uuid.NewString(),
			SchemaVersion: 1,
			AsOf:          asOf.Format(time.RFC3339),
			Records:       records,
		}
	}

	stats.BatchesGenerated = len(batches)
	logger.Get().Info(ctx, "generated batches successfully", logger.Int("count", len(batches)))
	return batches, nil
}

// generateRecord builds one loan record. When invalid is true the record
// carries one of the violation flavors the validator must catch.
func generateRecord(batchIdx, recordIdx int, asOf time.Time, invalid bool) recordPayload {
	balance := balanceMin + getRandomFloat()*balanceRange
	valuation := balance * (1.0 + getRandomFloat()*valuationSlack)
	credit := creditMin + getRandomInt(creditRange)
	income := incomeMin + getRandomFloat()*incomeRange
	geography := geographies[getRandomInt(int64(len(geographies)))]
	effective := asOf.AddDate(-1-int(getRandomInt(5)), 0, 0)

	fields := map[string]string{
		"principal_balance":  strconv.FormatFloat(balance, 'f', 2, 64),
		"property_valuation": strconv.FormatFloat(valuation, 'f', 2, 64),
		"credit_score":       strconv.FormatInt(credit, 10),
		"annual_income":      strconv.FormatFloat(income, 'f', 2, 64),
		"geography":          geography,
		"effective_date":     effective.Format("2006-01-02"),
	}

	if invalid {
		switch getRandomInt(violationDivisor) {
		case caseMissingBalance:
			delete(fields, "principal_balance")
		case caseBadNumber:
			fields["credit_score"] = "not-a-number"
		case caseReversedDates:
			fields["termination_date"] = effective.AddDate(-1, 0, 0).Format("2006-01-02")
		}
	}

	return recordPayload{
		ID:        "loan_" + strconv.Itoa(batchIdx) + "_" + strconv.Itoa(recordIdx),
		Timestamp: asOf.Format(time.RFC3339),
		Source:    "test-batches",
		Fields:    fields,
	}
}
