package testbatches

import "time"

// Config holds configuration for the batch test
type Config struct {
	BaseURL         string        // Base URL of the service
	NumBatches      int           // Number of batches to generate
	RecordsPerBatch int           // Number of loan records per batch
	InvalidRatio    float64       // Fraction of records generated with violations
	Workers         int           // Number of concurrent workers
	Timeout         time.Duration // HTTP request timeout
	PollInterval    time.Duration // Delay between batch status polls
	PollTimeout     time.Duration // Give up waiting for a batch after this long
	OutputFile      string        // Output file for batches
	LogFile         string        // Log file for test output
	Verbose         bool          // Enable verbose logging
}

// recordPayload mirrors one raw record in a batch submission
type recordPayload struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	Source    string            `json:"source"`
	Fields    map[string]string `json:"fields"`
}

// batchPayload is the body of POST /batches
type batchPayload struct {
	ClientRef     string          `json:"client_ref"`
	SchemaVersion uint64          `json:"schema_version"`
	AsOf          string          `json:"as_of"`
	Records       []recordPayload `json:"records"`
}

// ackResponse represents the response from batch submission
type ackResponse struct {
	Status    string `json:"status"`
	BatchID   string `json:"batch_id"`
	Duplicate bool   `json:"duplicate"`
}

// batchReport mirrors the report section of GET /batches/{id}
type batchReport struct {
	BatchID    string `json:"batch_id"`
	State      string `json:"state"`
	FatalKind  string `json:"fatal_kind,omitempty"`
	Total      int    `json:"total"`
	Valid      int    `json:"valid"`
	Invalid    int    `json:"invalid"`
	Scored     int    `json:"scored"`
	MissingRef int    `json:"missing_ref"`
	Excluded   int    `json:"excluded"`
}

// batchStatus is the body of GET /batches/{id}
type batchStatus struct {
	Report batchReport `json:"report"`
}

// Stats holds test statistics
type Stats struct {
	BatchesGenerated int
	BatchesSubmitted int
	BatchesAccepted  int
	BatchesDuplicate int
	BatchesRejected  int
	BatchesCommitted int
	BatchesFailed    int
	BatchesTimedOut  int
	RecordsValid     int
	RecordsInvalid   int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
