package testbatches

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cadencefin/riskpipe/pkg/logger"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// submitBatches submits batches concurrently using a worker pool and returns
// the batch IDs acknowledged by the service.
func submitBatches(ctx context.Context, config *Config, batches []batchPayload, stats *Stats) ([]string, error) {
	logger.Get().Info(ctx, "submitting batches",
		logger.Int("batches", len(batches)),
		logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/batches"

	var (
		accepted  int64
		duplicate int64
		rejected  int64
		submitted int64
	)

	batchChan := make(chan batchPayload, config.Workers*2)
	idChan := make(chan string, len(batches))
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for b := range batchChan {
				select {
				case <-ctx.Done():
					return
				default:
					id, result := submitSingleBatch(ctx, client, url, b)

					atomic.AddInt64(&submitted, 1)
					switch result {
					case "accepted":
						atomic.AddInt64(&accepted, 1)
						idChan <- id
					case "duplicate":
						atomic.AddInt64(&duplicate, 1)
					case "rejected":
						atomic.AddInt64(&rejected, 1)
					}

					if config.Verbose {
						logger.Get().Debug(ctx, "batch submitted",
							logger.String("batchID", id),
							logger.String("result", result))
					}
				}
			}
		}()
	}

	go func() {
		defer close(batchChan)
		for _, b := range batches {
			select {
			case <-ctx.Done():
				return
			case batchChan <- b:
			}
		}
	}()

	wg.Wait()
	close(idChan)

	ids := make([]string, 0, len(batches))
	for id := range idChan {
		ids = append(ids, id)
	}

	stats.BatchesSubmitted = int(atomic.LoadInt64(&submitted))
	stats.BatchesAccepted = int(atomic.LoadInt64(&accepted))
	stats.BatchesDuplicate = int(atomic.LoadInt64(&duplicate))
	stats.BatchesRejected = int(atomic.LoadInt64(&rejected))

	logger.Get().Info(ctx, "batch submission completed",
		logger.Int("accepted", stats.BatchesAccepted),
		logger.Int("duplicate", stats.BatchesDuplicate),
		logger.Int("rejected", stats.BatchesRejected))

	return ids, nil
}

// submitSingleBatch submits a single batch and classifies the outcome.
func submitSingleBatch(ctx context.Context, client *HTTPClient, url string, b batchPayload) (string, string) {
	resp, err := client.Post(ctx, url, b)
	if err != nil {
		return "", "rejected"
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return "", "rejected"
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		var ack ackResponse
		if err := json.Unmarshal(body, &ack); err == nil {
			return ack.BatchID, "accepted"
		}
		return "", "accepted"
	case http.StatusOK:
		// Repeated client_ref acknowledged without a new batch.
		return "", "duplicate"
	default:
		return "", "rejected"
	}
}
