// Package houston implements the outbound notification client the ingest
// path calls after a batch is created or updated. A flaky Houston endpoint
// must never cascade into ingest-path latency or failure: every error is
// logged and swallowed.
package houston

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// Status is the Houston batch-processing status code sent with each
// notification. The ingest path only ever sends StatusAccepted (3) and
// StatusCompleted (4).
type Status int

const (
	StatusAccepted  Status = 3
	StatusCompleted Status = 4
)

// Notifier is the interface internal/api depends on.
type Notifier interface {
	Notify(ctx context.Context, batchID uuid.UUID, status Status, completed bool) error
}

// Client implements Notifier over HTTP, carrying the same circuit-breaker
// shape as internal/operator/apiclient.Client so a struggling Houston
// deployment degrades into fast no-ops instead of blocking ingest
// goroutines on dial timeouts.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        logr.Logger

	circuitBreaker *circuitBreaker
}

// NewClient constructs a Client against baseURL (HOUSTON_URL), authenticating
// with token (HOUSTON_TOKEN).
func NewClient(baseURL, token string, timeout time.Duration, log logr.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.WithName("houston-client"),
		circuitBreaker: &circuitBreaker{
			maxFailures:  3,
			resetTimeout: 60 * time.Second,
			state:        circuitClosed,
		},
	}
}

type notifyRequest struct {
	BatchID   uuid.UUID `json:"batch_id"`
	Status    Status    `json:"status"`
	Completed bool      `json:"completed"`
}

// Notify sends one status notification to Houston. Errors are logged and
// swallowed — never returned — because the ingest path must never fail
// just because Houston is down.
func (c *Client) Notify(ctx context.Context, batchID uuid.UUID, status Status, completed bool) error {
	if c.baseURL == "" {
		return nil
	}

	if err := c.circuitBreaker.check(); err != nil {
		c.log.V(1).Info("houston circuit breaker open, skipping notification", "batch_id", batchID)
		return nil
	}

	body, err := json.Marshal(notifyRequest{BatchID: batchID, Status: status, Completed: completed})
	if err != nil {
		c.log.Error(err, "failed to marshal houston notification")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notify", bytes.NewReader(body))
	if err != nil {
		c.log.Error(err, "failed to build houston request")
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.circuitBreaker.recordFailure()
		c.log.Error(err, "houston notification failed", "batch_id", batchID)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		c.circuitBreaker.recordFailure()
		c.log.Error(fmt.Errorf("houston returned %d", resp.StatusCode), "houston notification rejected", "batch_id", batchID)
		return nil
	}

	c.circuitBreaker.recordSuccess()
	return nil
}

// circuitBreaker mirrors internal/operator/apiclient.CircuitBreaker's
// closed/open/half-open shape.
type circuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	failureCount int
	lastFailTime time.Time
	state        circuitState
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func (b *circuitBreaker) check() error {
	switch b.state {
	case circuitOpen:
		if time.Since(b.lastFailTime) > b.resetTimeout {
			b.state = circuitHalfOpen
			return nil
		}
		return fmt.Errorf("circuit breaker open")
	default:
		return nil
	}
}

func (b *circuitBreaker) recordFailure() {
	b.failureCount++
	b.lastFailTime = time.Now()
	if b.failureCount >= b.maxFailures {
		b.state = circuitOpen
	}
}

func (b *circuitBreaker) recordSuccess() {
	b.failureCount = 0
	b.state = circuitClosed
}
