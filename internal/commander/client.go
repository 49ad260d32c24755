// Package commander is the client for the vault server's service mode API.
//
// Service mode only exposes an asynchronous "submit command, poll for
// result" HTTP protocol: POST /executecommand-async returns an opaque
// request_id, and GET /result/{request_id} is polled with capped exponential
// backoff until a terminal status or the bounded wait elapses. There is no
// push channel. Results are classified into an explicit Outcome instead of
// being raised as errors, so callers pattern-match on the kind.
//
// Thread safety: the client performs no internal concurrency and is safe for
// concurrent use; each Execute call tracks its own request_id.
package commander

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/vaultops/warden/internal/backoff"
	"github.com/vaultops/warden/internal/observability"
)

const (
	submitPath      = "/executecommand-async"
	resultPath      = "/result/"
	queueStatusPath = "/queue/status"

	// DefaultMaxWait bounds result polling when the caller does not care.
	DefaultMaxWait = 15 * time.Second

	// requestTimeout bounds a single HTTP round trip to the service.
	requestTimeout = 10 * time.Second

	// pollRequestTimeout bounds a single result poll. Shorter than
	// requestTimeout so a stalled poll does not eat the whole wait budget.
	pollRequestTimeout = 5 * time.Second

	// DefaultServerDomain is used when the server cannot report its domain.
	DefaultServerDomain = "vaultops.com"
)

// JobHandle correlates exactly one in-flight remote job. Handles are opaque
// and never reused.
type JobHandle struct {
	RequestID string
}

// SubmissionError indicates the remote job could not be started: the
// submission endpoint returned something other than 202 Accepted, or
// accepted the command without issuing a request_id.
type SubmissionError struct {
	HTTPStatus       int
	MissingRequestID bool
}

func (e *SubmissionError) Error() string {
	if e.MissingRequestID {
		return "submission accepted without request_id"
	}
	return fmt.Sprintf("submission rejected: HTTP %d", e.HTTPStatus)
}

// Config holds configuration for the service mode client.
type Config struct {
	// ServiceURL is the base URL of the service mode server (required).
	ServiceURL string

	// APIKey authenticates requests via the api-key header (optional).
	APIKey string

	// HTTPClient overrides the HTTP client (optional).
	HTTPClient *http.Client

	// MaxWait bounds result polling for ordinary commands. Zero means
	// DefaultMaxWait. Searches use a longer fixed bound.
	MaxWait time.Duration

	// Logger is the structured logger (optional).
	Logger *observability.Logger

	// Metrics records command outcomes (optional).
	Metrics *observability.Metrics
}

// Client talks to one service mode server.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	apiKey  string

	http    *http.Client
	poll    backoff.Policy
	maxWait time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics

	domainMu     sync.Mutex
	serverDomain string
}

// NewClient creates a service mode client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	return &Client{
		baseURL: trimBaseURL(cfg.ServiceURL),
		apiKey:  cfg.APIKey,
		http:    httpClient,
		poll:    backoff.PollPolicy(),
		maxWait: maxWait,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

func trimBaseURL(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}

// UpdateCredentials swaps the service URL and API key without restarting.
// In-flight requests finish against the old endpoint.
func (c *Client) UpdateCredentials(serviceURL, apiKey string) {
	c.mu.Lock()
	c.baseURL = trimBaseURL(serviceURL)
	if apiKey != "" {
		c.apiKey = apiKey
	}
	c.mu.Unlock()

	c.domainMu.Lock()
	c.serverDomain = ""
	c.domainMu.Unlock()

	c.logger.Info(context.Background(), "service mode credentials updated", "service_url", serviceURL)
}

// ServiceURL returns the current base URL.
func (c *Client) ServiceURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// HealthCheck reports whether the service mode server is reachable.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pollRequestTimeout)
	defer cancel()

	resp, err := c.get(ctx, queueStatusPath)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return resp.StatusCode == http.StatusOK
}

// Submit sends a command for asynchronous execution and returns the job
// handle. A non-202 response or a 202 without a request_id yields a
// *SubmissionError; any other failure is transport-level.
func (c *Client) Submit(ctx context.Context, command string) (JobHandle, error) {
	payload, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return JobHandle{}, fmt.Errorf("encode command: %w", err)
	}

	resp, err := c.post(ctx, submitPath, payload)
	if err != nil {
		return JobHandle{}, fmt.Errorf("submit command: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return JobHandle{}, &SubmissionError{HTTPStatus: resp.StatusCode}
	}

	var accepted struct {
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return JobHandle{}, fmt.Errorf("decode submission response: %w", err)
	}
	if accepted.RequestID == "" {
		return JobHandle{}, &SubmissionError{HTTPStatus: resp.StatusCode, MissingRequestID: true}
	}

	return JobHandle{RequestID: accepted.RequestID}, nil
}

// PollResult polls for the terminal result of a submitted job, waiting at
// most maxWait. The poll interval starts at 500ms and grows by 1.5x per
// non-terminal poll, capped at 2s. HTTP 400 ends polling immediately with a
// RemoteError regardless of the body's status field; the service signals
// unrecoverable command failures that way on some endpoints. Transport
// faults abort immediately and are never retried here: re-submitting is the
// caller's decision.
func (c *Client) PollResult(ctx context.Context, handle JobHandle, maxWait time.Duration) Outcome {
	ctx = context.WithValue(ctx, observability.RequestIDKey, handle.RequestID)

	var elapsed time.Duration
	attempt := 1

	for elapsed < maxWait {
		outcome, terminal := c.pollOnce(ctx, handle)
		if terminal {
			return outcome
		}

		step := c.poll.Step(attempt)
		if err := backoff.Sleep(ctx, step); err != nil {
			return Outcome{Kind: KindTransportError, Err: err}
		}
		elapsed += step
		attempt++
	}

	c.logger.Warn(ctx, "polling timed out", "max_wait", maxWait.String())
	return Outcome{Kind: KindTimeout}
}

// pollOnce performs a single result poll. The second return value reports
// whether the outcome is terminal.
func (c *Client) pollOnce(ctx context.Context, handle JobHandle) (Outcome, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, pollRequestTimeout)
	defer cancel()

	resp, err := c.get(reqCtx, resultPath+handle.RequestID)
	if err != nil {
		c.logger.Error(ctx, "error polling for result", "error", err)
		return Outcome{Kind: KindTransportError, Err: err}, true
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Kind: KindTransportError, Err: fmt.Errorf("read result body: %w", err)}, true
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var envelope resultEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return Outcome{Kind: KindTransportError, Err: fmt.Errorf("decode result body: %w", err)}, true
		}
		switch envelope.Status {
		case statusSuccess:
			return Outcome{Kind: KindSuccess, Data: envelope.Data, Message: envelope.Message.Join()}, true
		case statusError:
			text := envelope.errorText()
			c.logger.Error(ctx, "command failed", "error", text)
			return Outcome{Kind: KindRemoteError, Message: text, Data: envelope.Data}, true
		case statusPending, statusRunning:
			return Outcome{}, false
		default:
			c.logger.Warn(ctx, "unknown result status", "status", envelope.Status)
			return Outcome{}, false
		}

	case http.StatusAccepted:
		c.logger.Debug(ctx, "async command still processing")
		return Outcome{}, false

	case http.StatusBadRequest:
		// Terminal no matter what the body says: on some endpoints the
		// service reports command failure as a 400, not via a body status.
		c.logger.Error(ctx, "poll returned 400, ending poll")
		var envelope resultEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return Outcome{
				Kind:       KindRemoteError,
				Message:    "command execution failed",
				HTTPStatus: http.StatusBadRequest,
			}, true
		}
		return Outcome{
			Kind:       KindRemoteError,
			Message:    envelope.errorText(),
			Data:       envelope.Data,
			HTTPStatus: http.StatusBadRequest,
		}, true

	default:
		c.logger.Warn(ctx, "unexpected poll status", "http_status", resp.StatusCode)
		return Outcome{}, false
	}
}

// Execute submits a command and waits for its classified result. A failed
// submission short-circuits without polling.
func (c *Client) Execute(ctx context.Context, command string, maxWait time.Duration) Outcome {
	start := time.Now()
	outcome := c.execute(ctx, command, maxWait)
	if c.metrics != nil {
		c.metrics.CommandExecuted(outcome.Kind.String(), time.Since(start).Seconds())
	}
	return outcome
}

func (c *Client) execute(ctx context.Context, command string, maxWait time.Duration) Outcome {
	handle, err := c.Submit(ctx, command)
	if err != nil {
		var submission *SubmissionError
		if errors.As(err, &submission) {
			return Outcome{Kind: KindSubmissionFailed, HTTPStatus: submission.HTTPStatus}
		}
		return Outcome{Kind: KindTransportError, Err: err}
	}
	return c.PollResult(ctx, handle, maxWait)
}

// ServerDomain returns the vault server's domain, fetched once via the
// "server" command and cached. Falls back to DefaultServerDomain on any
// failure so link building never blocks on a sick server.
func (c *Client) ServerDomain(ctx context.Context) string {
	c.domainMu.Lock()
	defer c.domainMu.Unlock()

	if c.serverDomain != "" {
		return c.serverDomain
	}

	outcome := c.Execute(ctx, "server", 10*time.Second)
	if !outcome.OK() || outcome.Message == "" {
		c.logger.Warn(ctx, "could not fetch server domain, using default", "outcome", outcome.Kind.String())
		return DefaultServerDomain
	}

	c.serverDomain = outcome.Message
	return c.serverDomain
}

func (c *Client) post(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	c.mu.RLock()
	base, key := c.baseURL, c.apiKey
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("api-key", key)
	}
	return c.http.Do(req)
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	c.mu.RLock()
	base, key := c.baseURL, c.apiKey
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return nil, err
	}
	if key != "" {
		req.Header.Set("api-key", key)
	}
	return c.http.Do(req)
}
