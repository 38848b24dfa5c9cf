// Package syncclient keeps a local copy of one ledger in step with the server
// by pulling its change log.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rongwang/tally-server/internal/apperr"
	"github.com/rongwang/tally-server/internal/models"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
)

// Client calls the RPC surface as one user
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry sets the attempt limit and the base delay between attempts.
// The delay grows linearly with the attempt number.
func WithRetry(attempts int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.backoff = backoff
	}
}

// NewClient creates a client for the server at baseURL presenting token
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attempts:   defaultAttempts,
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes procedure with in and decodes its result into out. Failures
// with a retryable code are retried up to the attempt limit; every other
// failure is returned at once.
func (c *Client) Call(ctx context.Context, procedure string, in, out interface{}) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err = c.call(ctx, procedure, in, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !apperr.Retryable(apperr.CodeOf(err)) || attempt == c.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return err
}

type envelope struct {
	Status  string          `json:"status"`
	Result  json.RawMessage `json:"result"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

func (c *Client) call(ctx context.Context, procedure string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("error encoding %s input: %w", procedure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+procedure, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error building %s request: %w", procedure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Internal(fmt.Errorf("error calling %s: %w", procedure, err))
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		// No envelope, so the status code is all there is
		return &apperr.Error{
			Code:    apperr.CodeFromStatus(resp.StatusCode),
			Message: fmt.Sprintf("%s: unexpected response (%d)", procedure, resp.StatusCode),
			Err:     err,
		}
	}

	if env.Status != "success" {
		code := apperr.Code(env.Code)
		if code == "" {
			code = apperr.CodeFromStatus(resp.StatusCode)
		}
		return &apperr.Error{Code: code, Message: env.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("error decoding %s result: %w", procedure, err)
	}
	return nil
}

// Templates lists a ledger's templates
func (c *Client) Templates(ctx context.Context, ledgerID string) ([]models.Template, error) {
	var templates []models.Template
	err := c.Call(ctx, "template.getForLedger", models.LedgerRef{LedgerID: ledgerID}, &templates)
	return templates, err
}

// Entries lists a ledger's entries
func (c *Client) Entries(ctx context.Context, ledgerID string) ([]models.Entry, error) {
	var entries []models.Entry
	err := c.Call(ctx, "entry.getForLedger", models.LedgerRef{LedgerID: ledgerID}, &entries)
	return entries, err
}

// UpdatesSince returns the ledger's change records newer than since
func (c *Client) UpdatesSince(ctx context.Context, ledgerID string, since time.Time) (*models.UpdatesSinceResponse, error) {
	var resp models.UpdatesSinceResponse
	err := c.Call(ctx, "getUpdatesSince", models.UpdatesSinceRequest{
		LedgerRef: models.LedgerRef{LedgerID: ledgerID},
		Since:     since,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
