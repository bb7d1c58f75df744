// Package ledger provides a client for the expense application of record.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the application-of-record operations the reconciliation
// core depends on: one write and one lookup.
type Client interface {
	// Create writes a single expense and returns its record reference.
	Create(ctx context.Context, input ExpenseInput, identity string) (*Record, error)
	// List returns the current expense collection for duplicate suppression
	// and diffing.
	List(ctx context.Context) ([]Expense, error)
}

// ExpenseInput is the create payload.
type ExpenseInput struct {
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description"`
}

// Record is the reference returned for a created expense.
type Record struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// Expense is one existing record in the application of record.
type Expense struct {
	ID          string  `json:"id"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description"`
}

// APIError is a non-2xx response from the ledger service. It exposes the
// status code and any Retry-After hint so callers can classify it without
// depending on this package's internals.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger: %d %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// RetryAfterHint returns the server-supplied backoff hint, zero if absent.
func (e *APIError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// Option configures the ledger client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a ledger client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://ledger.sellsadvisors.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createRequest struct {
	ExpenseInput
	SubmittedBy string `json:"submitted_by"`
}

func (c *httpClient) Create(ctx context.Context, input ExpenseInput, identity string) (*Record, error) {
	body, err := json.Marshal(createRequest{ExpenseInput: input, SubmittedBy: identity})
	if err != nil {
		return nil, eris.Wrap(err, "ledger: marshal create request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/expenses", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "ledger: build create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: create expense")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(resp)
	}

	var record Record
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, eris.Wrap(err, "ledger: decode create response")
	}
	return &record, nil
}

type listResponse struct {
	Expenses []Expense `json:"expenses"`
}

func (c *httpClient) List(ctx context.Context) ([]Expense, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/expenses", nil)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: build list request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list expenses")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiError(resp)
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, eris.Wrap(err, "ledger: decode list response")
	}
	return list.Expenses, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// apiError reads the response into an APIError, preserving the Retry-After
// header for rate-limited requests.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := http.StatusText(resp.StatusCode)
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		message = parsed.Error
	}

	var retryAfter time.Duration
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		RetryAfter: retryAfter,
	}
}
