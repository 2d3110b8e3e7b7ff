package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vietddude/grader/internal/core/domain"
)

// Scorer is the call contract of the external scoring model.
type Scorer interface {
	Score(ctx context.Context, req *Request) (*Response, error)
}

// Request is the payload sent to the scoring service.
type Request struct {
	RequestID string            `json:"request_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Response is the structured feedback returned by the scoring service.
type Response struct {
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	WhatChanged  []string `json:"what_changed"`
	PracticeRule string   `json:"practice_rule"`
	TokensUsed   *int     `json:"tokens_used,omitempty"`
}

// Client implements Scorer over JSON HTTP.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new scoring service client.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Score submits content for evaluation. Errors carry a domain kind so
// the retry executor can classify them without message inspection.
func (c *Client) Score(ctx context.Context, req *Request) (*Response, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, domain.WrapPermanent("encode_request", "marshal scoring request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, domain.WrapPermanent("build_request", "create scoring request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Client-side timeouts and connection failures are transient.
		return nil, domain.WrapTransient("network_error", "scoring call failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapTransient("read_response", "read scoring response", err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, domain.WrapPermanent("decode_response", "parse scoring response", err)
	}
	return &out, nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy at the
// error's origin.
func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return domain.NewTransientError("rate_limited", "scoring service rate limited the request")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewAuthError("unauthorized", "scoring service rejected credentials")
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return domain.NewPermanentError("rejected", fmt.Sprintf("scoring service rejected input: %s", truncate(body)))
	case status >= 500:
		return domain.NewTransientError("service_unavailable", fmt.Sprintf("scoring service returned %d", status))
	default:
		return domain.NewPermanentError("unexpected_status", fmt.Sprintf("scoring service returned %d", status))
	}
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
