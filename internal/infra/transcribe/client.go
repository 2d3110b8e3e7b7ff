package transcribe

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

// Transcriber is the call contract of the external speech-to-text model.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// Client implements Transcriber over JSON HTTP.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new transcription service client.
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

// Transcribe fetches a transcript for the audio at audioURL.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (string, error) {
	reqBody := map[string]string{"audio_url": audioURL}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", domain.WrapPermanent("encode_request", "marshal transcription request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", domain.WrapPermanent("build_request", "create transcription request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.WrapTransient("network_error", "transcription call failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.WrapTransient("read_response", "read transcription response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", domain.NewTransientError("rate_limited", "transcription service rate limited the request")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", domain.NewAuthError("unauthorized", "transcription service rejected credentials")
	case resp.StatusCode >= 500:
		return "", domain.NewTransientError("service_unavailable", fmt.Sprintf("transcription service returned %d", resp.StatusCode))
	default:
		return "", domain.NewPermanentError("rejected", fmt.Sprintf("transcription service returned %d", resp.StatusCode))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", domain.WrapPermanent("decode_response", "parse transcription response", err)
	}
	return out.Text, nil
}
