package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/grader/internal/core/domain"
)

func TestScoreSuccess(t *testing.T) {
	var gotAuth string
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Response{
			Score:        82,
			Feedback:     "clear and concise",
			WhatChanged:  []string{"shortened the opener"},
			PracticeRule: "one idea per sentence",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api-key-123", 5*time.Second)
	resp, err := c.Score(context.Background(), &Request{RequestID: "req-1", Content: "the answer"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if resp.Score != 82 || resp.Feedback != "clear and concise" {
		t.Errorf("response = %+v, want server payload", resp)
	}
	if gotAuth != "Bearer api-key-123" {
		t.Errorf("Authorization = %q, want bearer credential", gotAuth)
	}
	if gotReq.RequestID != "req-1" || gotReq.Content != "the answer" {
		t.Errorf("request sent = %+v, want submitted fields", gotReq)
	}
}

func TestScoreStatusClassification(t *testing.T) {
	cases := map[string]struct {
		status   int
		wantKind domain.ErrorKind
		wantCode string
	}{
		"rate limited":  {http.StatusTooManyRequests, domain.KindTransient, "rate_limited"},
		"unauthorized":  {http.StatusUnauthorized, domain.KindAuth, "unauthorized"},
		"forbidden":     {http.StatusForbidden, domain.KindAuth, "unauthorized"},
		"bad request":   {http.StatusBadRequest, domain.KindPermanent, "rejected"},
		"unprocessable": {http.StatusUnprocessableEntity, domain.KindPermanent, "rejected"},
		"server error":  {http.StatusInternalServerError, domain.KindTransient, "service_unavailable"},
		"bad gateway":   {http.StatusBadGateway, domain.KindTransient, "service_unavailable"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "", 5*time.Second)
			_, err := c.Score(context.Background(), &Request{RequestID: "req-1", Content: "x"})
			if err == nil {
				t.Fatalf("Score() error = nil for status %d", tc.status)
			}
			if got := domain.KindOf(err); got != tc.wantKind {
				t.Errorf("kind = %v, want %v", got, tc.wantKind)
			}
			if got := domain.CodeOf(err); got != tc.wantCode {
				t.Errorf("code = %q, want %q", got, tc.wantCode)
			}
		})
	}
}

func TestScoreNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Score(context.Background(), &Request{RequestID: "req-1", Content: "x"})
	if err == nil {
		t.Fatal("Score() error = nil against closed server")
	}
	if got := domain.KindOf(err); got != domain.KindTransient {
		t.Errorf("kind = %v, want transient", got)
	}
	if !domain.Retryable(err) {
		t.Error("network error not retryable")
	}
}

func TestScoreMalformedBodyIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Score(context.Background(), &Request{RequestID: "req-1", Content: "x"})
	if err == nil {
		t.Fatal("Score() error = nil for malformed body")
	}
	if got := domain.KindOf(err); got != domain.KindPermanent {
		t.Errorf("kind = %v, want permanent (retry will not fix parsing)", got)
	}
}
