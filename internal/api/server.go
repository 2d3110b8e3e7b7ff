package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/grader/internal/core/domain"
	"github.com/vietddude/grader/internal/eval/intake"
)

// HealthChecker reports reachability of a backing dependency.
type HealthChecker func(ctx context.Context) error

// Server exposes the evaluation protocol over HTTP.
type Server struct {
	svc         *intake.Service
	authToken   string
	healthCheck HealthChecker // may be nil
	server      *http.Server
}

// NewServer creates the HTTP server.
func NewServer(svc *intake.Service, port int, authToken string, healthCheck HealthChecker) *Server {
	mux := http.NewServeMux()
	s := &Server{
		svc:         svc,
		authToken:   authToken,
		healthCheck: healthCheck,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("POST /evaluate", s.withAuth(s.handleEvaluate))
	mux.HandleFunc("GET /evaluate/status/{jobID}", s.withAuth(s.handleStatus))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type evaluateResponse struct {
	Status      string                   `json:"status"`
	Result      *domain.EvaluationResult `json:"result,omitempty"`
	PollURL     string                   `json:"poll_url,omitempty"`
	PollAfterMs int64                    `json:"poll_after_ms,omitempty"`
	Error       *errorBody               `json:"error,omitempty"`
}

type statusResponse struct {
	Status      string                   `json:"status"`
	Result      *domain.EvaluationResult `json:"result"`
	PollAfterMs int64                    `json:"poll_after_ms"`
	Error       *errorBody               `json:"error,omitempty"`
}

// withAuth enforces the bearer credential when one is configured.
// Credential issuance and verification beyond equality belong to the
// auth collaborator, not this service.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token != s.authToken {
				writeJSON(w, http.StatusUnauthorized, evaluateResponse{
					Status: "failed",
					Error:  &errorBody{Code: "unauthorized", Message: "missing or invalid bearer credential"},
				})
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req domain.EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, evaluateResponse{
			Status: "failed",
			Error:  &errorBody{Code: "invalid_json", Message: "request body is not valid JSON"},
		})
		return
	}

	outcome, err := s.svc.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	switch outcome.Status {
	case intake.StatusCompleted:
		writeJSON(w, http.StatusOK, evaluateResponse{Status: "completed", Result: outcome.Result})
	case intake.StatusFailed:
		writeJSON(w, http.StatusInternalServerError, evaluateResponse{
			Status: "failed",
			Error:  &errorBody{Code: outcome.ErrorCode, Message: outcome.ErrorMessage},
		})
	default: // queued / processing
		writeJSON(w, http.StatusAccepted, evaluateResponse{
			Status:      string(outcome.Status),
			PollURL:     "/evaluate/status/" + outcome.JobID,
			PollAfterMs: outcome.PollAfter.Milliseconds(),
		})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobID")

	outcome, err := s.svc.Status(r.Context(), jobID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	switch outcome.Status {
	case intake.StatusNotFound:
		writeJSON(w, http.StatusNotFound, statusResponse{
			Status: "not_found",
			Error:  &errorBody{Code: "not_found", Message: "no job or result for this id"},
		})
	case intake.StatusCompleted:
		writeJSON(w, http.StatusOK, statusResponse{Status: "completed", Result: outcome.Result})
	case intake.StatusFailed:
		writeJSON(w, http.StatusOK, statusResponse{
			Status: "failed",
			Error:  &errorBody{Code: outcome.ErrorCode, Message: outcome.ErrorMessage},
		})
	default:
		writeJSON(w, http.StatusOK, statusResponse{
			Status:      string(outcome.Status),
			PollAfterMs: outcome.PollAfter.Milliseconds(),
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if s.healthCheck != nil {
		if err := s.healthCheck(r.Context()); err != nil {
			slog.Warn("Health check failed", "error", err)
			status = "critical"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// writeError maps a tagged error onto a stable wire shape. Callers
// never see raw internals, only a code and a short message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	code := domain.CodeOf(err)

	httpStatus := http.StatusInternalServerError
	message := "internal error"
	switch kind {
	case domain.KindValidation:
		httpStatus = http.StatusBadRequest
		var de *domain.Error
		if errors.As(err, &de) {
			message = de.Message
		}
	case domain.KindAuth:
		httpStatus = http.StatusUnauthorized
		message = "unauthorized"
	default:
		message = "evaluation service is temporarily unavailable"
	}

	writeJSON(w, httpStatus, evaluateResponse{
		Status: "failed",
		Error:  &errorBody{Code: code, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
