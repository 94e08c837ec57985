// Package api provides HTTP handlers for the form filling API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/formfill/internal/domain"
	"github.com/ashureev/formfill/internal/orchestrator"
	"github.com/ashureev/formfill/internal/store"
)

// Runner executes one prompt against an assistant on a thread.
type Runner interface {
	Execute(ctx context.Context, sess orchestrator.Session, content string) (*orchestrator.Reply, error)
}

// ThreadCreator creates remote conversation threads.
type ThreadCreator interface {
	CreateThread(ctx context.Context) (domain.Thread, error)
}

// Profile identifies the remote assistant a route talks to.
type Profile struct {
	Name         string
	ID           string
	Instructions string
}

// Handler provides common handler utilities.
type Handler struct {
	repo         store.Repository
	threads      ThreadCreator
	runner       Runner
	helper       Profile
	form         Profile
	maxBodyBytes int64
	logger       *slog.Logger
}

// Options configures a Handler.
type Options struct {
	Helper       Profile
	Form         Profile
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, threads ThreadCreator, runner Runner, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handler{
		repo:         repo,
		threads:      threads,
		runner:       runner,
		helper:       opts.Helper,
		form:         opts.Form,
		maxBodyBytes: maxBody,
		logger:       logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// internalError writes the 500 body shared by every orchestration failure.
func internalError(w http.ResponseWriter, err error) {
	body := map[string]string{
		"error":   "Internal Server Error",
		"details": err.Error(),
	}
	if kind := orchestrator.KindOf(err); kind != "" {
		body["kind"] = string(kind)
	}
	JSON(w, http.StatusInternalServerError, body)
}

// decodeBody reads a size limited JSON body into v. An empty body leaves v untouched.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
