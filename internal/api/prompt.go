package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ashureev/formfill/internal/domain"
	"github.com/ashureev/formfill/internal/orchestrator"
	"github.com/ashureev/formfill/internal/tools"
	"github.com/go-chi/chi/v5"
)

const readyCheckTimeout = 5 * time.Second

type sendPromptRequest struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type formCallRequest struct {
	Forms   []json.RawMessage `json:"forms"`
	Context string            `json:"context"`
}

type formCallResponse struct {
	Messages  string  `json:"messages"`
	Responses *string `json:"responses"`
}

// RegisterRoutes registers the assistant routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/sendprompt", h.SendPrompt)
		r.Post("/helpthread", h.HelpThread)
		r.Post("/formcall", h.FormCall)
		r.Get("/ready", h.Ready)
	})
}

// SendPrompt sends the user's content to the helper assistant on an existing thread.
func (h *Handler) SendPrompt(w http.ResponseWriter, r *http.Request) {
	var req sendPromptRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" || req.Content == "" {
		Error(w, http.StatusBadRequest, "Missing required parameters 'id' or 'content'")
		return
	}

	ctx := r.Context()
	reply, err := h.runner.Execute(ctx, h.session(h.helper, req.ID), req.Content)
	h.recordRun(ctx, req.ID, h.helper.ID, reply, err)
	if err != nil {
		h.logger.Error("Prompt failed", "thread_id", req.ID, "error", err)
		internalError(w, err)
		return
	}

	if err := h.repo.TouchSession(ctx, req.ID, time.Now()); err != nil {
		h.logger.Warn("Failed to touch session", "thread_id", req.ID, "error", err)
	}

	JSON(w, http.StatusOK, map[string]string{"messages": reply.Text})
}

// HelpThread creates a new thread for helper conversations.
func (h *Handler) HelpThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	thread, err := h.newThread(ctx, domain.SessionKindHelper, h.helper.Name)
	if err != nil {
		h.logger.Error("Failed to create helper thread", "error", err)
		internalError(w, err)
		return
	}

	h.logger.Info("Helper thread created", "thread_id", thread.ID)
	JSON(w, http.StatusOK, map[string]string{"id": thread.ID})
}

// FormCall asks the form filling assistant to fill the submitted forms on a fresh thread.
func (h *Handler) FormCall(w http.ResponseWriter, r *http.Request) {
	var req formCallRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content, err := BuildFormContent(req.Forms, req.Context)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid forms")
		return
	}

	ctx := r.Context()
	thread, err := h.newThread(ctx, domain.SessionKindForm, h.form.Name)
	if err != nil {
		h.logger.Error("Failed to create form thread", "error", err)
		internalError(w, err)
		return
	}

	h.logger.Info("Form call received", "thread_id", thread.ID, "forms", len(req.Forms), "has_context", req.Context != "")

	reply, err := h.runner.Execute(ctx, h.session(h.form, thread.ID), content)
	h.recordRun(ctx, thread.ID, h.form.ID, reply, err)
	if err != nil {
		h.logger.Error("Form call failed", "thread_id", thread.ID, "error", err)
		internalError(w, err)
		return
	}

	resp := formCallResponse{Messages: reply.Text}
	if responses, ok := capturedResponses(reply); ok {
		resp.Responses = &responses
		if err := h.repo.SaveFormSubmission(ctx, &domain.FormSubmission{
			ThreadID:  thread.ID,
			RunID:     reply.RunID,
			Responses: responses,
			CreatedAt: time.Now(),
		}); err != nil {
			h.logger.Warn("Failed to save form submission", "thread_id", thread.ID, "error", err)
		}
	}

	JSON(w, http.StatusOK, resp)
}

// Ready reports whether the database is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	status := map[string]interface{}{
		"status": "ready",
		"checks": map[string]string{"api": "ok"},
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		h.logger.Error("Readiness check failed", "error", err)
		status["status"] = "degraded"
		status["checks"].(map[string]string)["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		status["checks"].(map[string]string)["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

func (h *Handler) session(p Profile, threadID string) orchestrator.Session {
	return orchestrator.Session{
		ThreadID:     threadID,
		AssistantID:  p.ID,
		Instructions: p.Instructions,
	}
}

func (h *Handler) newThread(ctx context.Context, kind domain.SessionKind, assistantName string) (domain.Thread, error) {
	thread, err := h.threads.CreateThread(ctx)
	if err != nil {
		return domain.Thread{}, &orchestrator.Error{Kind: orchestrator.KindRemoteService, Op: "create thread", Err: err}
	}

	now := time.Now()
	if err := h.repo.CreateSession(ctx, &domain.Session{
		ThreadID:      thread.ID,
		Kind:          kind,
		AssistantName: assistantName,
		CreatedAt:     now,
		LastUsedAt:    now,
	}); err != nil {
		h.logger.Warn("Failed to persist session", "thread_id", thread.ID, "error", err)
	}
	return thread, nil
}

// recordRun writes the run audit entry. Failures are logged, never surfaced.
func (h *Handler) recordRun(ctx context.Context, threadID, assistantID string, reply *orchestrator.Reply, runErr error) {
	rec := &domain.RunRecord{
		ThreadID:    threadID,
		AssistantID: assistantID,
		CreatedAt:   time.Now(),
	}
	if reply != nil {
		rec.RunID = reply.RunID
		rec.Status = reply.Status
		rec.Rounds = reply.Rounds
	}
	var oe *orchestrator.Error
	if errors.As(runErr, &oe) {
		rec.RunID = oe.RunID
		rec.Status = oe.Status
		rec.Rounds = oe.Rounds
		rec.ErrorKind = string(oe.Kind)
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if rec.RunID == "" {
		// The run was never created.
		return
	}
	if err := h.repo.RecordRun(ctx, rec); err != nil {
		h.logger.Warn("Failed to record run", "thread_id", threadID, "run_id", rec.RunID, "error", err)
	}
}

// capturedResponses returns the responses argument of the last fill_forms call in the run.
func capturedResponses(reply *orchestrator.Reply) (string, bool) {
	for i := len(reply.Invocations) - 1; i >= 0; i-- {
		inv := reply.Invocations[i]
		if inv.Call.Name != tools.FillFormsName {
			continue
		}
		args, err := tools.DecodeFillForms(inv.Call.Arguments)
		if err != nil {
			continue
		}
		return string(args.Responses), true
	}
	return "", false
}
