package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/runner"
)

type postMessageRequest struct {
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	Agent    string         `json:"agent,omitempty"`
	MaxTurns int            `json:"max_turns,omitempty"`
}

type postMessageResponse struct {
	Response string          `json:"response"`
	Usage    core.Usage      `json:"usage"`
	Success  bool            `json:"success"`
	Agent    string          `json:"agent"`
	RunID    string          `json:"run_id"`
	Turns    int             `json:"turns"`
	Error    *core.ErrorInfo `json:"error,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

type sessionResponse struct {
	ID            string         `json:"id"`
	Messages      []core.Message `json:"messages"`
	Vars          map[string]any `json:"vars"`
	TokenEstimate int            `json:"token_estimate"`
	Created       time.Time      `json:"created"`
	Updated       time.Time      `json:"updated"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
}

func (h *handlers) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if strings.TrimSpace(sessionID) == "" {
		writeInvalidRequest(w, "session id is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxRequestBodyBytes)
	var req postMessageRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeMappedError(w, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeInvalidRequest(w, "message is required")
		return
	}
	if req.MaxTurns < 0 {
		writeInvalidRequest(w, "max_turns must be >= 0")
		return
	}

	res, err := h.svc.Run(r.Context(), sessionID, req.Agent, req.Message, func(o *runner.RunOptions) {
		o.MaxTurns = req.MaxTurns
		o.Context = req.Context
	})
	if err != nil && !isRunFailure(err) {
		writeMappedError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, postMessageResponse{
		Response: res.Output(),
		Usage:    res.Usage,
		Success:  res.Success,
		Agent:    res.AgentName,
		RunID:    res.RunID,
		Turns:    res.Turns,
		Error:    res.Error,
		Warnings: res.Warnings,
	})
}

func (h *handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}

	resp := sessionResponse{
		ID:            sess.ID,
		Messages:      sess.GetMessages(),
		Vars:          sess.VarsSnapshot(),
		TokenEstimate: sess.TokenEstimate,
		Created:       sess.Created,
		Updated:       sess.Updated,
	}
	if !sess.ExpiresAt.IsZero() {
		exp := sess.ExpiresAt
		resp.ExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearSession(r.Context(), r.PathValue("id")); err != nil {
		writeMappedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"agents": h.svc.Agents()})
}
