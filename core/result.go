package core

// Usage captures token counters reported by providers.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates other into u. A missing total is derived from the parts.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	total := other.TotalTokens
	if total == 0 {
		total = other.PromptTokens + other.CompletionTokens
	}
	u.TotalTokens += total
}

// Result is the outcome of one run. It is always well-formed: a failed run
// still carries the messages produced before the failure.
type Result struct {
	RunID     string     `json:"run_id"`
	SessionID string     `json:"session_id"`
	Messages  []Message  `json:"messages"`
	Usage     Usage      `json:"usage"`
	Success   bool       `json:"success"`
	AgentName string     `json:"agent_name"`
	Turns     int        `json:"turns"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Warnings  []string   `json:"warnings,omitempty"`
}

// Output returns the content of the last plain assistant message, or "".
func (r *Result) Output() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		m := r.Messages[i]
		if m.Role == RoleAssistant && !m.HasToolCalls() && !m.Summary {
			return m.Content
		}
	}
	return ""
}

// Warn appends a non-fatal warning once.
func (r *Result) Warn(msg string) {
	for _, w := range r.Warnings {
		if w == msg {
			return
		}
	}
	r.Warnings = append(r.Warnings, msg)
}

// Fail marks the result unsuccessful with err's descriptor.
func (r *Result) Fail(err error) {
	r.Success = false
	r.Error = NewErrorInfo(err)
}
