package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/raaf/config"
	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/guardrail"
	"github.com/hupe1980/raaf/model"
	"github.com/hupe1980/raaf/session"
)

const definitions = `agents:
  - name: triage
    instructions: Route the user.
    tools: [context_vars]
    handoffs: [billing]
  - name: billing
    model: gpt-4o
    instructions: You handle invoices.
    handoffs: [triage]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func mockConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Provider.Type = "mock"
	cfg.Logging.Level = "error"
	cfg.Agents.Path = filepath.Join(t.TempDir(), "missing")
	return cfg
}

func TestRun_AgentsCommand(t *testing.T) {
	dir := t.TempDir()
	defs := writeFile(t, dir, "agents.yaml", definitions)
	cfgPath := writeFile(t, dir, "raaf.yaml", "provider:\n  type: mock\n")

	var out bytes.Buffer
	require.NoError(t, run(t.Context(), []string{"-config", cfgPath, "agents", "-path", defs}, &out))

	assert.Contains(t, out.String(), "NAME")
	assert.Regexp(t, `triage\s+-\s+context_vars,transfer_to_agent\s+billing`, out.String())
	assert.Regexp(t, `billing\s+gpt-4o\s+transfer_to_agent\s+triage`, out.String())
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "raaf.yaml", "provider:\n  type: mock\n")

	var out bytes.Buffer
	assert.Error(t, run(t.Context(), []string{"-config", cfgPath}, &out), "missing command")
	assert.ErrorContains(t, run(t.Context(), []string{"-config", cfgPath, "fly"}, &out), `unknown command "fly"`)
	assert.Error(t, run(t.Context(), []string{"-config", filepath.Join(dir, "nope.yaml"), "agents"}, &out))

	bad := writeFile(t, dir, "bad.yaml", "agents:\n  - name: a\n    tools: [teleport]\n")
	assert.ErrorContains(t, run(t.Context(), []string{"-config", cfgPath, "agents", "-path", bad}, &out), "build agents")
}

func TestBuildProvider(t *testing.T) {
	p, err := buildProvider(config.ProviderConfig{Type: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &model.MockProvider{}, p)

	for _, typ := range []string{"openai", "anthropic"} {
		p, err := buildProvider(config.ProviderConfig{Type: typ, Model: "m", APIKey: "test"})
		require.NoError(t, err, typ)
		assert.NotNil(t, p)
	}

	_, err = buildProvider(config.ProviderConfig{Type: "acme"})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestBuildMemory(t *testing.T) {
	tests := []struct {
		strategy string
		want     string
	}{
		{"sliding_window", "sliding_window"},
		{"summarization", "summarization"},
		{"semantic", "semantic"},
		{"hybrid", "hybrid"},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			cfg := config.Default().Memory
			cfg.Strategy = tt.strategy
			cfg.LLMSummaries = true
			m := buildMemory(cfg, model.NewMockProvider("mock"), nil)

			sess := core.NewSession("s1")
			require.NoError(t, sess.SetSystemMessage(core.NewSystemMessage("You are terse.")))
			require.NoError(t, sess.AddMessage(core.NewUserMessage("hi")))

			w, err := m.BuildContext(t.Context(), sess, 1000)
			require.NoError(t, err)
			assert.Equal(t, tt.want, w.Strategy)
			assert.Len(t, w.Messages, 2)
		})
	}
}

func TestBuildToolGuardrails(t *testing.T) {
	assert.Nil(t, buildToolGuardrails(config.GuardrailsConfig{}, nil))

	chain := buildToolGuardrails(config.GuardrailsConfig{AllowedTools: []string{"context_vars"}, RedactSecret: true}, nil)
	require.NotNil(t, chain)

	d := chain.Evaluate(t.Context(), guardrail.Input{Stage: guardrail.StageToolCall, ToolName: "fetch_page", Content: "{}"})
	assert.Equal(t, guardrail.Block, d.Action)

	d = chain.Evaluate(t.Context(), guardrail.Input{Stage: guardrail.StageToolCall, ToolName: "context_vars", Content: `{"value":"password=hunter2"}`})
	assert.Equal(t, guardrail.Redact, d.Action)
}

func TestLoadAgents_MissingPathFallsBackToAssistant(t *testing.T) {
	specs, err := loadAgents(config.AgentsConfig{Path: filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "assistant", specs[0].Name())
}

func TestStartJanitor(t *testing.T) {
	cfg := mockConfig(t)
	cfg.Session.TTL = time.Millisecond
	a, err := newApp(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.close() })

	_, err = a.raaf.Run(t.Context(), "idle", "", "hello")
	require.NoError(t, err)
	store, ok := a.sessions.(*session.InMemoryStore)
	require.True(t, ok)

	stop := startJanitor(t.Context(), a, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	stop()

	startJanitor(t.Context(), a, 0)()
}

func TestChatSession(t *testing.T) {
	cfg := mockConfig(t)
	a, err := newApp(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.close() })

	var out bytes.Buffer
	s := &chatSession{app: a, out: &out, sessionID: "chat", agent: ""}

	assert.False(t, s.handle(t.Context(), "hello"))
	assert.Contains(t, out.String(), "assistant>")
	assert.Contains(t, out.String(), "Mock response to: hello")

	out.Reset()
	assert.False(t, s.handle(t.Context(), "/agent ghost"))
	assert.Contains(t, out.String(), `unknown agent "ghost"`)

	out.Reset()
	assert.False(t, s.handle(t.Context(), "/reset"))
	assert.Contains(t, out.String(), "session cleared")
	_, err = a.raaf.Session(t.Context(), "chat")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	assert.True(t, s.handle(t.Context(), "/quit"))
}
