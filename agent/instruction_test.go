package agent

import (
	"errors"
	"testing"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(InstructionContext) (string, error) { return m.text, m.err }

func newTestInstructionContext() InstructionContext {
	return InstructionContext{
		SessionID: "test-session",
		AgentName: "TestAgent",
		Vars:      map[string]any{"user_name": "Ada"},
	}
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	if !inst.IsStatic() {
		t.Fatalf("expected static instruction")
	}
	got, err := inst.Resolve(newTestInstructionContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "static instruction" {
		t.Fatalf("expected 'static instruction', got %q", got)
	}
}

func TestInstruction_TemplateVars(t *testing.T) {
	inst := NewInstructionFromText("Greet {{ .user_name }} politely. {{ .missing }}")
	got, err := inst.Resolve(newTestInstructionContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Greet Ada politely. " {
		t.Fatalf("unexpected render %q", got)
	}
}

func TestInstruction_NewInstructionFromFunc(t *testing.T) {
	inst := NewInstructionFromFunc(func(ic InstructionContext) (string, error) { return "dynamic for " + ic.SessionID, nil })
	if inst.IsStatic() {
		t.Fatalf("expected dynamic instruction")
	}
	got, err := inst.Resolve(newTestInstructionContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "dynamic for test-session" {
		t.Fatalf("expected 'dynamic for test-session', got %q", got)
	}
}

func TestInstruction_NewInstructionFromProvider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "provider text"})
	if inst.IsStatic() {
		t.Fatalf("expected dynamic instruction")
	}
	got, err := inst.Resolve(newTestInstructionContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "provider text" {
		t.Fatalf("expected 'provider text', got %q", got)
	}
}

func TestInstruction_ErrorPropagation(t *testing.T) {
	expectedErr := errors.New("boom")
	inst := NewInstructionFromProvider(mockProvider{err: expectedErr})
	_, err := inst.Resolve(newTestInstructionContext())
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}
}
