package guardrail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/raaf/core"
)

func TestChain_MostRestrictiveWins(t *testing.T) {
	ctx := context.Background()
	chain := NewChain([]Filter{SecretRedactor(), BlockedWords("forbidden")})

	d := chain.Evaluate(ctx, Input{Stage: StageOutput, Content: "hello"})
	assert.Equal(t, Allow, d.Action)
	assert.Equal(t, "hello", d.Content)
	assert.NoError(t, d.Err())

	d = chain.Evaluate(ctx, Input{Stage: StageOutput, Content: "api_key=abc123 ok"})
	assert.Equal(t, Redact, d.Action)
	assert.Equal(t, "[REDACTED] ok", d.Content)
	assert.Equal(t, "regex_redactor", d.Filter)

	d = chain.Evaluate(ctx, Input{Stage: StageOutput, Content: "password: x and FORBIDDEN"})
	assert.Equal(t, Block, d.Action)
	assert.Equal(t, "blocked_words", d.Filter)
	assert.Empty(t, d.Content)
	require.ErrorIs(t, d.Err(), core.ErrGuardrailTripped)
	assert.Equal(t, "GuardrailTripped", core.KindOf(d.Err()))
}

func TestChain_SequentialFeedsRedactedContent(t *testing.T) {
	// the blocked word only appears inside the redacted secret
	chain := NewChain([]Filter{SecretRedactor(), BlockedWords("hunter2")})
	d := chain.Evaluate(context.Background(), Input{Content: "password=hunter2"})
	assert.Equal(t, Redact, d.Action)
	assert.Equal(t, "[REDACTED]", d.Content)
}

func TestChain_Parallel(t *testing.T) {
	chain := NewChain([]Filter{SecretRedactor(), BlockedWords("hunter2"), MaxLength(1000)}, func(o *ChainOptions) {
		o.Parallel = true
	})
	d := chain.Evaluate(context.Background(), Input{Content: "password=hunter2"})
	assert.Equal(t, Block, d.Action, "parallel filters see the original content")
	assert.Equal(t, "blocked_words", d.Filter)

	d = chain.Evaluate(context.Background(), Input{Content: "secret: s3"})
	assert.Equal(t, Redact, d.Action)
	assert.Equal(t, "[REDACTED]", d.Content)
}

func TestChain_ParallelComposesRedactions(t *testing.T) {
	alpha, err := RegexRedactor("[A]", `alpha`)
	require.NoError(t, err)
	beta, err := RegexRedactor("[B]", `beta`)
	require.NoError(t, err)

	chain := NewChain([]Filter{alpha, MaxLength(100), beta}, func(o *ChainOptions) {
		o.Parallel = true
	})
	d := chain.Evaluate(context.Background(), Input{Content: "alpha beta"})
	assert.Equal(t, Redact, d.Action)
	assert.Equal(t, "[A] [B]", d.Content)

	d = chain.Evaluate(context.Background(), Input{Content: "only beta"})
	assert.Equal(t, Redact, d.Action)
	assert.Equal(t, "only [B]", d.Content)
}

func TestChain_FilterErrorsAndPanicsBlock(t *testing.T) {
	failing := FilterFunc{FilterName: "failing", Fn: func(context.Context, Input) (Decision, error) {
		return Decision{}, errors.New("backend down")
	}}
	panicking := FilterFunc{FilterName: "panicking", Fn: func(context.Context, Input) (Decision, error) {
		panic("boom")
	}}

	d := NewChain([]Filter{failing}).Evaluate(context.Background(), Input{Content: "x"})
	assert.Equal(t, Block, d.Action)
	assert.Contains(t, d.Reason, "backend down")

	d = NewChain([]Filter{panicking}).Evaluate(context.Background(), Input{Content: "x"})
	assert.Equal(t, Block, d.Action)
	assert.Equal(t, "panicking", d.Filter)
}

func TestNilChainAllows(t *testing.T) {
	var c *Chain
	d := c.Evaluate(context.Background(), Input{Content: "anything"})
	assert.Equal(t, Allow, d.Action)
	assert.Equal(t, "anything", d.Content)
	assert.Equal(t, 0, c.Len())
}

func TestToolAllowlist(t *testing.T) {
	f := ToolAllowlist("get_weather")
	chain := NewChain([]Filter{f})

	d := chain.Evaluate(context.Background(), Input{Stage: StageToolCall, ToolName: "get_weather", Content: "{}"})
	assert.Equal(t, Allow, d.Action)

	d = chain.Evaluate(context.Background(), Input{Stage: StageToolCall, ToolName: "rm_rf", Content: "{}"})
	assert.Equal(t, Block, d.Action)

	d = chain.Evaluate(context.Background(), Input{Stage: StageInput, Content: "rm_rf"})
	assert.Equal(t, Allow, d.Action)
}

func TestJSONSchema(t *testing.T) {
	f, err := JSONSchema([]byte(`{"type":"object","required":["answer"],"properties":{"answer":{"type":"string"}}}`))
	require.NoError(t, err)
	chain := NewChain([]Filter{f})

	assert.Equal(t, Allow, chain.Evaluate(context.Background(), Input{Content: `{"answer":"42"}`}).Action)

	d := chain.Evaluate(context.Background(), Input{Content: `{"answer":42}`})
	assert.Equal(t, Block, d.Action)
	assert.Contains(t, d.Reason, "schema validation errors")

	d = chain.Evaluate(context.Background(), Input{Content: "not json"})
	assert.Equal(t, "content is not valid JSON", d.Reason)

	_, err = JSONSchema([]byte(`{"type": 12}`))
	assert.Error(t, err)
}

func TestMaxLengthAndNames(t *testing.T) {
	chain := NewChain([]Filter{MaxLength(3)})
	assert.Equal(t, Allow, chain.Evaluate(context.Background(), Input{Content: "äöü"}).Action)
	assert.Equal(t, Block, chain.Evaluate(context.Background(), Input{Content: "abcd"}).Action)
	assert.Equal(t, []string{"max_length"}, chain.Names())

	_, err := RegexRedactor("", "(")
	assert.Error(t, err)
}
