package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/raaf/core"
)

func newToolContext(vars map[string]any) *core.ToolContext {
	return core.NewToolContext(context.Background(), core.ToolContextConfig{
		RunID:     "run-1",
		SessionID: "sess-1",
		AgentName: "assistant",
		CallID:    "call-1",
		Vars:      vars,
	})
}

func weatherTool(t *testing.T, calls *int32) *FunctionTool {
	t.Helper()
	wt, err := NewFunctionTool("get_weather", "Get the weather",
		[]Param{
			{Name: "location", Type: "string", Required: true},
			{Name: "units", Type: "string", Default: "metric", Enum: []any{"metric", "imperial"}},
			{Name: "days", Type: "integer", Default: 1},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			atomic.AddInt32(calls, 1)
			return fmt.Sprintf("%s: sunny (%s, %v days)", args["location"], args["units"], args["days"]), nil
		})
	require.NoError(t, err)
	return wt
}

// -------------------- Schema construction --------------------

func TestNewSchema_RejectsInvalidDeclarations(t *testing.T) {
	tests := []struct {
		name   string
		params []Param
	}{
		{"bad name", []Param{{Name: "has space", Type: "string"}}},
		{"duplicate", []Param{{Name: "a", Type: "string"}, {Name: "a", Type: "string"}}},
		{"unknown type", []Param{{Name: "a", Type: "date"}}},
		{"default type", []Param{{Name: "a", Type: "integer", Default: "one"}}},
		{"required default", []Param{{Name: "a", Type: "string", Required: true, Default: "x"}}},
		{"enum type", []Param{{Name: "a", Type: "string", Enum: []any{1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchema(tt.params...)
			assert.Error(t, err)
		})
	}
}

func TestSchema_JSONSchema(t *testing.T) {
	s, err := NewSchema(
		Param{Name: "location", Type: "string", Required: true, Description: "City"},
		Param{Name: "units", Type: "string", Enum: []any{"metric", "imperial"}},
	)
	require.NoError(t, err)

	raw := s.JSONSchema()
	assert.Equal(t, "object", raw["type"])
	assert.Equal(t, []string{"location"}, raw["required"])
	props := raw["properties"].(map[string]any)
	assert.Contains(t, props, "location")
	assert.Contains(t, props, "units")
	assert.Len(t, s.Params(), 2)
}

func TestNewFunctionTool_Validation(t *testing.T) {
	_, err := NewFunctionTool("bad name!", "", nil, func(*core.ToolContext, map[string]any) (any, error) { return nil, nil })
	assert.Error(t, err)

	_, err = NewFunctionTool("ok", "", nil, nil)
	assert.Error(t, err)

	assert.Panics(t, func() {
		MustFunctionTool("x", "", []Param{{Name: "a", Type: "nope"}}, func(*core.ToolContext, map[string]any) (any, error) { return nil, nil })
	})
}

type searchArgs struct {
	Query string `json:"query" description:"Search query"`
	Limit int    `json:"limit,omitempty" default:"10"`
	Sort  string `json:"sort,omitempty" enum:"asc,desc"`
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	st, err := NewFunctionToolFromStruct("search", "Search", searchArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) { return args, nil })
	require.NoError(t, err)

	params := st.Schema().Params()
	require.Len(t, params, 3)
	assert.True(t, params[0].Required)
	assert.Equal(t, int64(10), params[1].Default)
	assert.Equal(t, []any{"asc", "desc"}, params[2].Enum)

	reg, err := NewRegistry(st)
	require.NoError(t, err)
	res := reg.Invoke(newToolContext(nil), "search", map[string]any{"query": "go"})
	require.True(t, res.OK(), res.Content())
	assert.Equal(t, int64(10), res.Payload.(map[string]any)["limit"])
}

// -------------------- Registry --------------------

func TestRegistry_DuplicateToolName(t *testing.T) {
	var calls int32
	reg, err := NewRegistry(weatherTool(t, &calls))
	require.NoError(t, err)

	err = reg.Register(weatherTool(t, &calls))
	assert.True(t, errors.Is(err, core.ErrDuplicateToolName))
	assert.Equal(t, "DuplicateToolName", core.KindOf(err))

	_, err = NewRegistry(weatherTool(t, &calls), weatherTool(t, &calls))
	assert.ErrorIs(t, err, core.ErrDuplicateToolName)
}

func TestRegistry_Freeze(t *testing.T) {
	var calls int32
	reg, err := NewRegistry()
	require.NoError(t, err)
	require.NoError(t, reg.Register(weatherTool(t, &calls)))
	assert.False(t, reg.Frozen())

	reg.Freeze()
	assert.True(t, reg.Frozen())
	err = reg.Register(MustFunctionTool("noop", "Does nothing", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, nil
	}))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	assert.Equal(t, []string{"get_weather"}, reg.Names())
}

func TestRegistry_MissingRequiredParameter(t *testing.T) {
	var calls int32
	reg, err := NewRegistry(weatherTool(t, &calls))
	require.NoError(t, err)

	res := reg.Invoke(newToolContext(nil), "get_weather", map[string]any{})
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "MissingRequiredParameter: location", res.Payload)
	assert.ErrorIs(t, res.Err, core.ErrMissingRequiredParameter)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "tool must not be called")

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","payload":"MissingRequiredParameter: location"}`, string(out))
}

func TestRegistry_TypeMismatch(t *testing.T) {
	var calls int32
	reg, err := NewRegistry(weatherTool(t, &calls))
	require.NoError(t, err)

	res := reg.Invoke(newToolContext(nil), "get_weather", map[string]any{"location": 42.0})
	assert.Equal(t, "TypeMismatch: location: expected string, got integer", res.Payload)
	assert.ErrorIs(t, res.Err, core.ErrTypeMismatch)

	res = reg.Invoke(newToolContext(nil), "get_weather", map[string]any{"location": "Paris", "days": 1.5})
	assert.Equal(t, "TypeMismatch: days: expected integer, got number", res.Payload)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestRegistry_DefaultsAndEnum(t *testing.T) {
	var calls int32
	reg, err := NewRegistry(weatherTool(t, &calls))
	require.NoError(t, err)

	res := reg.Invoke(newToolContext(nil), "get_weather", map[string]any{"location": "Paris"})
	require.True(t, res.OK())
	assert.Equal(t, "Paris: sunny (metric, 1 days)", res.Content())

	res = reg.Invoke(newToolContext(nil), "get_weather", map[string]any{"location": "Paris", "units": "kelvin"})
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, core.ErrInvalidArgument)
	assert.Contains(t, res.Content(), "InvalidArgument: ")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRegistry_UnknownTool(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	res := reg.Invoke(newToolContext(nil), "launch_rocket", nil)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, `ToolExecutionError: unknown tool "launch_rocket"`, res.Payload)
	assert.ErrorIs(t, res.Err, core.ErrToolExecution)
}

func TestRegistry_ToolErrorAndPanic(t *testing.T) {
	failing := MustFunctionTool("fail", "", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, errors.New("backend down")
	})
	panicking := MustFunctionTool("boom", "", nil, func(*core.ToolContext, map[string]any) (any, error) {
		panic("kaboom")
	})
	reg, err := NewRegistry(failing, panicking)
	require.NoError(t, err)

	res := reg.Invoke(newToolContext(nil), "fail", nil)
	assert.Equal(t, "ToolExecutionError: fail: backend down", res.Payload)
	assert.ErrorIs(t, res.Err, core.ErrToolExecution)

	assert.NotPanics(t, func() {
		res = reg.Invoke(newToolContext(nil), "boom", nil)
	})
	assert.Equal(t, "ToolExecutionError: boom: panic: kaboom", res.Payload)
}

func TestRegistry_InvokeJSON(t *testing.T) {
	var calls int32
	reg, err := NewRegistry(weatherTool(t, &calls))
	require.NoError(t, err)

	res := reg.InvokeJSON(newToolContext(nil), "get_weather", json.RawMessage(`{"location":"Oslo","days":3}`))
	require.True(t, res.OK())
	assert.Equal(t, "Oslo: sunny (metric, 3 days)", res.Content())

	res = reg.InvokeJSON(newToolContext(nil), "get_weather", nil)
	assert.Equal(t, "MissingRequiredParameter: location", res.Payload)

	res = reg.InvokeJSON(newToolContext(nil), "get_weather", json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, res.Err, core.ErrInvalidArgument)
}

func TestRegistry_OrderAndNames(t *testing.T) {
	var calls int32
	tr, err := NewTransferToAgentTool()
	require.NoError(t, err)
	reg, err := NewRegistry(weatherTool(t, &calls), tr, NewContextVarsTool())
	require.NoError(t, err)

	assert.Equal(t, []string{"get_weather", TransferToAgentName, ContextVarsName}, reg.Names())
	assert.Equal(t, 3, reg.Len())
	_, ok := reg.Get("context_vars")
	assert.True(t, ok)
}

// -------------------- Built-in tools --------------------

func TestTransferToAgentTool(t *testing.T) {
	tr, err := NewTransferToAgentTool("billing", "support")
	require.NoError(t, err)
	reg, err := NewRegistry(tr)
	require.NoError(t, err)

	tc := newToolContext(nil)
	res := reg.Invoke(tc, TransferToAgentName, map[string]any{"agent": "billing"})
	require.True(t, res.OK())
	require.NotNil(t, tc.Actions().TransferToAgent)
	assert.Equal(t, "billing", *tc.Actions().TransferToAgent)

	tc = newToolContext(nil)
	res = reg.Invoke(tc, TransferToAgentName, map[string]any{"agent": "sales"})
	assert.ErrorIs(t, res.Err, core.ErrInvalidArgument)
	assert.Nil(t, tc.Actions().TransferToAgent)
}

type memoryStub struct {
	stored []string
}

func (m *memoryStub) Get(string) (map[string]any, error)   { return nil, nil }
func (m *memoryStub) Put(string, map[string]any) error     { return nil }
func (m *memoryStub) Delete(string, string) error          { return nil }
func (m *memoryStub) Search(_ context.Context, _ string, q string, limit int) ([]core.SearchResult, error) {
	return []core.SearchResult{{ID: "m1", Content: "likes " + q, Score: 1}}, nil
}
func (m *memoryStub) Store(_ context.Context, _ string, content string, _ map[string]any) (string, error) {
	m.stored = append(m.stored, content)
	return fmt.Sprintf("mem_%d", len(m.stored)), nil
}

func TestContextVarsTool(t *testing.T) {
	reg, err := NewRegistry(NewContextVarsTool())
	require.NoError(t, err)

	tc := newToolContext(map[string]any{"plan": "pro"})
	res := reg.Invoke(tc, ContextVarsName, map[string]any{"operation": "get_var", "key": "plan"})
	require.True(t, res.OK())
	assert.Equal(t, "pro", res.Payload.(map[string]any)["value"])

	res = reg.Invoke(tc, ContextVarsName, map[string]any{"operation": "set_var", "key": "plan", "value": "team"})
	require.True(t, res.OK())
	assert.Equal(t, map[string]any{"plan": "team"}, tc.Actions().VarsDelta)

	res = reg.Invoke(tc, ContextVarsName, map[string]any{"operation": "get_var"})
	assert.Equal(t, "MissingRequiredParameter: key (for get_var)", res.Payload)

	res = reg.Invoke(tc, ContextVarsName, map[string]any{"operation": "search_memory", "query": "tea"})
	assert.False(t, res.OK(), "no memory store configured")

	mem := &memoryStub{}
	tc = core.NewToolContext(context.Background(), core.ToolContextConfig{SessionID: "s", Memory: mem})
	res = reg.Invoke(tc, ContextVarsName, map[string]any{"operation": "store_memory", "content": "likes tea"})
	require.True(t, res.OK())
	assert.Equal(t, "mem_1", res.Payload.(map[string]any)["memory_id"])

	res = reg.Invoke(tc, ContextVarsName, map[string]any{"operation": "search_memory", "query": "tea"})
	require.True(t, res.OK())
	assert.Equal(t, 1, res.Payload.(map[string]any)["count"])
}

func TestFetchPageTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><style>p{}</style><script>var x=1;</script></head>
<body><h1>Title</h1>  <p>Hello &amp;   world</p></body></html>`))
	}))
	defer srv.Close()

	reg, err := NewRegistry(NewFetchPageTool(func(o *FetchPageOptions) { o.Client = srv.Client(); o.MaxChars = 13 }))
	require.NoError(t, err)

	res := reg.Invoke(newToolContext(nil), FetchPageName, map[string]any{"url": srv.URL})
	require.True(t, res.OK(), res.Content())
	payload := res.Payload.(map[string]any)
	assert.Equal(t, "Title Hello &", payload["text"])
	assert.Equal(t, true, payload["truncated"])

	res = reg.Invoke(newToolContext(nil), FetchPageName, map[string]any{"url": srv.URL + "/missing"})
	assert.ErrorIs(t, res.Err, core.ErrToolExecution)

	res = reg.Invoke(newToolContext(nil), FetchPageName, map[string]any{"url": "ftp://example.com"})
	assert.ErrorIs(t, res.Err, core.ErrInvalidArgument)
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "a b", htmlToText([]byte("<p>a</p>\n\n<noscript>x</noscript><p>b</p>")))
}
