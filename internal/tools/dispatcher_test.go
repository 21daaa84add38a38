package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name   string
	schema string
	callFn func(ctx context.Context, args string) string
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "a fake tool for tests" }
func (f *fakeTool) MCPJsonSchema() string {
	if f.schema != "" {
		return f.schema
	}
	return `{"name":"` + f.name + `","description":"fake","inputSchema":{"type":"object"}}`
}
func (f *fakeTool) Call(ctx context.Context, args string) string { return f.callFn(ctx, args) }

type fakeQuota struct {
	allow   bool
	used    []string
}

func (q *fakeQuota) AllowFeature(ctx context.Context, userID int64, feature string) (bool, error) {
	return q.allow, nil
}
func (q *fakeQuota) RecordUsage(ctx context.Context, userID int64, feature string) error {
	q.used = append(q.used, feature)
	return nil
}

func TestDispatchUnknownTool(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, nil)

	result := d.Call(context.Background(), 1, "nope", "{}")

	var obj map[string]string
	require.NoError(t, json.Unmarshal([]byte(result), &obj))
	assert.Equal(t, "unknown_tool", obj["error"])
}

func TestDispatchSuccess(t *testing.T) {
	reg := NewRegistry()
	tool := &fakeTool{name: "echo", callFn: func(ctx context.Context, args string) string {
		return `{"echoed":true}`
	}}
	require.NoError(t, reg.Register(tool, ""))

	d := NewDispatcher(reg, nil)
	result := d.Call(context.Background(), 1, "echo", "{}")
	assert.JSONEq(t, `{"echoed":true}`, result)
}

func TestDispatchWrapsBareStringResult(t *testing.T) {
	reg := NewRegistry()
	tool := &fakeTool{name: "echo", callFn: func(ctx context.Context, args string) string {
		return "plain text"
	}}
	require.NoError(t, reg.Register(tool, ""))

	d := NewDispatcher(reg, nil)
	result := d.Call(context.Background(), 1, "echo", "{}")
	assert.JSONEq(t, `{"result":"plain text"}`, result)
}

func TestDispatchThrottled(t *testing.T) {
	reg := NewRegistry()
	tool := &fakeTool{name: "weather", callFn: func(ctx context.Context, args string) string { return "{}" }}
	require.NoError(t, reg.Register(tool, "weather"))

	q := &fakeQuota{allow: false}
	d := NewDispatcher(reg, q)

	result := d.Call(context.Background(), 1, "weather", "{}")
	var obj map[string]string
	require.NoError(t, json.Unmarshal([]byte(result), &obj))
	assert.Equal(t, "throttled", obj["error"])
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	reg := NewRegistry()
	tool := &fakeTool{name: "boom", callFn: func(ctx context.Context, args string) string {
		panic("kaboom")
	}}
	require.NoError(t, reg.Register(tool, ""))

	d := NewDispatcher(reg, nil)
	result := d.Call(context.Background(), 1, "boom", "{}")

	var obj map[string]string
	require.NoError(t, json.Unmarshal([]byte(result), &obj))
	assert.Equal(t, "internal_error", obj["error"])
}

func TestRegistryDisabledToolHidden(t *testing.T) {
	reg := NewRegistry()
	tool := &fakeTool{name: "toggle", callFn: func(ctx context.Context, args string) string { return "{}" }}
	require.NoError(t, reg.Register(tool, ""))
	require.Len(t, reg.Definitions(), 1)

	reg.SetEnabled("toggle", false)
	assert.Len(t, reg.Definitions(), 0)

	d := NewDispatcher(reg, nil)
	result := d.Call(context.Background(), 1, "toggle", "{}")
	var obj map[string]string
	require.NoError(t, json.Unmarshal([]byte(result), &obj))
	assert.Equal(t, "unknown_tool", obj["error"])
}
