package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangfeng/cherrycake-gateway/pkg/action"
	"github.com/wangfeng/cherrycake-gateway/pkg/request"
)

type recorder struct {
	names []string
}

func (r *recorder) MapAction(name string, _ *action.Action) error {
	r.names = append(r.names, name)
	return nil
}

func TestMapActions(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, New("1.0.0", nil).MapActions(rec))
	assert.Equal(t, []string{"health", "version"}, rec.names)
}

func TestHealth(t *testing.T) {
	m := New("1.0.0", map[string]Checker{
		"database": CheckFunc(func(context.Context) error { return nil }),
	})
	require.NoError(t, m.Init(context.Background()))

	call := &action.Call{Values: request.NewValues(nil)}
	out := m.Methods()["health"](context.Background(), call)
	require.True(t, out.IsAccepted())
	assert.Equal(t, http.StatusOK, call.Response.StatusCode())

	var body map[string]any
	require.NoError(t, json.Unmarshal(call.Response.Body, &body))
	assert.Equal(t, "UP", body["status"])

	m.checks["redis"] = CheckFunc(func(context.Context) error { return errors.New("connection refused") })
	call = &action.Call{Values: request.NewValues(nil)}
	m.Methods()["health"](context.Background(), call)
	assert.Equal(t, http.StatusServiceUnavailable, call.Response.StatusCode())
}

func TestVersion(t *testing.T) {
	m := New("2.3.4", nil)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }
	require.NoError(t, m.Init(context.Background()))
	m.now = func() time.Time { return start.Add(90 * time.Second) }

	call := &action.Call{Values: request.NewValues(nil)}
	require.True(t, m.Methods()["version"](context.Background(), call).IsAccepted())
	assert.JSONEq(t, `{"name":"Cherrycake Gateway","version":"2.3.4","uptime":"1m30s"}`, string(call.Response.Body))
}
