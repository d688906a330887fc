package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runloop-ai/runloop/core"
)

func TestRegistry_ExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("echo", func(_ context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	}))

	result, err := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "hi", result)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }
	require.NoError(t, r.Register("dup", noop))
	assert.Error(t, r.Register("dup", noop))
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "missing", nil, 0)

	var actErr *Error
	require.True(t, errors.As(err, &actErr))
	assert.Equal(t, CodeNotFound, actErr.Code)
	assert.Equal(t, "missing", actErr.Action)
}

func TestRegistry_Timeout(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("slow", func(_ context.Context, _ map[string]any) (any, error) {
		time.Sleep(500 * time.Millisecond)
		return "too late", nil
	}))

	_, err := r.Execute(context.Background(), "slow", nil, 20*time.Millisecond)
	var actErr *Error
	require.True(t, errors.As(err, &actErr))
	assert.Equal(t, CodeTimeout, actErr.Code)
}

func TestRegistry_HandlerErrorAndPanic(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("fails", func(context.Context, map[string]any) (any, error) {
		return nil, fmt.Errorf("boom")
	}))
	require.NoError(t, r.Register("panics", func(context.Context, map[string]any) (any, error) {
		panic("unexpected")
	}))

	_, err := r.Execute(context.Background(), "fails", nil, 0)
	var actErr *Error
	require.True(t, errors.As(err, &actErr))
	assert.Equal(t, CodeHandlerError, actErr.Code)

	_, err = r.Execute(context.Background(), "panics", nil, 0)
	require.True(t, errors.As(err, &actErr))
	assert.Equal(t, CodeHandlerError, actErr.Code)
	assert.Contains(t, actErr.Message, "panic")
}

func TestFunctionAction_SchemaValidation(t *testing.T) {
	sum, err := NewFunctionAction(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []any{"a", "b"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)
	require.NoError(t, err)

	r := NewRegistry()
	require.NoError(t, r.RegisterFunction(sum))
	assert.True(t, r.Lookup("calculate_sum"))

	result, err := r.Execute(context.Background(), "calculate_sum",
		map[string]any{"a": float64(2), "b": float64(3)}, 0)
	require.NoError(t, err)
	assert.Equal(t, float64(5), result)

	_, err = r.Execute(context.Background(), "calculate_sum",
		map[string]any{"a": float64(2)}, 0)
	var actErr *Error
	require.True(t, errors.As(err, &actErr))
	assert.Equal(t, CodeValidation, actErr.Code)
}

func TestDecodeArgsAndEncodeResult(t *testing.T) {
	args, err := DecodeArgs("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = DecodeArgs(`{"q":"go"}`)
	require.NoError(t, err)
	assert.Equal(t, "go", args["q"])

	_, err = DecodeArgs(`{"broken`)
	assert.Error(t, err)

	enc, err := EncodeResult(map[string]any{"n": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, enc)

	enc, err = EncodeResult("already a string")
	require.NoError(t, err)
	assert.Equal(t, "already a string", enc)

	enc, err = EncodeResult(nil)
	require.NoError(t, err)
	assert.Empty(t, enc)
}

func newEndpointServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/actions":
			json.NewEncoder(w).Encode([]core.ActionSpec{
				{Name: "lookup", Description: "Remote lookup"},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/actions/lookup":
			var req endpointCallRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(endpointCallResponse{
				Result: json.RawMessage(`{"found":true}`),
			})
		case r.Method == http.MethodPost && r.URL.Path == "/actions/broken":
			json.NewEncoder(w).Encode(endpointCallResponse{Error: "upstream unavailable"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestEndpointClient_DiscoverAndCall(t *testing.T) {
	srv := newEndpointServer(t)
	defer srv.Close()
	c := NewEndpointClient(srv.URL)
	ctx := context.Background()

	specs, err := c.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "lookup", specs[0].Name)
	assert.Equal(t, core.AvailabilityRemote, specs[0].Availability,
		"discovered specs must route back to the endpoint")

	result, err := c.Call(ctx, "lookup", map[string]any{"q": "go"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"found": true}, result)
}

func TestEndpointClient_ErrorMapping(t *testing.T) {
	srv := newEndpointServer(t)
	defer srv.Close()
	c := NewEndpointClient(srv.URL)
	ctx := context.Background()

	_, err := c.Call(ctx, "unknown", nil)
	var actErr *Error
	require.True(t, errors.As(err, &actErr))
	assert.Equal(t, CodeNotFound, actErr.Code)

	_, err = c.Call(ctx, "broken", nil)
	require.True(t, errors.As(err, &actErr))
	assert.Equal(t, CodeHandlerError, actErr.Code)
	assert.Contains(t, actErr.Message, "upstream unavailable")
}

func TestInvoker_RoutesLocalAndRemote(t *testing.T) {
	srv := newEndpointServer(t)
	defer srv.Close()

	r := NewRegistry()
	require.NoError(t, r.Register("local_echo", func(_ context.Context, args map[string]any) (any, error) {
		return args, nil
	}))
	inv := NewInvoker(r, NewEndpointClient(srv.URL), time.Second)
	ctx := context.Background()

	local, err := inv.Invoke(ctx, core.ActionSpec{Name: "local_echo"}, `{"x":1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, local)

	remote, err := inv.Invoke(ctx,
		core.ActionSpec{Name: "lookup", Availability: core.AvailabilityRemote}, `{"q":"go"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"found":true}`, remote)
}

func TestInvoker_RemoteWithoutEndpoint(t *testing.T) {
	inv := NewInvoker(NewRegistry(), nil, time.Second)
	_, err := inv.Invoke(context.Background(),
		core.ActionSpec{Name: "lookup", Availability: core.AvailabilityRemote}, "")

	var actErr *Error
	require.True(t, errors.As(err, &actErr))
	assert.Equal(t, CodeNotFound, actErr.Code)
}
