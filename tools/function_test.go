package tools_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherRequest struct {
	City  string        `json:"city" jsonschema:"description=City name"`
	Days  int           `json:"days,omitempty"`
	Delay time.Duration `json:"delay,omitempty"`
}

type weatherResponse struct {
	Status string `json:"status"`
	Report string `json:"report"`
}

func weather(_ context.Context, req *weatherRequest) (*weatherResponse, error) {
	if req.City == "" {
		return nil, errors.New("city is required")
	}
	return &weatherResponse{Status: "success", Report: req.City + " is sunny"}, nil
}

type echoRequest struct {
	Text string `json:"text"`
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echoes the text" }
func (echoTool) Run(_ context.Context, req *echoRequest) (*string, error) {
	return &req.Text, nil
}

func TestNewFunction(t *testing.T) {
	ctx := context.Background()

	d, err := tools.NewFunction("weather", "Returns the weather", weather)
	require.NoError(t, err)
	assert.Equal(t, tools.OriginLocal, d.Origin)
	require.NotNil(t, d.Parameters)
	assert.Equal(t, "object", d.Parameters.Type)
	city, ok := d.Parameters.Properties.Get("city")
	require.True(t, ok)
	assert.Equal(t, "City name", city.Description)
	assert.Contains(t, d.Parameters.Required, "city")

	res, err := d.Call(ctx, map[string]any{"city": "Helsinki", "days": "3", "delay": "1s"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success","report":"Helsinki is sunny"}`, res)

	_, err = d.Call(ctx, map[string]any{})
	assert.EqualError(t, err, "city is required")

	_, err = d.Call(ctx, map[string]any{"city": map[string]any{"name": "Helsinki"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrInvalidArguments))

	_, err = tools.NewFunction("bad name", "", weather)
	assert.True(t, errors.Is(err, tools.ErrConfiguration))
}

func TestFromTool(t *testing.T) {
	d, err := tools.FromTool[echoRequest, string](echoTool{})
	require.NoError(t, err)
	assert.Equal(t, "echo", d.Name)

	res, err := d.Call(context.Background(), map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res)
}

type ticketRequest struct {
	Title    string   `json:"title" fake:"{sentence:5}"`
	Reporter string   `json:"reporter" fake:"{email}"`
	Priority int      `json:"priority" fake:"{number:1,5}"`
	Urgent   bool     `json:"urgent"`
	Labels   []string `json:"labels" fake:"{word}" fakesize:"3"`
}

func TestDecode_GeneratedArguments(t *testing.T) {
	for range 20 {
		var exp ticketRequest
		require.NoError(t, gofakeit.Struct(&exp))

		// arguments arrive as decoded JSON: numbers are float64, lists are []any
		js, err := json.Marshal(exp)
		require.NoError(t, err)
		var args map[string]any
		require.NoError(t, json.Unmarshal(js, &args))

		var got ticketRequest
		require.NoError(t, tools.Decode(args, &got))
		assert.Equal(t, exp, got)
	}
}
