package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLLMClient returns scripted responses in order.
type mockLLMClient struct {
	responses []string
	errors    []error
	requests  []Request
	callCount int
}

func (m *mockLLMClient) Complete(ctx context.Context, req Request) (Response, error) {
	defer func() { m.callCount++ }()
	m.requests = append(m.requests, req)

	if m.callCount < len(m.errors) && m.errors[m.callCount] != nil {
		return Response{}, m.errors[m.callCount]
	}
	if m.callCount < len(m.responses) {
		return Response{Text: m.responses[m.callCount], PromptTokens: 10, CompletionTokens: 3}, nil
	}
	return Response{}, errors.New("no scripted response")
}

func (m *mockLLMClient) GetModel() string { return "mock-model" }

func TestGateway_InvokeRendersAndDecodes(t *testing.T) {
	mock := &mockLLMClient{responses: []string{`{"emails": [{"idx": 0, "reasoning": "personal", "score": 4}]}`}}
	g := NewGateway(mock, WithSampling(0.3, 4096))

	params := BatchParams{Emails: []BatchEmail{{Idx: 0, Subject: "Dinner Friday?", Date: "2024-05-01", Sender: "ann@example.com", Recipient: "me@example.com"}}}
	var out UniquenessBatchReply
	require.NoError(t, g.Invoke(context.Background(), UniquenessBatchPrompt, params, &out))

	require.Len(t, out.Emails, 1)
	assert.Equal(t, 0, *out.Emails[0].Idx)
	assert.Equal(t, 4, *out.Emails[0].Score)

	require.Len(t, mock.requests, 1)
	req := mock.requests[0]
	assert.Contains(t, req.User, "Subject: Dinner Friday?")
	assert.Contains(t, req.User, "Idx: 0")
	assert.NotEmpty(t, req.System)
	assert.InDelta(t, 0.3, req.Temperature, 1e-9)
	assert.Equal(t, 4096, req.MaxTokens)
}

func TestGateway_ParseErrorIsNotRetried(t *testing.T) {
	mock := &mockLLMClient{responses: []string{"sorry, no", `{"summary": "s"}`}}
	g := NewGateway(mock)

	var out SummaryReply
	err := g.Invoke(context.Background(), SummarizePrompt, MessageParams{}, &out)

	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr), "got %v", err)
	assert.Equal(t, 1, mock.callCount)
}

func TestGateway_SchemaError(t *testing.T) {
	mock := &mockLLMClient{responses: []string{`{"thought": "only this"}`}}
	g := NewGateway(mock)

	var out SummaryReply
	err := g.Invoke(context.Background(), SummarizePrompt, MessageParams{}, &out)

	var schemaErr *SchemaError
	assert.True(t, errors.As(err, &schemaErr), "got %v", err)
}

func TestGateway_TransportError(t *testing.T) {
	boom := errors.New("connection refused")
	mock := &mockLLMClient{errors: []error{boom}}
	g := NewGateway(mock, WithBackendName("ollama"))

	var out SummaryReply
	err := g.Invoke(context.Background(), SummarizePrompt, MessageParams{}, &out)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr), "got %v", err)
	assert.Equal(t, "ollama", transportErr.Backend)
	assert.ErrorIs(t, err, boom)
}

func TestGateway_OpenCircuitIsTransportError(t *testing.T) {
	boom := errors.New("down")
	mock := &mockLLMClient{errors: []error{boom, boom}}
	g := NewGateway(mock, WithCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute}))

	var out SummaryReply
	for i := 0; i < 2; i++ {
		_ = g.Invoke(context.Background(), SummarizePrompt, MessageParams{}, &out)
	}
	err := g.Invoke(context.Background(), SummarizePrompt, MessageParams{}, &out)

	assert.ErrorIs(t, err, ErrCircuitOpen)
	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr))
	assert.Equal(t, 2, mock.callCount)
}

func TestGateway_ParseErrorDoesNotTripBreaker(t *testing.T) {
	mock := &mockLLMClient{responses: []string{"x", "y", "z", `{"summary": "ok"}`}}
	g := NewGateway(mock, WithCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2}))

	var out SummaryReply
	for i := 0; i < 3; i++ {
		_ = g.Invoke(context.Background(), SummarizePrompt, MessageParams{}, &out)
	}
	require.NoError(t, g.Invoke(context.Background(), SummarizePrompt, MessageParams{}, &out))
	assert.Equal(t, "ok", out.Summary)
}

func TestGateway_RenderErrorSkipsBackend(t *testing.T) {
	mock := &mockLLMClient{responses: []string{`{}`}}
	g := NewGateway(mock)

	var out SummaryReply
	err := g.Invoke(context.Background(), SummarizePrompt, map[string]string{"Subject": "s"}, &out)
	assert.Error(t, err)
	assert.Equal(t, 0, mock.callCount)
}

func TestGateway_RateLimitHonoursContext(t *testing.T) {
	mock := &mockLLMClient{responses: []string{`{"summary": "a"}`, `{"summary": "b"}`}}
	g := NewGateway(mock, WithRateLimit(1)) // one call per minute

	var out SummaryReply
	require.NoError(t, g.Invoke(context.Background(), SummarizePrompt, MessageParams{}, &out))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := g.Invoke(ctx, SummarizePrompt, MessageParams{}, &out)

	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr), "got %v", err)
	assert.Equal(t, 1, mock.callCount)
}
