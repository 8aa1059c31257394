package llm

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scrypster/secretary/internal/metrics"
)

// Gateway is the single path from the pipeline to a model. Calls are
// synchronous and never retried; a failed call surfaces as a ParseError,
// SchemaError or TransportError.
type Gateway struct {
	gen         TextGenerator
	backend     string
	breaker     *CircuitBreaker
	limiter     *rate.Limiter
	logger      *zap.Logger
	temperature float64
	maxTokens   int
	breakerCfg  CircuitBreakerConfig
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the gateway logger (default: no-op).
func WithLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// WithBackendName labels errors and logs with the backend name.
func WithBackendName(name string) GatewayOption {
	return func(g *Gateway) { g.backend = name }
}

// WithSampling sets the temperature and token limit sent with every request.
func WithSampling(temperature float64, maxTokens int) GatewayOption {
	return func(g *Gateway) {
		g.temperature = temperature
		g.maxTokens = maxTokens
	}
}

// WithRateLimit caps calls per minute. Zero or less disables the limiter.
func WithRateLimit(perMinute float64) GatewayOption {
	return func(g *Gateway) {
		if perMinute <= 0 {
			g.limiter = nil
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(perMinute/60), 1)
	}
}

// WithCircuitBreaker overrides the breaker settings.
func WithCircuitBreaker(cfg CircuitBreakerConfig) GatewayOption {
	return func(g *Gateway) { g.breakerCfg = cfg }
}

// NewGateway wraps gen. Defaults: temperature 0.3, 4096 max tokens, no rate limit.
func NewGateway(gen TextGenerator, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		gen:         gen,
		backend:     "llm",
		logger:      zap.NewNop(),
		temperature: 0.3,
		maxTokens:   4096,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breakerCfg.Name == "" {
		g.breakerCfg.Name = g.backend
	}
	g.breaker = NewCircuitBreaker(g.breakerCfg, g.logger)
	return g
}

// Model returns the backend's model name.
func (g *Gateway) Model() string { return g.gen.GetModel() }

// Breaker exposes the circuit breaker for status reporting.
func (g *Gateway) Breaker() *CircuitBreaker { return g.breaker }

// Invoke renders tmpl with params, sends it to the backend and decodes the
// reply into out.
func (g *Gateway) Invoke(ctx context.Context, tmpl *Template, params any, out Schema) error {
	requestID := uuid.New().String()[:8]
	log := g.logger.With(zap.String("request_id", requestID), zap.String("template", tmpl.Name))

	system, user, err := tmpl.Render(params)
	if err != nil {
		return err
	}
	log.Debug("llm request", zap.String("system", system), zap.String("user", user))

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return &TransportError{Template: tmpl.Name, Backend: g.backend, Err: err}
		}
	}

	req := Request{System: system, User: user, Temperature: g.temperature, MaxTokens: g.maxTokens}

	start := time.Now()
	result, err := g.breaker.Execute(ctx, func() (interface{}, error) {
		return g.gen.Complete(ctx, req)
	})
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordLLMCall(tmpl.Name, "transport_error", elapsed)
		log.Error("llm request failed", zap.Duration("latency", elapsed), zap.Error(err))
		return &TransportError{Template: tmpl.Name, Backend: g.backend, Err: err}
	}

	resp := result.(Response)
	metrics.AddLLMTokens(tmpl.Name, resp.PromptTokens, resp.CompletionTokens)
	log.Debug("llm response",
		zap.Duration("latency", elapsed),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens),
		zap.String("text", resp.Text))

	if err := decodeReply(tmpl, resp.Text, out); err != nil {
		metrics.RecordLLMCall(tmpl.Name, "invalid_reply", elapsed)
		log.Error("llm reply rejected", zap.Error(err))
		return err
	}

	metrics.RecordLLMCall(tmpl.Name, "ok", elapsed)
	return nil
}

var _ Invoker = (*Gateway)(nil)
