package llm

import "context"

// Request is one system + user prompt pair sent to a backend.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Response is the raw reply text and the token usage reported by the backend.
// Token counts are zero when the backend does not report them.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// TextGenerator is the interface every LLM backend implements.
// Backends ask the model for a JSON object but do not parse it; that is the
// gateway's job.
type TextGenerator interface {
	Complete(ctx context.Context, req Request) (Response, error)
	GetModel() string
}

// Invoker renders a template, calls the model and decodes the reply into out.
// Persona and memo components depend on this rather than on *Gateway so tests
// can script replies.
type Invoker interface {
	Invoke(ctx context.Context, tmpl *Template, params any, out Schema) error
}
