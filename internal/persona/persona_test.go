package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/secretary/internal/llm"
	"github.com/scrypster/secretary/pkg/types"
)

// mockInvoker answers gateway calls from a respond func and records every call.
type mockInvoker struct {
	respond func(name string, params any) (string, error)
	calls   []string
	params  []any
}

func (m *mockInvoker) Invoke(_ context.Context, tmpl *llm.Template, params any, out llm.Schema) error {
	m.calls = append(m.calls, tmpl.Name)
	m.params = append(m.params, params)
	raw, err := m.respond(tmpl.Name, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &llm.ParseError{Template: tmpl.Name, Raw: raw, Err: err}
	}
	return out.Validate()
}

func (m *mockInvoker) count(name string) int {
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

// personaResponder gives every email one "interests" implication described by
// its subject, scores every email with score, forms "about <category>" per
// category and returns the draft itself as the biography.
func personaResponder(score int) func(string, any) (string, error) {
	return func(name string, params any) (string, error) {
		switch name {
		case llm.ImplicationBatchPrompt.Name:
			p := params.(llm.BatchParams)
			items := make([]string, 0, len(p.Emails))
			for _, e := range p.Emails {
				items = append(items, fmt.Sprintf(`{"idx": %d, "implications": [{"category": "interests", "description": %q}]}`, e.Idx, e.Subject))
			}
			return `{"emails": [` + strings.Join(items, ",") + `]}`, nil
		case llm.UniquenessBatchPrompt.Name:
			p := params.(llm.BatchParams)
			items := make([]string, 0, len(p.Emails))
			for _, e := range p.Emails {
				items = append(items, fmt.Sprintf(`{"idx": %d, "reasoning": "r", "score": %d}`, e.Idx, score))
			}
			return `{"emails": [` + strings.Join(items, ",") + `]}`, nil
		case llm.BiographyFormationPrompt.Name:
			p := params.(llm.BiographyFormationParams)
			return fmt.Sprintf(`{"hypotheses_thought": "t", "contradictions": "", "description": "about %s"}`, p.Category), nil
		case llm.BiographyWritingPrompt.Name:
			p := params.(llm.BiographyWritingParams)
			bio, _ := json.Marshal(p.Draft)
			return `{"biography": ` + string(bio) + `}`, nil
		}
		return "", fmt.Errorf("unexpected template %s", name)
	}
}

func makeMessages(n int) []types.Message {
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	msgs := make([]types.Message, n)
	for i := range msgs {
		msgs[i] = types.Message{
			Subject:   fmt.Sprintf("subject %d", i),
			Sender:    "friend@example.com",
			To:        "me@example.com",
			Date:      base.Add(time.Duration(i) * time.Hour),
			MessageID: fmt.Sprintf("m%d", i),
			Provider:  "gmail",
		}
	}
	return msgs
}
