// Package llm is the gateway between the pipeline and a language model. It
// holds the prompt templates with their reply schemas, renders them, sends the
// result to a configured backend (Ollama, an OpenAI-compatible endpoint or
// Anthropic) and decodes the JSON reply into typed results.
package llm

import (
	"errors"
	"fmt"

	"github.com/scrypster/secretary/pkg/types"
)

const secretarySystem = "You are a personal secretary of your boss. You are trying to understand your boss's persona from the emails he sent and received."

// BatchEmail is one message of a batch prompt. Idx is its position in the batch.
type BatchEmail struct {
	Idx       int
	Subject   string
	Date      string
	Sender    string
	Recipient string
}

// BatchParams feeds both batch templates.
type BatchParams struct {
	Address string // the user's own address, may be empty
	Emails  []BatchEmail
}

const batchSection = `[Email Batch]
{{range .Emails}}Idx: {{.Idx}}
Subject: {{.Subject}}
Date: {{.Date}}
Sender: {{.Sender}}
Recipient: {{.Recipient}}
---
{{end}}`

// ImplicationBatchPrompt asks for persona implications of every email in a batch.
var ImplicationBatchPrompt = MustTemplate("implication_batch", secretarySystem,
	`You are given a batch of metadata of emails received or sent by your boss.

For each email, suggest any persona-related information about your boss that can be implied from the email, under the following categories:
- "background" (birthplace, family, early education and foundational influences)
- "key_milestones" (significant life events such as graduation or career breakthroughs)
- "cultural_identity" (nationality, ethnicity or other cultural affiliations)
- "personality" (innate traits, e.g. introverted, analytical, empathetic)
- "vision_values" (life philosophy, ethical beliefs and guiding principles)
- "strengths_weaknesses" (natural abilities or inherent challenges)
- "interests" (passions or topics that consistently excite them)
- "specialty" (primary area of expertise or mastery)
- "profession" (current profession or occupation)

Each implication should focus on one single fact. An email may imply nothing.
{{if .Address}}Your boss's email address is {{.Address}}; use it to tell whether an email was sent or received by your boss.
{{end}}
`+batchSection+`
Return only a JSON object with this schema:
{"emails": [{"idx": int, "implications": [{"category": str, "description": str}]}]}
`, "emails")

// UniquenessBatchPrompt asks for a 1-5 uniqueness score of every email in a batch.
var UniquenessBatchPrompt = MustTemplate("uniqueness_batch", secretarySystem,
	`You are given a batch of metadata of emails received or sent by your boss.

For each email, determine how unique it is to your boss and give a score from 1 to 5.
A marketing email from a popular online service is not unique: score 1.
A newsletter about a specific topic is rather unique: score 4.
A meeting invitation from a colleague is very unique: score 5.

`+batchSection+`
Return only a JSON object with this schema:
{"emails": [{"idx": int, "reasoning": str, "score": int}]}
`, "emails")

// BiographyFormationParams feeds BiographyFormationPrompt with one category's hypotheses.
type BiographyFormationParams struct {
	Category   string
	Hypotheses []types.Hypothesis
}

// BiographyFormationPrompt turns one category's top hypotheses into a paragraph.
var BiographyFormationPrompt = MustTemplate("biography_formation", secretarySystem,
	`You have a list of hypotheses about your boss in the "{{.Category}}" category, each followed by a weight from 1 to 5 saying how important it is.

Write a detailed text description of your boss that you can use as a reference later on.
Favour hypotheses that occur often and those with the highest weight. Drop unlikely hypotheses that contradict others.

[Hypotheses]
{{range .Hypotheses}}- {{.Description}} ({{.Weight}})
{{end}}
Return only a JSON object with this schema:
{"hypotheses_thought": str, "contradictions": str, "description": str}
`, "description")

// BiographyWritingParams feeds BiographyWritingPrompt.
type BiographyWritingParams struct {
	Draft string
}

// BiographyWritingPrompt rewrites the per-category draft into one biography.
var BiographyWritingPrompt = MustTemplate("biography_writing", secretarySystem,
	`From the following descriptions of your boss by category, write a text biography of your boss.
If you don't know your boss's name, refer to them as "My boss".

[Draft]
{{.Draft}}

Return only a JSON object with this schema:
{"biography": str}
`, "biography")

// MessageParams feeds the two memo templates. Content is set for summarizing,
// Summary for extraction.
type MessageParams struct {
	Persona   string
	Subject   string
	Date      string
	Sender    string
	Recipient string
	Content   string
	Summary   string
}

// SummarizePrompt summarizes one email body with the persona in mind.
var SummarizePrompt = MustTemplate("email_summarizing",
	"You are a personal secretary of your boss. You are going to summarize emails that your boss has received or sent.",
	`You are given the content of an email received or sent by your boss.

- Think step by step.
- Summarize the email into a detailed, fact-based note.
- Use the persona below to decide what your boss would care about and include all of it.
- Keep concrete actionable or informative items, with date, time, location and other critical details.
- Include only details from the email.

[Email Details]
Subject: {{.Subject}}
Date: {{.Date}}
Sender: {{.Sender}}
Recipient: {{.Recipient}}
Email Content:
{{.Content}}

[Boss Persona]
{{.Persona}}

Return only a JSON object with this schema:
{"thought": str, "summary": str}
`, "summary")

// ExtractionPrompt extracts actionable and informative items from a summary.
var ExtractionPrompt = MustTemplate("information_extraction",
	"You are a personal secretary of your boss. You are going to extract and organize information about your boss from the emails he sent and received.",
	`You are given the summary of an email received or sent by your boss.

- Extract the actionable or informative items explicitly mentioned. Return an empty list if there are none.
- Use the persona below to judge how each item relates to your boss.
- Tag every item with one or more of these categories:
  - "hobbies": activities pursued for fun and relaxation
  - "interested_topics": areas of curiosity or learning
  - "profession": career and work life
  - "physical_wellbeing": health, fitness and physical care
  - "financial": income, expenses, savings and financial planning
  - "household": maintenance of the living space
  - "family": immediate family relationships and responsibilities
  - "relationships": connections with close partners
  - "friends_social": friendships and social networks
- Group similar items into one with all their details. Include date, time, location and other critical details.
- Include only details from the email.

[Email Details]
Subject: {{.Subject}}
Date: {{.Date}}
Sender: {{.Sender}}
Recipient: {{.Recipient}}
Email Summary:
{{.Summary}}

[Boss Persona]
{{.Persona}}

Return only a JSON object with this schema:
{"extractions": [{"type": "actionable" | "informative", "categories": [str], "details": str}]}
`, "extractions")

// Implication is one persona fact proposed for a batch email.
type Implication struct {
	Category    string `json:"category"`
	Description string `json:"description"`
}

// EmailImplications is the implication reply for one batch position.
type EmailImplications struct {
	Idx          *int          `json:"idx"`
	Implications []Implication `json:"implications"`
}

// ImplicationBatchReply is the reply schema of ImplicationBatchPrompt.
type ImplicationBatchReply struct {
	Emails []EmailImplications `json:"emails"`
}

func (r *ImplicationBatchReply) Validate() error {
	for i, e := range r.Emails {
		if e.Idx == nil {
			return fmt.Errorf("emails[%d]: %w: idx", i, ErrMissingField)
		}
	}
	return nil
}

// EmailUniqueness is the uniqueness reply for one batch position.
type EmailUniqueness struct {
	Idx       *int   `json:"idx"`
	Reasoning string `json:"reasoning"`
	Score     *int   `json:"score"`
}

// UniquenessBatchReply is the reply schema of UniquenessBatchPrompt.
type UniquenessBatchReply struct {
	Emails []EmailUniqueness `json:"emails"`
}

func (r *UniquenessBatchReply) Validate() error {
	for i, e := range r.Emails {
		if e.Idx == nil {
			return fmt.Errorf("emails[%d]: %w: idx", i, ErrMissingField)
		}
		if e.Score == nil {
			return fmt.Errorf("emails[%d]: %w: score", i, ErrMissingField)
		}
	}
	return nil
}

// BiographyFormationReply is the reply schema of BiographyFormationPrompt.
// The reasoning fields are accepted but unused.
type BiographyFormationReply struct {
	HypothesesThought string `json:"hypotheses_thought"`
	Contradictions    string `json:"contradictions"`
	Description       string `json:"description"`
}

func (r *BiographyFormationReply) Validate() error { return nil }

// BiographyWritingReply is the reply schema of BiographyWritingPrompt.
type BiographyWritingReply struct {
	Biography string `json:"biography"`
}

func (r *BiographyWritingReply) Validate() error { return nil }

// SummaryReply is the reply schema of SummarizePrompt.
type SummaryReply struct {
	Thought string `json:"thought"`
	Summary string `json:"summary"`
}

func (r *SummaryReply) Validate() error { return nil }

// Extraction is one extracted item.
type Extraction struct {
	Type       types.MemoType `json:"type"`
	Categories []string       `json:"categories"`
	Details    string         `json:"details"`
}

// ExtractionReply is the reply schema of ExtractionPrompt.
type ExtractionReply struct {
	Extractions []Extraction `json:"extractions"`
}

var errUnknownMemoType = errors.New("unknown memo type")

func (r *ExtractionReply) Validate() error {
	for i, x := range r.Extractions {
		if !x.Type.IsValid() {
			return fmt.Errorf("extractions[%d]: %w %q", i, errUnknownMemoType, x.Type)
		}
	}
	return nil
}
