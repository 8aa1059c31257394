package types

import "time"

// MemoType distinguishes items the user must act on from items that only inform.
type MemoType string

const (
	MemoActionable  MemoType = "actionable"
	MemoInformative MemoType = "informative"
)

// IsValid reports whether t is one of the known memo types.
func (t MemoType) IsValid() bool {
	return t == MemoActionable || t == MemoInformative
}

// SourceMessage is the provenance embedded in every memo.
type SourceMessage struct {
	Date    time.Time `json:"date"`
	Summary string    `json:"summary"`
}

// Memo is one actionable or informative item extracted from a message.
// It is written once per category it belongs to and never mutated.
type Memo struct {
	ID         string        `json:"id"`
	Type       MemoType      `json:"type"`
	Categories []string      `json:"categories"`
	Details    string        `json:"details"`
	Summary    string        `json:"summary"`
	Source     SourceMessage `json:"source"`
	MessageID  string        `json:"message_id,omitempty"`
}
