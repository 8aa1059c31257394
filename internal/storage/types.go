package storage

import "time"

// ProcessedMessage is one (stage, message) pair that completed successfully.
type ProcessedMessage struct {
	ID          string
	Stage       string
	MessageID   string
	Subject     string
	MessageDate time.Time
	ProcessedAt time.Time
}

// CheckpointRecord describes a persona checkpoint written to disk.
type CheckpointRecord struct {
	ID             string
	Index          int
	Path           string
	Hypotheses     int
	BiographyChars int
	CreatedAt      time.Time
}

// MemoRecord describes one memo file (one per memo and category).
type MemoRecord struct {
	ID        string
	MemoID    string
	MessageID string
	Type      string
	Category  string
	Path      string
	CreatedAt time.Time
}

// Stats summarizes the ledger for `secretary status`.
type Stats struct {
	ProcessedByStage map[string]int
	Checkpoints      int
	LatestCheckpoint *CheckpointRecord
	Memos            int
	MemosByCategory  map[string]int
}
