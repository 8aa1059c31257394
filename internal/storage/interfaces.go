// Package storage defines the run ledger: a small database that remembers
// which messages each pipeline stage has already handled, which checkpoints
// were written and which memo files exist. The files on disk stay the source
// of truth; the ledger only makes reruns and `secretary status` cheap.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Pipeline stages recorded in the ledger.
const (
	StagePersona = "persona"
	StageMemo    = "memo"
)

// MessageLedger tracks per-stage message processing.
type MessageLedger interface {
	// IsProcessed reports whether messageID was already handled by stage.
	IsProcessed(ctx context.Context, stage, messageID string) (bool, error)

	// MarkProcessed records a handled message. Marking twice is not an error.
	MarkProcessed(ctx context.Context, rec ProcessedMessage) error
}

// CheckpointLedger records persona checkpoints.
type CheckpointLedger interface {
	RecordCheckpoint(ctx context.Context, rec CheckpointRecord) error

	// LatestCheckpoint returns the highest-index checkpoint or ErrNotFound.
	LatestCheckpoint(ctx context.Context) (*CheckpointRecord, error)
}

// MemoLedger records memo files.
type MemoLedger interface {
	RecordMemo(ctx context.Context, rec MemoRecord) error
}

// Ledger composes every ledger concern plus summary statistics.
type Ledger interface {
	MessageLedger
	CheckpointLedger
	MemoLedger

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
