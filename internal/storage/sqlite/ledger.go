// Package sqlite implements storage.Ledger on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/secretary/internal/storage"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const timeLayout = time.RFC3339Nano

// Ledger implements storage.Ledger using SQLite.
type Ledger struct {
	db     *sql.DB
	logger *zap.Logger

	mu      sync.Mutex
	entropy *rand.Rand
}

var _ storage.Ledger = (*Ledger)(nil)

// Open opens (creating if needed) the ledger at dsn and applies pending
// migrations. If the first open fails because a crashed process left stale
// WAL files behind, they are removed and the open is retried once.
func Open(dsn string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	l, err := open(dsn, logger)
	if err == nil {
		return l, nil
	}
	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}
	removeStaleWAL(dbPath, logger)

	l, retryErr := open(dsn, logger)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}
	logger.Info("recovered from stale WAL files", zap.String("path", dbPath))
	return l, nil
}

func open(dsn string, logger *zap.Logger) (*Ledger, error) {
	if dbPath := dbPathFromDSN(dsn); dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create ledger dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; a single connection also keeps ":memory:" coherent.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	mgr, err := storage.NewMigrationManager(db, migrationFS, "migrations")
	if err != nil {
		db.Close()
		return nil, err
	}
	applied, err := mgr.Up()
	if err != nil {
		db.Close()
		return nil, err
	}
	if applied > 0 {
		logger.Debug("ledger migrations applied", zap.Int("count", applied))
	}

	return &Ledger{
		db:      db,
		logger:  logger,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (l *Ledger) newID(t time.Time) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), l.entropy).String()
}

// IsProcessed reports whether messageID was already handled by stage.
func (l *Ledger) IsProcessed(ctx context.Context, stage, messageID string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_messages WHERE stage = ? AND message_id = ?`,
		stage, messageID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: is processed: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed records rec. A repeated (stage, message) pair is ignored.
func (l *Ledger) MarkProcessed(ctx context.Context, rec storage.ProcessedMessage) error {
	if rec.Stage == "" || rec.MessageID == "" {
		return fmt.Errorf("sqlite: mark processed: stage and message id are required")
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now().UTC()
	}
	if rec.ID == "" {
		rec.ID = l.newID(rec.ProcessedAt)
	}

	var msgDate string
	if !rec.MessageDate.IsZero() {
		msgDate = rec.MessageDate.Format(timeLayout)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO processed_messages (id, stage, message_id, subject, message_date, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (stage, message_id) DO NOTHING`,
		rec.ID, rec.Stage, rec.MessageID, rec.Subject, msgDate, rec.ProcessedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: mark processed: %w", err)
	}
	return nil
}

// RecordCheckpoint stores rec. Re-recording an index replaces the old row.
func (l *Ledger) RecordCheckpoint(ctx context.Context, rec storage.CheckpointRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.ID == "" {
		rec.ID = l.newID(rec.CreatedAt)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, idx, path, hypotheses, biography_chars, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (idx) DO UPDATE SET
			path = excluded.path,
			hypotheses = excluded.hypotheses,
			biography_chars = excluded.biography_chars,
			created_at = excluded.created_at`,
		rec.ID, rec.Index, rec.Path, rec.Hypotheses, rec.BiographyChars, rec.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: record checkpoint %d: %w", rec.Index, err)
	}
	return nil
}

// LatestCheckpoint returns the highest-index checkpoint or storage.ErrNotFound.
func (l *Ledger) LatestCheckpoint(ctx context.Context) (*storage.CheckpointRecord, error) {
	var (
		rec     storage.CheckpointRecord
		created string
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT id, idx, path, hypotheses, biography_chars, created_at
		FROM checkpoints ORDER BY idx DESC LIMIT 1`).
		Scan(&rec.ID, &rec.Index, &rec.Path, &rec.Hypotheses, &rec.BiographyChars, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: latest checkpoint: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, created)
	return &rec, nil
}

// RecordMemo stores rec. A repeated (memo, category) pair is ignored.
func (l *Ledger) RecordMemo(ctx context.Context, rec storage.MemoRecord) error {
	if rec.MemoID == "" || rec.Category == "" {
		return fmt.Errorf("sqlite: record memo: memo id and category are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.ID == "" {
		rec.ID = l.newID(rec.CreatedAt)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO memos (id, memo_id, message_id, type, category, path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (memo_id, category) DO NOTHING`,
		rec.ID, rec.MemoID, rec.MessageID, rec.Type, rec.Category, rec.Path, rec.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: record memo %s: %w", rec.MemoID, err)
	}
	return nil
}

// Stats summarizes processed messages, checkpoints and memos.
func (l *Ledger) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{
		ProcessedByStage: make(map[string]int),
		MemosByCategory:  make(map[string]int),
	}

	if err := l.countBy(ctx, `SELECT stage, COUNT(*) FROM processed_messages GROUP BY stage`, stats.ProcessedByStage); err != nil {
		return nil, err
	}
	if err := l.countBy(ctx, `SELECT category, COUNT(*) FROM memos GROUP BY category`, stats.MemosByCategory); err != nil {
		return nil, err
	}

	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints`).Scan(&stats.Checkpoints); err != nil {
		return nil, fmt.Errorf("sqlite: stats: %w", err)
	}
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT memo_id) FROM memos`).Scan(&stats.Memos); err != nil {
		return nil, fmt.Errorf("sqlite: stats: %w", err)
	}

	latest, err := l.LatestCheckpoint(ctx)
	switch {
	case err == nil:
		stats.LatestCheckpoint = latest
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	return stats, nil
}

func (l *Ledger) countBy(ctx context.Context, query string, into map[string]int) error {
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("sqlite: stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("sqlite: stats: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

// Close flushes the WAL into the main database file and releases resources.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	if _, err := l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		l.logger.Warn("WAL checkpoint on close failed", zap.Error(err))
	}
	return l.db.Close()
}
