package persona

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/scrypster/secretary/internal/llm"
	"github.com/scrypster/secretary/internal/logging"
	"github.com/scrypster/secretary/internal/metrics"
	"github.com/scrypster/secretary/internal/storage"
	"github.com/scrypster/secretary/pkg/types"
)

// Ledger is the subset of the run ledger the aggregator records into.
type Ledger interface {
	storage.MessageLedger
	storage.CheckpointLedger
}

// Aggregator accumulates hypotheses across batches and keeps the biography
// derived from them. It is not safe for concurrent use.
type Aggregator struct {
	llm    llm.Invoker
	mapper *Mapper
	store  *CheckpointStore
	ledger Ledger
	logger *zap.Logger

	batchSize int
	address   string

	hypotheses []types.Hypothesis
	biography  string
	generation int // index of the last loaded or written checkpoint, -1 if none
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithBatchSize sets the number of messages per batch (default 10).
func WithBatchSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithOwnerAddress passes the owner's mail address to the batch prompts.
func WithOwnerAddress(addr string) Option {
	return func(a *Aggregator) { a.address = addr }
}

// WithLedger records checkpoints and processed messages in l.
func WithLedger(l Ledger) Option {
	return func(a *Aggregator) { a.ledger = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAggregator creates an aggregator that writes checkpoints under checkpointRoot.
func NewAggregator(inv llm.Invoker, checkpointRoot string, opts ...Option) *Aggregator {
	a := &Aggregator{
		llm:        inv,
		store:      NewCheckpointStore(checkpointRoot),
		logger:     logging.Named("persona"),
		batchSize:  DefaultBatchSize,
		generation: -1,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.mapper = NewMapper(inv, a.address, a.logger.Named("mapper"))
	return a
}

// Store returns the checkpoint store.
func (a *Aggregator) Store() *CheckpointStore { return a.store }

// Hypotheses returns a copy of the accumulated hypotheses in insertion order.
func (a *Aggregator) Hypotheses() []types.Hypothesis {
	out := make([]types.Hypothesis, len(a.hypotheses))
	copy(out, a.hypotheses)
	return out
}

// Biography returns the current biography text.
func (a *Aggregator) Biography() string { return a.biography }

// Snapshot returns the biography with its checkpoint generation.
func (a *Aggregator) Snapshot() types.PersonaSnapshot {
	return types.PersonaSnapshot{Biography: a.biography, Generation: a.generation}
}

// LoadCheckpoint replaces the current state with the checkpoint stored in dir.
// It is meant to be called before any Digest.
func (a *Aggregator) LoadCheckpoint(dir string) error {
	hypotheses, bio, err := ReadCheckpoint(dir)
	if err != nil {
		return err
	}
	a.hypotheses = hypotheses
	a.biography = bio
	if n, ok := checkpointIndex(filepath.Base(filepath.Clean(dir))); ok {
		a.generation = n
	}

	a.logger.Info("checkpoint loaded",
		zap.String("path", dir),
		zap.Int("hypotheses", len(hypotheses)),
		zap.Int("biography_chars", len(bio)))
	return nil
}

// Unprocessed drops the messages the ledger already records for the persona
// stage. Without a ledger every message is returned.
func (a *Aggregator) Unprocessed(ctx context.Context, messages []types.Message) ([]types.Message, error) {
	if a.ledger == nil {
		return messages, nil
	}
	out := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		done, err := a.ledger.IsProcessed(ctx, storage.StagePersona, msg.MessageID)
		if err != nil {
			return nil, err
		}
		if done {
			metrics.IncrementMessageProcessed(storage.StagePersona, "skipped")
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Digest runs messages through the pipeline batch by batch. After every
// batch the hypotheses are extended, the biography is rebuilt from the whole
// collection and a new checkpoint is written. With no messages a checkpoint of
// the unchanged state is still written. Any gateway error aborts Digest; the
// checkpoints already written stay as they are.
func (a *Aggregator) Digest(ctx context.Context, messages []types.Message) error {
	chunks := Chunk(messages, a.batchSize)
	if len(chunks) == 0 {
		return a.commit(ctx, a.Hypotheses(), a.biography, nil, nil)
	}

	a.logger.Info("digest started",
		zap.Int("messages", len(messages)),
		zap.Int("batches", len(chunks)),
		zap.Int("batch_size", a.batchSize))

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		added, misses, err := a.mapper.MapBatch(ctx, chunk)
		if err != nil {
			metrics.MessagesProcessed.WithLabelValues(storage.StagePersona, "failed").Add(float64(len(chunk)))
			return fmt.Errorf("persona: batch %d/%d: %w", i+1, len(chunks), err)
		}

		next := append(a.Hypotheses(), added...)
		bio, err := a.recompute(ctx, next)
		if err != nil {
			metrics.MessagesProcessed.WithLabelValues(storage.StagePersona, "failed").Add(float64(len(chunk)))
			return fmt.Errorf("persona: batch %d/%d: %w", i+1, len(chunks), err)
		}

		if err := a.commit(ctx, next, bio, chunk, misses); err != nil {
			return err
		}
		metrics.HypothesesAdded.Add(float64(len(added)))
	}
	return nil
}

// commit writes the next checkpoint and only then adopts the new state.
func (a *Aggregator) commit(ctx context.Context, hypotheses []types.Hypothesis, bio string, batch []types.Message, misses []*MatchError) error {
	n, err := a.store.Next()
	if err != nil {
		return err
	}
	path, err := a.store.Write(n, hypotheses, bio)
	if err != nil {
		return err
	}

	a.hypotheses = hypotheses
	a.biography = bio
	a.generation = n
	metrics.CheckpointsWritten.Inc()

	a.logger.Info("checkpoint written",
		zap.Int("index", n),
		zap.String("path", path),
		zap.Int("hypotheses", len(hypotheses)),
		zap.Int("biography_chars", len(bio)))

	unmatched := make(map[int]bool, len(misses))
	for _, m := range misses {
		unmatched[m.Index] = true
	}
	for i := range batch {
		status := "success"
		if unmatched[i] {
			status = "unmatched"
		}
		metrics.IncrementMessageProcessed(storage.StagePersona, status)
	}

	a.record(ctx, n, path, hypotheses, bio, batch, unmatched)
	return nil
}

// record mirrors a written checkpoint into the ledger. The checkpoint files
// are authoritative, so ledger failures are only logged.
func (a *Aggregator) record(ctx context.Context, n int, path string, hypotheses []types.Hypothesis, bio string, batch []types.Message, unmatched map[int]bool) {
	if a.ledger == nil {
		return
	}

	err := a.ledger.RecordCheckpoint(ctx, storage.CheckpointRecord{
		Index:          n,
		Path:           path,
		Hypotheses:     len(hypotheses),
		BiographyChars: len(bio),
	})
	if err != nil {
		a.logger.Warn("ledger: record checkpoint failed", zap.Int("index", n), zap.Error(err))
	}

	for i, msg := range batch {
		if unmatched[i] || msg.MessageID == "" {
			continue
		}
		err := a.ledger.MarkProcessed(ctx, storage.ProcessedMessage{
			Stage:       storage.StagePersona,
			MessageID:   msg.MessageID,
			Subject:     msg.Subject,
			MessageDate: msg.Date,
		})
		if err != nil {
			a.logger.Warn("ledger: mark processed failed", zap.String("message_id", msg.MessageID), zap.Error(err))
		}
	}
}

// recompute rebuilds the biography from hypotheses: one formation call per
// category over its heaviest half, then one writing call over the draft.
func (a *Aggregator) recompute(ctx context.Context, hypotheses []types.Hypothesis) (string, error) {
	if len(hypotheses) == 0 {
		return "", nil
	}

	var draft strings.Builder
	for _, group := range GroupByCategory(hypotheses) {
		var reply llm.BiographyFormationReply
		params := llm.BiographyFormationParams{
			Category:   group.Category,
			Hypotheses: TopHalf(group.Hypotheses),
		}
		if err := a.llm.Invoke(ctx, llm.BiographyFormationPrompt, params, &reply); err != nil {
			return "", fmt.Errorf("biography formation %s: %w", group.Category, err)
		}
		fmt.Fprintf(&draft, "## %s\n\n%s\n\n", group.Category, reply.Description)
	}

	var reply llm.BiographyWritingReply
	if err := a.llm.Invoke(ctx, llm.BiographyWritingPrompt, llm.BiographyWritingParams{Draft: draft.String()}, &reply); err != nil {
		return "", fmt.Errorf("biography writing: %w", err)
	}
	return reply.Biography, nil
}

// CategoryGroup is the hypotheses of one category in insertion order.
type CategoryGroup struct {
	Category   string
	Hypotheses []types.Hypothesis
}

// GroupByCategory groups hypotheses by category. Groups appear in the order
// their category is first seen.
func GroupByCategory(hypotheses []types.Hypothesis) []CategoryGroup {
	index := make(map[string]int)
	var groups []CategoryGroup
	for _, h := range hypotheses {
		i, ok := index[h.Category]
		if !ok {
			i = len(groups)
			index[h.Category] = i
			groups = append(groups, CategoryGroup{Category: h.Category})
		}
		groups[i].Hypotheses = append(groups[i].Hypotheses, h)
	}
	return groups
}

// TopHalf returns the heaviest ceil(n/2) hypotheses (at least one), sorted by
// weight descending. Equal weights keep their insertion order.
func TopHalf(hypotheses []types.Hypothesis) []types.Hypothesis {
	if len(hypotheses) == 0 {
		return nil
	}
	sorted := make([]types.Hypothesis, len(hypotheses))
	copy(sorted, hypotheses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight > sorted[j].Weight
	})
	keep := max(1, (len(sorted)+1)/2)
	return sorted[:keep]
}
