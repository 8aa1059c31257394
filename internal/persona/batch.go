// Package persona infers a biography of the mailbox owner. Messages are
// mapped in batches to weighted hypotheses, the hypotheses accumulate across
// batches and after each batch the biography is rebuilt from the whole
// collection and checkpointed to disk.
package persona

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scrypster/secretary/internal/llm"
	"github.com/scrypster/secretary/pkg/types"
)

// DefaultBatchSize is the number of messages sent per batch prompt.
const DefaultBatchSize = 10

const promptDateLayout = "2006-01-02 15:04:05 -0700"

// Chunk splits messages into consecutive batches of at most size messages.
// Empty input yields no batches. A size below 1 uses DefaultBatchSize.
func Chunk(messages []types.Message, size int) [][]types.Message {
	if size < 1 {
		size = DefaultBatchSize
	}
	if len(messages) == 0 {
		return nil
	}

	chunks := make([][]types.Message, 0, (len(messages)+size-1)/size)
	for start := 0; start < len(messages); start += size {
		end := min(start+size, len(messages))
		chunks = append(chunks, messages[start:end])
	}
	return chunks
}

// MatchError reports a batch position that one of the replies did not cover.
// It is recoverable: the message contributes no hypotheses.
type MatchError struct {
	Index     int
	MessageID string
	Missing   []string // "implications", "uniqueness"
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("persona: batch index %d (message %q): no %s in reply",
		e.Index, e.MessageID, strings.Join(e.Missing, " or "))
}

// Mapper turns one batch of messages into hypotheses with two gateway calls.
type Mapper struct {
	llm     llm.Invoker
	address string
	logger  *zap.Logger
}

// NewMapper creates a Mapper. address is the owner's mail address and may be empty.
func NewMapper(inv llm.Invoker, address string, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{llm: inv, address: address, logger: logger}
}

// MapBatch asks for implications and uniqueness scores of every message in
// batch and joins them by position. Hypotheses come out in batch order, each
// weighted by its message's score. Positions missing from either reply are
// returned as MatchErrors; a gateway failure aborts the batch.
func (m *Mapper) MapBatch(ctx context.Context, batch []types.Message) ([]types.Hypothesis, []*MatchError, error) {
	if len(batch) == 0 {
		return nil, nil, nil
	}

	params := m.batchParams(batch)

	var implications llm.ImplicationBatchReply
	if err := m.llm.Invoke(ctx, llm.ImplicationBatchPrompt, params, &implications); err != nil {
		return nil, nil, fmt.Errorf("persona: implications: %w", err)
	}

	var uniqueness llm.UniquenessBatchReply
	if err := m.llm.Invoke(ctx, llm.UniquenessBatchPrompt, params, &uniqueness); err != nil {
		return nil, nil, fmt.Errorf("persona: uniqueness: %w", err)
	}

	// First occurrence of an idx wins.
	byIdxImpl := make(map[int]llm.EmailImplications, len(implications.Emails))
	for _, e := range implications.Emails {
		if _, seen := byIdxImpl[*e.Idx]; !seen {
			byIdxImpl[*e.Idx] = e
		}
	}
	byIdxScore := make(map[int]int, len(uniqueness.Emails))
	for _, e := range uniqueness.Emails {
		if _, seen := byIdxScore[*e.Idx]; !seen {
			byIdxScore[*e.Idx] = *e.Score
		}
	}

	var (
		hypotheses []types.Hypothesis
		misses     []*MatchError
	)
	for i, msg := range batch {
		impl, okImpl := byIdxImpl[i]
		score, okScore := byIdxScore[i]
		if !okImpl || !okScore {
			miss := &MatchError{Index: i, MessageID: msg.MessageID}
			if !okImpl {
				miss.Missing = append(miss.Missing, "implications")
			}
			if !okScore {
				miss.Missing = append(miss.Missing, "uniqueness")
			}
			m.logger.Warn("batch reply missing message", zap.Error(miss))
			misses = append(misses, miss)
			continue
		}

		weight := score
		if !types.IsValidWeight(weight) {
			weight = types.ClampWeight(score)
			m.logger.Warn("uniqueness score out of range, clamped",
				zap.String("message_id", msg.MessageID),
				zap.Int("score", score),
				zap.Int("weight", weight))
		}

		for _, imp := range impl.Implications {
			if !types.IsValidHypothesisCategory(imp.Category) {
				m.logger.Warn("dropping implication with unknown category",
					zap.String("message_id", msg.MessageID),
					zap.String("category", imp.Category))
				continue
			}
			hypotheses = append(hypotheses, types.Hypothesis{
				Category:    imp.Category,
				Description: imp.Description,
				Weight:      weight,
			})
		}
	}

	m.logger.Debug("batch mapped",
		zap.Int("messages", len(batch)),
		zap.Int("hypotheses", len(hypotheses)),
		zap.Int("unmatched", len(misses)))

	return hypotheses, misses, nil
}

func (m *Mapper) batchParams(batch []types.Message) llm.BatchParams {
	emails := make([]llm.BatchEmail, len(batch))
	for i, msg := range batch {
		emails[i] = llm.BatchEmail{
			Idx:       i,
			Subject:   msg.Subject,
			Date:      msg.Date.Format(promptDateLayout),
			Sender:    msg.Sender,
			Recipient: msg.To,
		}
	}
	return llm.BatchParams{Address: m.address, Emails: emails}
}
