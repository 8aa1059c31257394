package memoboard

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrypster/secretary/internal/llm"
	"github.com/scrypster/secretary/internal/logging"
	"github.com/scrypster/secretary/internal/metrics"
	"github.com/scrypster/secretary/internal/storage"
	"github.com/scrypster/secretary/pkg/types"
)

const promptDateLayout = "2006-01-02 15:04:05 -0700"

// Ledger is the subset of the run ledger the extractor uses.
type Ledger interface {
	storage.MessageLedger
	storage.MemoLedger
}

// Extractor turns one message into memos with two gateway calls: a
// persona-aware summary of the body, then item extraction from the summary.
type Extractor struct {
	llm           llm.Invoker
	board         *Board
	ledger        Ledger
	logger        *zap.Logger
	maxBodyTokens int
	newID         func() string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxBodyTokens truncates message bodies to n tokens before summarizing.
// Zero disables truncation.
func WithMaxBodyTokens(n int) Option {
	return func(e *Extractor) { e.maxBodyTokens = n }
}

// WithLedger skips already processed messages in ProcessAll and records
// written memos.
func WithLedger(l Ledger) Option {
	return func(e *Extractor) { e.ledger = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor creates an extractor filing memos on board.
func NewExtractor(inv llm.Invoker, board *Board, opts ...Option) *Extractor {
	e := &Extractor{
		llm:    inv,
		board:  board,
		logger: logging.Named("memoboard"),
		newID:  newMemoID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// newMemoID returns the first 8 characters of a random UUID.
func newMemoID() string {
	return uuid.New().String()[:8]
}

// Process extracts the memos of msg given the owner's persona and files them
// on the board. Nothing is written unless both gateway calls succeed; a
// gateway error is returned as is.
func (e *Extractor) Process(ctx context.Context, msg types.Message, persona string) ([]types.Memo, error) {
	body, truncated := llm.TruncateToTokens(msg.Body, e.maxBodyTokens)
	if truncated {
		e.logger.Debug("message body truncated",
			zap.String("message_id", msg.MessageID),
			zap.Int("max_tokens", e.maxBodyTokens))
	}

	params := llm.MessageParams{
		Persona:   persona,
		Subject:   msg.Subject,
		Date:      msg.Date.Format(promptDateLayout),
		Sender:    msg.Sender,
		Recipient: msg.To,
		Content:   body,
	}

	var summary llm.SummaryReply
	if err := e.llm.Invoke(ctx, llm.SummarizePrompt, params, &summary); err != nil {
		return nil, fmt.Errorf("memoboard: summarize %s: %w", msg.MessageID, err)
	}

	params.Content = ""
	params.Summary = summary.Summary

	var extracted llm.ExtractionReply
	if err := e.llm.Invoke(ctx, llm.ExtractionPrompt, params, &extracted); err != nil {
		return nil, fmt.Errorf("memoboard: extract %s: %w", msg.MessageID, err)
	}

	memos := make([]types.Memo, 0, len(extracted.Extractions))
	for _, x := range extracted.Extractions {
		memos = append(memos, types.Memo{
			ID:         e.newID(),
			Type:       x.Type,
			Categories: e.knownCategories(msg.MessageID, x.Categories),
			Details:    x.Details,
			Summary:    summary.Summary,
			Source:     types.SourceMessage{Date: msg.Date, Summary: summary.Summary},
			MessageID:  msg.MessageID,
		})
	}

	for _, memo := range memos {
		if err := e.persist(ctx, memo); err != nil {
			return memos, err
		}
	}

	e.logger.Info("message processed",
		zap.String("message_id", msg.MessageID),
		zap.String("subject", msg.Subject),
		zap.Int("memos", len(memos)))
	return memos, nil
}

func (e *Extractor) knownCategories(messageID string, categories []string) []string {
	known := make([]string, 0, len(categories))
	for _, c := range categories {
		if !types.IsValidMemoCategory(c) {
			e.logger.Warn("skipping unknown memo category",
				zap.String("message_id", messageID),
				zap.String("category", c))
			continue
		}
		known = append(known, c)
	}
	return known
}

func (e *Extractor) persist(ctx context.Context, memo types.Memo) error {
	if len(memo.Categories) == 0 {
		e.logger.Warn("memo has no category, not filed",
			zap.String("memo_id", memo.ID),
			zap.String("message_id", memo.MessageID))
		return nil
	}

	paths, err := e.board.Write(memo)
	if err != nil {
		return err
	}

	for i, path := range paths {
		category := memo.Categories[i]
		metrics.IncrementMemoWritten(category, string(memo.Type))
		if e.ledger == nil {
			continue
		}
		err := e.ledger.RecordMemo(ctx, storage.MemoRecord{
			MemoID:    memo.ID,
			MessageID: memo.MessageID,
			Type:      string(memo.Type),
			Category:  category,
			Path:      path,
		})
		if err != nil {
			e.logger.Warn("ledger: record memo failed", zap.String("memo_id", memo.ID), zap.Error(err))
		}
	}
	return nil
}

// Result counts what ProcessAll did.
type Result struct {
	Processed int
	Skipped   int
	Memos     int
}

// ProcessAll runs Process over messages in order. With a ledger, messages
// already processed are skipped and each message is marked processed once
// its memos are filed. The first gateway error stops the run.
func (e *Extractor) ProcessAll(ctx context.Context, messages []types.Message, persona string) (Result, error) {
	var res Result
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if e.ledger != nil && msg.MessageID != "" {
			done, err := e.ledger.IsProcessed(ctx, storage.StageMemo, msg.MessageID)
			if err != nil {
				return res, err
			}
			if done {
				res.Skipped++
				metrics.IncrementMessageProcessed(storage.StageMemo, "skipped")
				continue
			}
		}

		memos, err := e.Process(ctx, msg, persona)
		if err != nil {
			metrics.IncrementMessageProcessed(storage.StageMemo, "failed")
			return res, err
		}
		res.Processed++
		res.Memos += len(memos)
		metrics.IncrementMessageProcessed(storage.StageMemo, "success")

		if e.ledger != nil && msg.MessageID != "" {
			err := e.ledger.MarkProcessed(ctx, storage.ProcessedMessage{
				Stage:       storage.StageMemo,
				MessageID:   msg.MessageID,
				Subject:     msg.Subject,
				MessageDate: msg.Date,
			})
			if err != nil {
				e.logger.Warn("ledger: mark processed failed", zap.String("message_id", msg.MessageID), zap.Error(err))
			}
		}
	}
	return res, nil
}
