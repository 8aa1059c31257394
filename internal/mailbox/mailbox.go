// Package mailbox is the email source. It reads a directory exported from a
// mail provider, where each message is either a stored JSON document
// (<provider>/<YYYYmmdd_HHMMSS>_<message_id>.json) or a raw RFC 822 .eml file,
// and normalizes everything into types.Message.
package mailbox

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/secretary/pkg/types"
)

// Source yields the messages of a mailbox received within a lookback window.
type Source interface {
	// Fetch returns messages dated within the last lookbackDays days, oldest
	// first. lookbackDays <= 0 returns every message.
	Fetch(ctx context.Context, lookbackDays int) ([]types.Message, error)
}

// DirSource reads messages from a directory tree.
type DirSource struct {
	root   string
	now    func() time.Time
	logger *zap.Logger
}

// NewDirSource creates a source rooted at root.
func NewDirSource(root string, logger *zap.Logger) *DirSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirSource{root: root, now: time.Now, logger: logger}
}

// IsMessageFile reports whether path has an extension the source understands.
func IsMessageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".eml":
		return true
	}
	return false
}

// Fetch walks the root directory. Files that fail to parse are logged and skipped.
func (s *DirSource) Fetch(ctx context.Context, lookbackDays int) ([]types.Message, error) {
	var since time.Time
	if lookbackDays > 0 {
		since = s.now().AddDate(0, 0, -lookbackDays)
	}

	var messages []types.Message
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !IsMessageFile(path) {
			return nil
		}

		msg, err := Load(path)
		if err != nil {
			s.logger.Warn("skipping unreadable message", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !since.IsZero() && msg.Date.Before(since) {
			return nil
		}
		messages = append(messages, msg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mailbox: walk %s: %w", s.root, err)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Date.Before(messages[j].Date)
	})

	s.logger.Info("loaded messages",
		zap.String("root", s.root),
		zap.Int("lookback_days", lookbackDays),
		zap.Int("count", len(messages)))
	return messages, nil
}

// Load reads a single .json or .eml message file.
func Load(path string) (types.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Message{}, err
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return decodeStored(f)
	case ".eml":
		return parseEML(f, providerFromPath(path))
	default:
		return types.Message{}, fmt.Errorf("mailbox: unsupported message file %s", path)
	}
}

// providerFromPath names the provider after the directory holding the file.
func providerFromPath(path string) string {
	dir := filepath.Base(filepath.Dir(path))
	if dir == "." || dir == string(filepath.Separator) {
		return "eml"
	}
	return dir
}
