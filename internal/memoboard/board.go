// Package memoboard extracts memos from single messages and files them on a
// board: one folder per category, one JSON file per memo.
package memoboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scrypster/secretary/pkg/types"
)

// BoardDir is the board folder name under the data root.
const BoardDir = "memoboard"

// Board writes memos to <root>/memoboard/<category>/<id>.json.
type Board struct {
	dir string
}

// NewBoard creates a board under root.
func NewBoard(root string) *Board {
	return &Board{dir: filepath.Join(root, BoardDir)}
}

// Dir returns the memoboard directory.
func (b *Board) Dir() string { return b.dir }

// Path returns the file a memo is stored at for one category.
func (b *Board) Path(category, id string) string {
	return filepath.Join(b.dir, category, id+".json")
}

// Write stores memo once per category it lists and returns the written paths.
// A memo without categories writes nothing. Every category must be a known
// memoboard category.
func (b *Board) Write(memo types.Memo) ([]string, error) {
	if memo.ID == "" {
		return nil, errors.New("memoboard: memo id is required")
	}
	for _, c := range memo.Categories {
		if !types.IsValidMemoCategory(c) {
			return nil, fmt.Errorf("memoboard: unknown category %q", c)
		}
	}
	if len(memo.Categories) == 0 {
		return nil, nil
	}

	data, err := json.MarshalIndent(memo, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("memoboard: encode memo %s: %w", memo.ID, err)
	}

	paths := make([]string, 0, len(memo.Categories))
	for _, category := range memo.Categories {
		path := b.Path(category, memo.ID)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return paths, fmt.Errorf("memoboard: create %s: %w", category, err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return paths, fmt.Errorf("memoboard: write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// List reads every memo filed under category, ordered by source date.
func (b *Board) List(category string) ([]types.Memo, error) {
	entries, err := os.ReadDir(filepath.Join(b.dir, category))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memoboard: list %s: %w", category, err)
	}

	var memos []types.Memo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir, category, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("memoboard: read %s: %w", e.Name(), err)
		}
		var m types.Memo
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("memoboard: decode %s: %w", e.Name(), err)
		}
		memos = append(memos, m)
	}

	sort.SliceStable(memos, func(i, j int) bool {
		return memos[i].Source.Date.Before(memos[j].Source.Date)
	})
	return memos, nil
}
