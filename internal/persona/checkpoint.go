package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/scrypster/secretary/pkg/types"
)

// Checkpoint file names inside a checkpoint_<n> directory.
const (
	HypothesisFile = "hypothesis.json"
	PersonaFile    = "persona.txt"

	checkpointPrefix = "checkpoint_"
)

// ErrNoCheckpoint is returned when a checkpoint root holds no checkpoints.
var ErrNoCheckpoint = errors.New("no checkpoint")

// CheckpointStore manages the checkpoint_<n> directories under one root.
type CheckpointStore struct {
	root string
}

// NewCheckpointStore creates a store rooted at root. The directory is created
// on the first Write.
func NewCheckpointStore(root string) *CheckpointStore {
	return &CheckpointStore{root: root}
}

// Root returns the checkpoint root directory.
func (s *CheckpointStore) Root() string { return s.root }

// Path returns the directory of checkpoint n.
func (s *CheckpointStore) Path(n int) string {
	return filepath.Join(s.root, checkpointPrefix+strconv.Itoa(n))
}

// List returns the indices of existing checkpoints in ascending order.
// A missing root has no checkpoints.
func (s *CheckpointStore) List() ([]int, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persona: list checkpoints: %w", err)
	}

	var indices []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, ok := checkpointIndex(e.Name()); ok {
			indices = append(indices, n)
		}
	}
	sort.Ints(indices)
	return indices, nil
}

// Next returns the index after the highest existing checkpoint (0 if none).
func (s *CheckpointStore) Next() (int, error) {
	indices, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(indices) == 0 {
		return 0, nil
	}
	return indices[len(indices)-1] + 1, nil
}

// Latest returns the path and index of the newest checkpoint, or ErrNoCheckpoint.
func (s *CheckpointStore) Latest() (string, int, error) {
	indices, err := s.List()
	if err != nil {
		return "", 0, err
	}
	if len(indices) == 0 {
		return "", 0, ErrNoCheckpoint
	}
	n := indices[len(indices)-1]
	return s.Path(n), n, nil
}

// Write persists checkpoint n and returns its directory. The files are staged
// in a temporary directory and renamed into place, so a checkpoint directory
// is either complete or absent. An existing checkpoint is never overwritten.
func (s *CheckpointStore) Write(n int, hypotheses []types.Hypothesis, biography string) (string, error) {
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return "", fmt.Errorf("persona: create checkpoint root: %w", err)
	}

	final := s.Path(n)
	if _, err := os.Stat(final); err == nil {
		return "", fmt.Errorf("persona: checkpoint %d already exists", n)
	}

	if hypotheses == nil {
		hypotheses = []types.Hypothesis{}
	}
	data, err := json.MarshalIndent(hypotheses, "", "  ")
	if err != nil {
		return "", fmt.Errorf("persona: encode hypotheses: %w", err)
	}

	tmp, err := os.MkdirTemp(s.root, "."+checkpointPrefix+strconv.Itoa(n)+"-")
	if err != nil {
		return "", fmt.Errorf("persona: stage checkpoint: %w", err)
	}
	if err := writeCheckpointFiles(tmp, data, biography); err != nil {
		_ = os.RemoveAll(tmp)
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.RemoveAll(tmp)
		return "", fmt.Errorf("persona: commit checkpoint %d: %w", n, err)
	}
	return final, nil
}

func writeCheckpointFiles(dir string, hypotheses []byte, biography string) error {
	if err := os.WriteFile(filepath.Join(dir, HypothesisFile), hypotheses, 0o600); err != nil {
		return fmt.Errorf("persona: write %s: %w", HypothesisFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, PersonaFile), []byte(biography), 0o600); err != nil {
		return fmt.Errorf("persona: write %s: %w", PersonaFile, err)
	}
	return nil
}

// ReadCheckpoint loads the hypotheses and biography stored in dir.
// Unknown fields in hypothesis.json are ignored.
func ReadCheckpoint(dir string) ([]types.Hypothesis, string, error) {
	data, err := os.ReadFile(filepath.Join(dir, HypothesisFile))
	if err != nil {
		return nil, "", fmt.Errorf("persona: read checkpoint: %w", err)
	}
	var hypotheses []types.Hypothesis
	if err := json.Unmarshal(data, &hypotheses); err != nil {
		return nil, "", fmt.Errorf("persona: decode %s: %w", filepath.Join(dir, HypothesisFile), err)
	}

	bio, err := os.ReadFile(filepath.Join(dir, PersonaFile))
	if err != nil {
		return nil, "", fmt.Errorf("persona: read checkpoint: %w", err)
	}
	return hypotheses, string(bio), nil
}

// ReadBiography loads only persona.txt. path may be a checkpoint directory or
// the text file itself.
func ReadBiography(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("persona: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, PersonaFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("persona: %w", err)
	}
	return string(data), nil
}

func checkpointIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, checkpointPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
