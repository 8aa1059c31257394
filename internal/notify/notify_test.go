package notify

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 16)}
}

func (r *recorder) callback(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	r.ch <- path
}

func (r *recorder) next(t *testing.T) string {
	t.Helper()
	select {
	case p := <-r.ch:
		return p
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for inbox delivery")
		return ""
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestInboxWatcher_DrainsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "gmail", "b.json"), "{}")
	writeFile(t, filepath.Join(dir, "a.eml"), "Subject: hi\r\n\r\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, ".staging.json"), "ignored")

	rec := newRecorder()
	w := NewInboxWatcher(dir, rec.callback, WithSettle(10*time.Millisecond))
	require.NoError(t, w.Start())
	defer w.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{
		filepath.Join(dir, "a.eml"),
		filepath.Join(dir, "gmail", "b.json"),
	}, rec.paths)
}

func TestInboxWatcher_ReceivesNewFile(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()

	w := NewInboxWatcher(dir, rec.callback, WithSettle(20*time.Millisecond))
	require.NoError(t, w.Start())
	defer w.Stop()

	// Give fsnotify a moment to register
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "m1.json")
	writeFile(t, path, `{"subject": "hello"}`)

	assert.Equal(t, path, rec.next(t))

	select {
	case extra := <-rec.ch:
		t.Fatalf("create and write should coalesce, got second delivery %s", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInboxWatcher_WatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()

	w := NewInboxWatcher(dir, rec.callback, WithSettle(20*time.Millisecond))
	require.NoError(t, w.Start())
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)

	sub := filepath.Join(dir, "outlook")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(sub, "m2.eml")
	writeFile(t, path, "Subject: x\r\n\r\nbody")

	assert.Equal(t, path, rec.next(t))
}

func TestInboxWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()

	w := NewInboxWatcher(dir, rec.callback, WithSettle(10*time.Millisecond))
	require.NoError(t, w.Start())
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "readme.md"), "x")
	writeFile(t, filepath.Join(dir, ".tmp-m.json"), "x")

	select {
	case p := <-rec.ch:
		t.Fatalf("unexpected delivery %s", p)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestInboxWatcher_StopWithoutStart(t *testing.T) {
	w := NewInboxWatcher(t.TempDir(), func(string) {})
	w.Stop()
}

func TestIsCandidate(t *testing.T) {
	assert.True(t, isCandidate("/in/gmail/x.json"))
	assert.True(t, isCandidate("/in/x.eml"))
	assert.False(t, isCandidate("/in/.x.json"))
	assert.False(t, isCandidate("/in/x.txt"))
}
