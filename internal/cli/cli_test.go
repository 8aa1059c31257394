package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrypster/secretary/internal/config"
	"github.com/scrypster/secretary/internal/llm"
)

// scriptedInvoker answers every template with a fixed, well-formed reply.
type scriptedInvoker struct {
	mu    sync.Mutex
	calls map[string]int
}

func (s *scriptedInvoker) Invoke(_ context.Context, tmpl *llm.Template, params any, out llm.Schema) error {
	s.mu.Lock()
	s.calls[tmpl.Name]++
	s.mu.Unlock()

	var raw string
	switch tmpl.Name {
	case llm.ImplicationBatchPrompt.Name, llm.UniquenessBatchPrompt.Name:
		p := params.(llm.BatchParams)
		items := make([]string, 0, len(p.Emails))
		for _, e := range p.Emails {
			if tmpl.Name == llm.ImplicationBatchPrompt.Name {
				items = append(items, fmt.Sprintf(`{"idx": %d, "implications": [{"category": "profession", "description": "works on %s"}]}`, e.Idx, e.Subject))
			} else {
				items = append(items, fmt.Sprintf(`{"idx": %d, "reasoning": "work mail", "score": 4}`, e.Idx))
			}
		}
		raw = `{"emails": [` + strings.Join(items, ",") + `]}`
	case llm.BiographyFormationPrompt.Name:
		raw = `{"description": "An accountant."}`
	case llm.BiographyWritingPrompt.Name:
		raw = `{"biography": "My boss is an accountant."}`
	case llm.SummarizePrompt.Name:
		raw = `{"thought": "", "summary": "Dentist appointment Tuesday 10am."}`
	case llm.ExtractionPrompt.Name:
		raw = `{"extractions": [{"type": "actionable", "categories": ["physical_wellbeing"], "details": "Dentist Tuesday 10am"}]}`
	default:
		return fmt.Errorf("unexpected template %s", tmpl.Name)
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return err
	}
	return out.Validate()
}

func (s *scriptedInvoker) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

type harness struct {
	dir    string
	config string
	inv    *scriptedInvoker
}

func newHarness(t *testing.T, messages int) *harness {
	t.Helper()
	dir := t.TempDir()

	for i := 0; i < messages; i++ {
		path := filepath.Join(dir, "mail", "gmail", fmt.Sprintf("2024050%d_090000_m%d.json", i+1, i))
		body := fmt.Sprintf(`{"subject": "ledger %d", "sender": "cfo@example.com", "to": "me@example.com",
			"date": "2024-05-0%dT09:00:00+00:00", "body": "See you at the dentist.", "attachments": [],
			"message_id": "m%d", "provider": "gmail"}`, i, i+1, i)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}

	cfgPath := filepath.Join(dir, "secretary.yaml")
	yaml := fmt.Sprintf("storage:\n  data_path: %s\nmailbox:\n  source_path: %s\n  lookback_days: 0\nlogging:\n  level: error\n  file: %s\n",
		filepath.Join(dir, "data"), filepath.Join(dir, "mail"), filepath.Join(dir, "logs", "secretary.log"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	return &harness{dir: dir, config: cfgPath, inv: &scriptedInvoker{calls: map[string]int{}}}
}

func (h *harness) run(args ...string) (string, error) {
	a := newApp()
	a.newGateway = func(config.LLMConfig, *zap.Logger) (llm.Invoker, error) { return h.inv, nil }

	root := a.rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", h.config}, args...))

	err := root.ExecuteContext(context.Background())
	a.close()
	return out.String(), err
}

func TestPipeline_PersonaResumeMemosStatus(t *testing.T) {
	h := newHarness(t, 3)
	personaDir := filepath.Join(h.dir, "data", "persona")

	out, err := h.run("persona", "--batch-size", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "checkpoint 1 written")
	assert.DirExists(t, filepath.Join(personaDir, "checkpoint_0"))
	assert.DirExists(t, filepath.Join(personaDir, "checkpoint_1"))

	bio, err := os.ReadFile(filepath.Join(personaDir, "checkpoint_1", "persona.txt"))
	require.NoError(t, err)
	assert.Equal(t, "My boss is an accountant.", string(bio))
	assert.Equal(t, 2, h.inv.count(llm.ImplicationBatchPrompt.Name))

	// Everything is already in the ledger: resuming writes an unchanged checkpoint.
	out, err = h.run("persona", "--resume")
	require.NoError(t, err)
	assert.Contains(t, out, "checkpoint 2 written")
	assert.Equal(t, 2, h.inv.count(llm.ImplicationBatchPrompt.Name))

	out, err = h.run("memos")
	require.NoError(t, err)
	assert.Contains(t, out, "3 messages processed, 0 skipped, 3 memos")

	entries, err := os.ReadDir(filepath.Join(h.dir, "data", "memoboard", "physical_wellbeing"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	out, err = h.run("memos")
	require.NoError(t, err)
	assert.Contains(t, out, "0 messages processed, 3 skipped, 0 memos")

	out, err = h.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "persona: checkpoint 2")
	assert.Contains(t, out, "processed: 3 persona, 3 memo")
	assert.Contains(t, out, "physical_wellbeing")
}

func TestMemos_SingleFile(t *testing.T) {
	h := newHarness(t, 1)
	personaFile := filepath.Join(h.dir, "persona.txt")
	require.NoError(t, os.WriteFile(personaFile, []byte("My boss."), 0o600))

	msg := filepath.Join(h.dir, "mail", "gmail", "20240501_090000_m0.json")
	out, err := h.run("memos", "--persona", personaFile, "--message", msg)
	require.NoError(t, err)
	assert.Contains(t, out, `1 memos from "ledger 0"`)
}

func TestMemos_RequiresPersona(t *testing.T) {
	h := newHarness(t, 1)
	_, err := h.run("memos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secretary persona")
	assert.Zero(t, h.inv.count(llm.SummarizePrompt.Name))
}

func TestStatus_Empty(t *testing.T) {
	h := newHarness(t, 0)
	out, err := h.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "persona: no checkpoint")
	assert.Contains(t, out, "processed: 0 persona, 0 memo")
}

func TestGlobalFlags(t *testing.T) {
	h := newHarness(t, 0)

	_, err := h.run("--provider", "carrier-pigeon", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported LLM provider")

	a := newApp()
	a.configPath = h.config
	a.provider = "openai"
	a.model = "llama-3.3-70b-versatile"
	require.NoError(t, a.setup())
	defer a.close()
	assert.Equal(t, "llama-3.3-70b-versatile", a.cfg.LLM.OpenAIModel)
}

func TestExecute_ReportsErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "status"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "error:")
}

func TestImport_StoresEML(t *testing.T) {
	h := newHarness(t, 0)
	inbox := filepath.Join(h.dir, "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0o750))
	eml := "From: Ann <ann@example.com>\r\nTo: me@example.com\r\nSubject: Rent\r\n" +
		"Date: Thu, 02 May 2024 09:30:15 +0000\r\nMessage-ID: <rent-1@example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n\r\nRent is due Friday.\r\n"
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "rent.eml"), []byte(eml), 0o600))

	out, err := h.run("import", inbox, "--mail-provider", "imap")
	require.NoError(t, err)
	assert.Contains(t, out, "1 messages stored")

	stored := filepath.Join(h.dir, "mail", "imap", "20240502_093015_rent-1@example.com.json")
	require.FileExists(t, stored)

	out, err = h.run("persona")
	require.NoError(t, err)
	assert.Contains(t, out, "checkpoint 0 written")
	assert.Equal(t, 1, h.inv.count(llm.ImplicationBatchPrompt.Name))
}
