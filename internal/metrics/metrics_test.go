package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestAddLLMTokens(t *testing.T) {
	prompt := LLMTokens.WithLabelValues("tokens_test", "prompt")
	completion := LLMTokens.WithLabelValues("tokens_test", "completion")
	before := counterValue(t, prompt)

	AddLLMTokens("tokens_test", 120, 0)
	AddLLMTokens("tokens_test", 30, 45)

	assert.InDelta(t, before+150, counterValue(t, prompt), 1e-9)
	assert.InDelta(t, 45, counterValue(t, completion), 1e-9)
}

func TestCounters(t *testing.T) {
	IncrementMessageProcessed("memo", "counter_test")
	IncrementMessageProcessed("memo", "counter_test")
	assert.InDelta(t, 2, counterValue(t, MessagesProcessed.WithLabelValues("memo", "counter_test")), 1e-9)

	IncrementMemoWritten("household", "counter_test")
	assert.InDelta(t, 1, counterValue(t, MemosWritten.WithLabelValues("household", "counter_test")), 1e-9)
}

func TestWriteTextfile(t *testing.T) {
	require.NoError(t, WriteTextfile(""), "empty path disables export")

	RecordLLMCall("textfile_test", "ok", 250*time.Millisecond)

	path := filepath.Join(t.TempDir(), "secretary.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `secretary_llm_call_duration_seconds_count{status="ok",template="textfile_test"} 1`)
}
