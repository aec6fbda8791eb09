package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf    *bytes.Buffer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}

	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}

	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	enc := json.NewEncoder(h.buf)
	return enc.Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  make([]slog.Attr, len(h.attrs)+len(attrs)),
		groups: h.groups,
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(name string) slog.Handler {
	return &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(h.groups, name),
	}
}

func (h *testHandler) getLastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			var m map[string]any
			if err := json.Unmarshal(lines[i], &m); err == nil {
				return m
			}
		}
	}
	return nil
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds run_id and attempt", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		enriched := EnrichLogger(logger, "run-123", 2)
		enriched.Info("test message")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "run-123", record["run_id"])
		assert.Equal(t, float64(2), record["attempt"])
	})

	t.Run("returns nil for nil logger", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "run-123", 1))
	})
}

func TestLogRunStart(t *testing.T) {
	t.Run("logs run id and attempt at info", func(t *testing.T) {
		h := newTestHandler()
		LogRunStart(slog.New(h), "run-abc", 1)

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "INFO", record["level"])
		assert.Equal(t, "pipeline run starting", record["msg"])
		assert.Equal(t, "run-abc", record["run_id"])
		assert.Equal(t, float64(1), record["attempt"])
	})

	t.Run("does not panic with nil logger", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogRunStart(nil, "run-abc", 1)
		})
	})
}

func TestLogRunComplete(t *testing.T) {
	t.Run("logs the full report", func(t *testing.T) {
		h := newTestHandler()
		LogRunComplete(slog.New(h), RunReport{
			RunID:      "run-xyz",
			Attempts:   2,
			Duration:   1500 * time.Millisecond,
			Input:      10,
			Rejected:   2,
			Flattened:  12,
			Aggregated: 4,
			Sinks: []SinkOutcome{
				{Sink: "analytics", Rows: 4, Duration: 20 * time.Millisecond, Success: true},
			},
		})

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "pipeline run completed", record["msg"])
		assert.Equal(t, "run-xyz", record["run_id"])
		assert.Equal(t, float64(2), record["attempts"])
		assert.Equal(t, float64(1500), record["duration_ms"])
		assert.Equal(t, float64(10), record["input_records"])
		assert.Equal(t, float64(2), record["rejected_records"])
		assert.Equal(t, float64(12), record["flattened_records"])
		assert.Equal(t, float64(4), record["aggregated_rows"])
	})

	t.Run("does not panic with nil logger", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogRunComplete(nil, RunReport{})
		})
	})
}

func TestLogRunError(t *testing.T) {
	h := newTestHandler()
	LogRunError(slog.New(h), "run-err", 3, errors.New("sink down"), 250)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "pipeline run failed", record["msg"])
	assert.Equal(t, "run-err", record["run_id"])
	assert.Equal(t, float64(3), record["attempt"])
	assert.Equal(t, "sink down", record["error"])
	assert.Equal(t, float64(250), record["duration_ms"])
}

func TestLogStageComplete(t *testing.T) {
	h := newTestHandler()
	LogStageComplete(slog.New(h), "transform", 42, 12.5)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "stage completed", record["msg"])
	assert.Equal(t, "transform", record["stage"])
	assert.Equal(t, float64(42), record["records"])
}

func TestLogSLABreach(t *testing.T) {
	h := newTestHandler()
	LogSLABreach(slog.New(h), "run-slow", 6*time.Minute, 5*time.Minute)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "run exceeded SLA threshold", record["msg"])
	assert.Equal(t, "run-slow", record["run_id"])
	assert.Equal(t, float64((6*time.Minute).Milliseconds()), record["duration_ms"])
	assert.Equal(t, float64((5*time.Minute).Milliseconds()), record["threshold_ms"])
}

func TestTimedOperation(t *testing.T) {
	elapsed := TimedOperation()
	time.Sleep(10 * time.Millisecond)
	ms := elapsed()
	assert.GreaterOrEqual(t, ms, float64(10))
}
