package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "json", "warn")
	l.Info("hidden")
	l.Warn("shown", "blueprint", "Door")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "Door", rec["blueprint"])

	buf.Reset()
	NewLogger(&buf, "text", "bogus").Debug("dropped")
	assert.Empty(t, buf.String(), "unknown levels fall back to info")

	OrNop(nil).Error("ignored")
	assert.NotNil(t, OrNop(l))
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)
	rec.Observe(context.Background(), "scan", true, 10*time.Millisecond)
	rec.Observe(context.Background(), "scan", false, time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)
	rec.CountExport("blueprint", true)

	assert.Equal(t, 1.0, promtest.ToFloat64(rec.results.WithLabelValues("scan", "success")))
	assert.Equal(t, 1.0, promtest.ToFloat64(rec.results.WithLabelValues("scan", "error")))
	assert.Equal(t, 1.0, promtest.ToFloat64(rec.exports.WithLabelValues("blueprint", "success")))
	n, err := promtest.GatherAndCount(reg, "autoexport_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExpvarRecorder(t *testing.T) {
	rec := NewExpvarRecorder("")
	assert.True(t, strings.HasPrefix(rec.Name(), "autoexport_metrics_"))
	rec.Observe(context.Background(), "export_level", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "export_level", false, 3*time.Millisecond)
	snap := rec.Snapshot()
	assert.InDelta(t, 5.0, snap.DurationsMS["export_level"], 1e-9)
	assert.Equal(t, map[string]int64{"success": 1, "error": 1}, snap.Results["export_level"])
}

func TestJSONTracerAndObserve(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	rec := NewExpvarRecorder("")
	boom := errors.New("boom")

	err := Observe(context.Background(), tracer, Multi{rec, nil}, "schedule", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, Observe(context.Background(), tracer, nil, "scan", func(context.Context) error { return nil }))
	require.NoError(t, Observe(context.Background(), nil, nil, "noop", func(context.Context) error { return nil }))

	entries := tracer.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "schedule", entries[0].Operation)
	assert.Equal(t, "error", entries[0].Status)
	assert.Equal(t, "boom", entries[0].Error)
	assert.Equal(t, "success", entries[1].Status)
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
	assert.Equal(t, int64(1), rec.Snapshot().Results["schedule"]["error"])

	_, span := tracer.Start(context.Background(), "twice")
	span.End(nil)
	span.End(boom)
	assert.Len(t, tracer.Entries(), 3, "a span records once")
}
