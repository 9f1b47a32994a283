package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/toolhub-crawler/internal/progress"
)

func runEvents(runID string) []progress.Event {
	now := time.Now()
	return []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{
			RunID:       runID,
			TS:          now.Add(time.Second),
			Stage:       progress.StageTargetDone,
			Target:      "https://hay.toolforge.org/toolinfo.json",
			Site:        "hay.toolforge.org",
			StatusClass: progress.Status2xx,
			Valid:       true,
			Bytes:       2048,
			Records:     3,
			Created:     2,
			Updated:     1,
			Dur:         300 * time.Millisecond,
		},
		{RunID: runID, TS: now.Add(2 * time.Second), Stage: progress.StageRunDone, Dur: 2 * time.Second},
	}
}

func TestPrometheusSinkRecordsRun(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, sink.Consume(context.Background(), runEvents("run-1")))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.targetFetches.WithLabelValues("hay.toolforge.org", "2xx", "true")))
	require.InDelta(t, 2048.0, testutil.ToFloat64(sink.targetBytes.WithLabelValues("hay.toolforge.org")), 1e-9)
	require.Equal(t, 2.0, testutil.ToFloat64(sink.toolChanges.WithLabelValues("created")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.toolChanges.WithLabelValues("updated")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "toolhub_crawl_run_duration_seconds"))
}

func TestPrometheusSinkTracksRunningRuns(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)
	start := progress.Event{RunID: "run-2", TS: time.Now(), Stage: progress.StageRunStart}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, start}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))

	done := progress.Event{RunID: "run-2", TS: time.Now(), Stage: progress.StageRunError}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{done, done}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkWritesTargetFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), runEvents("run-3")))

	entries := logs.FilterMessage("crawl progress").All()
	require.Len(t, entries, 3)
	fields := entries[1].ContextMap()
	require.Equal(t, "https://hay.toolforge.org/toolinfo.json", fields["target"])
	require.Equal(t, int64(2), fields["created"])
	require.Equal(t, true, fields["valid"])
}
