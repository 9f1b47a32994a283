package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) RunAll(context.Context) (crawler.RunSummary, error) {
	n := r.calls.Add(1)
	if r.err != nil {
		return crawler.RunSummary{}, r.err
	}
	return crawler.RunSummary{RunID: fmt.Sprintf("run-%d", n), NewTools: 1}, nil
}

func TestNewRejectsBadSpec(t *testing.T) {
	t.Parallel()

	_, err := New("every tuesday", &countingRunner{}, nil)
	require.Error(t, err)

	_, err = New("@hourly", nil, nil)
	require.Error(t, err)
}

func TestNextHourly(t *testing.T) {
	t.Parallel()

	s, err := New("@hourly", &countingRunner{}, nil)
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC), s.Next(from))
}

func TestTriggerLogsOutcome(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	runner := &countingRunner{}
	s, err := New("*/5 * * * *", runner, zap.New(core))
	require.NoError(t, err)

	s.Trigger(context.Background())
	require.EqualValues(t, 1, runner.calls.Load())
	finished := logs.FilterMessage("scheduled crawl finished").All()
	require.Len(t, finished, 1)
	require.Equal(t, "run-1", finished[0].ContextMap()["run_id"])

	runner.err = crawler.ErrRunInProgress
	s.Trigger(context.Background())
	require.Equal(t, 1, logs.FilterMessage("scheduled crawl skipped, run in progress").Len())

	runner.err = errors.New("store down")
	s.Trigger(context.Background())
	require.Equal(t, 1, logs.FilterMessage("scheduled crawl failed").Len())
}

func TestStartFiresOnSchedule(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	s, err := New("@every 1s", runner, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	<-s.Stop().Done()
}
