package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPruner struct {
	calls atomic.Int32
	err   error
}

func (p *countingPruner) Prune(context.Context) (int, error) {
	p.calls.Add(1)
	return 2, p.err
}

func TestScheduler_RunsPrune(t *testing.T) {
	p := &countingPruner{}
	s := New(p, 20*time.Millisecond, slog.Default())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return p.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_PruneErrorDoesNotStop(t *testing.T) {
	p := &countingPruner{err: errors.New("db down")}
	s := New(p, 20*time.Millisecond, slog.Default())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return p.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestNew_DefaultInterval(t *testing.T) {
	s := New(&countingPruner{}, 0, slog.Default())
	assert.Equal(t, defaultInterval, s.interval)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := New(&countingPruner{}, time.Minute, slog.Default())
	assert.NotPanics(t, s.Stop)
}
