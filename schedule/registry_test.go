package schedule_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crednest/loan-engine/loan"
	"github.com/crednest/loan-engine/schedule"
)

func newTestRegistry() *schedule.Registry {
	return schedule.New(time.UTC, zap.NewNop())
}

func noop(ctx context.Context) error { return nil }

// =============================================================================
// REGISTRATION
// =============================================================================

func TestRegister_DuplicateName_Rejected(t *testing.T) {
	// GIVEN: a task registered under a name
	// WHEN: registering a second task under the same name
	// THEN: the second registration fails loudly

	r := newTestRegistry()
	require.NoError(t, r.Register("interest", schedule.EveryNHours(4), noop))

	err := r.Register("interest", schedule.EveryNMinutes(1), noop)
	assert.ErrorIs(t, err, loan.ErrDuplicateTask)
	assert.Len(t, r.TaskNames(), 1)
}

func TestRegister_InvalidCadence_Rejected(t *testing.T) {
	r := newTestRegistry()

	assert.ErrorIs(t, r.Register("a", schedule.EveryNMinutes(0), noop), loan.ErrUnknownCadence)
	assert.ErrorIs(t, r.Register("b", schedule.EveryNHours(-1), noop), loan.ErrUnknownCadence)
	assert.ErrorIs(t, r.Register("c", schedule.DailyAt("25:00"), noop), loan.ErrUnknownCadence)
	assert.ErrorIs(t, r.Register("d", schedule.DailyAt("2.30"), noop), loan.ErrUnknownCadence)
	require.NoError(t, r.Register("e", schedule.DailyAt("02:30"), noop))
}

// =============================================================================
// SINGLE-FLIGHT
// =============================================================================

func TestRunNow_OverlappingTick_Dropped(t *testing.T) {
	// GIVEN: a handler still running from its previous tick
	// WHEN: the next tick fires
	// THEN: it is dropped, not queued behind the running one

	r := newTestRegistry()

	var runs atomic.Int32
	var startedOnce sync.Once
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, r.Register("slow", schedule.EveryNHours(1), func(ctx context.Context) error {
		runs.Add(1)
		startedOnce.Do(func() { close(started) })
		<-release
		return nil
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, r.RunNow("slow"))
	}()

	<-started
	// Second trigger while the first is still in flight
	require.NoError(t, r.RunNow("slow"))
	assert.Equal(t, int32(1), runs.Load(), "overlapping tick must be dropped")

	close(release)
	wg.Wait()

	// With the first run finished the task is invocable again
	require.NoError(t, r.RunNow("slow"))
	assert.Equal(t, int32(2), runs.Load())
}

// =============================================================================
// ISOLATION
// =============================================================================

func TestRunNow_PanickingHandler_Recovered(t *testing.T) {
	// GIVEN: a handler that panics
	// WHEN: its tick fires
	// THEN: the panic is contained and the task can run again

	r := newTestRegistry()

	var calls atomic.Int32
	require.NoError(t, r.Register("flaky", schedule.EveryNMinutes(1), func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	}))

	assert.NotPanics(t, func() { require.NoError(t, r.RunNow("flaky")) })
	require.NoError(t, r.RunNow("flaky"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunNow_FailingHandler_DoesNotStick(t *testing.T) {
	// GIVEN: a handler returning an error
	// WHEN: the tick completes
	// THEN: the single-flight flag is released for the next tick

	r := newTestRegistry()

	var calls atomic.Int32
	require.NoError(t, r.Register("failing", schedule.EveryNMinutes(1), func(ctx context.Context) error {
		calls.Add(1)
		return assert.AnError
	}))

	require.NoError(t, r.RunNow("failing"))
	require.NoError(t, r.RunNow("failing"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunNow_UnknownTask_Error(t *testing.T) {
	r := newTestRegistry()
	assert.Error(t, r.RunNow("nope"))
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestStart_RunOnStart_FiresOnce(t *testing.T) {
	// GIVEN: one task with run-on-start, one without
	// WHEN: the registry starts
	// THEN: only the opted-in task fires immediately

	r := newTestRegistry()

	var eager, lazy atomic.Int32
	fired := make(chan struct{})

	require.NoError(t, r.Register("eager", schedule.EveryNHours(12), func(ctx context.Context) error {
		eager.Add(1)
		close(fired)
		return nil
	}, schedule.WithRunOnStart()))
	require.NoError(t, r.Register("lazy", schedule.EveryNHours(12), func(ctx context.Context) error {
		lazy.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop(context.Background())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("run-on-start task never fired")
	}

	assert.Equal(t, int32(1), eager.Load())
	assert.Equal(t, int32(0), lazy.Load(), "default is no fire at startup")
}
