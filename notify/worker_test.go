package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crednest/loan-engine/notify"
	"github.com/crednest/loan-engine/store/sqlite"
)

// recordingGateway captures sends and fails on demand.
type recordingGateway struct {
	sent []string // recipients in delivery order
	err  error
}

func (g *recordingGateway) Send(_ context.Context, recipient, _ string) error {
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, recipient)
	return nil
}

func newTestQueue(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func enqueue(t *testing.T, q notify.Queue, recipient string, offset time.Duration) notify.QueuedNotification {
	t.Helper()
	n := notify.New(recipient, "test message")
	n.CreatedAt = n.CreatedAt.Add(offset)
	require.NoError(t, q.Enqueue(context.Background(), n))
	return n
}

// =============================================================================
// QUEUE DRAIN
// =============================================================================

func TestWorker_DeliversPendingOldestFirst(t *testing.T) {
	// GIVEN: two pending notifications
	// WHEN: one tick runs
	// THEN: both are delivered in enqueue order and marked sent

	queue := newTestQueue(t)
	ctx := context.Background()
	enqueue(t, queue, "loan:1", 0)
	enqueue(t, queue, "loan:2", time.Second)

	gateway := &recordingGateway{}
	worker := notify.NewWorker(queue, gateway, notify.DefaultWorkerConfig(), zap.NewNop())
	require.NoError(t, worker.Run(ctx))

	assert.Equal(t, []string{"loan:1", "loan:2"}, gateway.sent)

	counts, err := queue.QueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[string(notify.StatusSent)])
}

func TestWorker_EmptyQueueIsQuietNoOp(t *testing.T) {
	queue := newTestQueue(t)
	gateway := &recordingGateway{}
	worker := notify.NewWorker(queue, gateway, notify.DefaultWorkerConfig(), zap.NewNop())

	require.NoError(t, worker.Run(context.Background()))
	assert.Empty(t, gateway.sent)
}

func TestWorker_GatewayFailureRetriedNextTick(t *testing.T) {
	// GIVEN: a gateway that fails once, then recovers
	// WHEN: two ticks run
	// THEN: the item is failed after the first and sent after the second

	queue := newTestQueue(t)
	ctx := context.Background()
	enqueue(t, queue, "loan:1", 0)

	gateway := &recordingGateway{err: errors.New("sms provider timeout")}
	worker := notify.NewWorker(queue, gateway, notify.DefaultWorkerConfig(), zap.NewNop())
	require.NoError(t, worker.Run(ctx))

	counts, err := queue.QueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[string(notify.StatusFailed)])

	gateway.err = nil
	require.NoError(t, worker.Run(ctx))

	counts, err = queue.QueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[string(notify.StatusSent)])
	assert.Equal(t, []string{"loan:1"}, gateway.sent)
}

func TestWorker_ExhaustedItemGoesDead(t *testing.T) {
	// GIVEN: a permanently failing gateway and a ceiling of 2 attempts
	// WHEN: ticks keep running
	// THEN: after 2 attempts the item is dead and never claimed again

	queue := newTestQueue(t)
	ctx := context.Background()
	enqueue(t, queue, "loan:1", 0)

	gateway := &recordingGateway{err: errors.New("invalid recipient")}
	worker := notify.NewWorker(queue, gateway,
		notify.WorkerConfig{BatchSize: 10, MaxAttempts: 2}, zap.NewNop())

	for i := 0; i < 4; i++ {
		require.NoError(t, worker.Run(ctx))
	}

	counts, err := queue.QueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[string(notify.StatusDead)])
	assert.Zero(t, counts[string(notify.StatusFailed)])
}

func TestWorker_OneBadItemDoesNotBlockTheRest(t *testing.T) {
	// GIVEN: three items where only the middle recipient is rejected
	// WHEN: one tick runs
	// THEN: the other two are sent, the bad one is failed

	queue := newTestQueue(t)
	ctx := context.Background()
	enqueue(t, queue, "loan:1", 0)
	bad := enqueue(t, queue, "loan:2", time.Second)
	enqueue(t, queue, "loan:3", 2*time.Second)

	gateway := &selectiveGateway{reject: bad.Recipient}
	worker := notify.NewWorker(queue, gateway, notify.DefaultWorkerConfig(), zap.NewNop())
	require.NoError(t, worker.Run(ctx))

	assert.Equal(t, []string{"loan:1", "loan:3"}, gateway.sent)

	counts, err := queue.QueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[string(notify.StatusSent)])
	assert.Equal(t, 1, counts[string(notify.StatusFailed)])
}

type selectiveGateway struct {
	reject string
	sent   []string
}

func (g *selectiveGateway) Send(_ context.Context, recipient, _ string) error {
	if recipient == g.reject {
		return errors.New("recipient rejected")
	}
	g.sent = append(g.sent, recipient)
	return nil
}
