package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"notification-hub/internal/metrics"
	"notification-hub/internal/models"
)

func newTestEngine(r *Registry, timeout time.Duration, m *metrics.Metrics) *Engine {
	return NewEngine(r, EngineConfig{DeliveryTimeout: timeout}, m, zerolog.Nop())
}

func TestEngine_BroadcastReachesEveryone(t *testing.T) {
	r := newTestRegistry()
	a, b := &stubTransport{}, &stubTransport{}
	require.NoError(t, r.Authenticate(r.Register(a), "42", ""))
	r.Register(b)

	report, err := newTestEngine(r, time.Second, nil).Broadcast(context.Background(), titled(t, "y"))
	require.NoError(t, err)
	require.Equal(t, Report{Attempted: 2, Delivered: 2}, report)
	require.Equal(t, []string{"y"}, a.titles())
	require.Equal(t, []string{"y"}, b.titles())
}

func TestEngine_DeliverToUnknownUserIsNoop(t *testing.T) {
	r := newTestRegistry()
	a := &stubTransport{}
	r.Register(a)

	report, err := newTestEngine(r, time.Second, nil).DeliverTo(context.Background(), models.ByUser("nobody"), titled(t, "x"))
	require.NoError(t, err)
	require.Zero(t, report.Attempted)
	require.Empty(t, a.received())
}

func TestEngine_DeliverToRole(t *testing.T) {
	r := newTestRegistry()
	cook, manager := &stubTransport{}, &stubTransport{}
	require.NoError(t, r.Authenticate(r.Register(cook), "1", "cook"))
	require.NoError(t, r.Authenticate(r.Register(manager), "2", "manager"))

	report, err := newTestEngine(r, time.Second, nil).DeliverTo(context.Background(), models.ByRole("manager"), titled(t, "shift"))
	require.NoError(t, err)
	require.Equal(t, 1, report.Attempted)
	require.Empty(t, cook.received())
	require.Equal(t, []string{"shift"}, manager.titles())
}

func TestEngine_FailedDeliveryIsReconciled(t *testing.T) {
	r := newTestRegistry()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, r)

	alive, dead := &stubTransport{}, &stubTransport{}
	r.Register(alive)
	deadID := r.Register(dead)
	require.NoError(t, r.Authenticate(deadID, "7", ""))
	_ = dead.Close()

	report, err := newTestEngine(r, time.Second, m).Broadcast(context.Background(), titled(t, "z"))
	require.NoError(t, err)
	require.Equal(t, Report{Attempted: 2, Delivered: 1, Failed: 1}, report)
	require.Equal(t, 1, r.Count())

	_, ok := r.Get(deadID)
	require.False(t, ok)
	got, _ := r.Select(models.ByUser("7"))
	require.Empty(t, got)

	require.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(metrics.OutcomeFailed)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Reconciled))
}

func TestEngine_BoundedCleanupWithHangingClients(t *testing.T) {
	const (
		n       = 5
		k       = 2
		timeout = 100 * time.Millisecond
	)
	r := newTestRegistry()
	hanging := make([]*hangingTransport, 0, k)
	for i := 0; i < n; i++ {
		if i < k {
			h := newHangingTransport()
			hanging = append(hanging, h)
			r.Register(h)
			continue
		}
		r.Register(&stubTransport{})
	}

	start := time.Now()
	report, err := newTestEngine(r, timeout, nil).Broadcast(context.Background(), titled(t, "x"))
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Less(t, elapsed, n*timeout)
	require.Equal(t, Report{Attempted: n, Delivered: n - k, Failed: k}, report)
	require.Equal(t, n-k, r.Count())

	for _, h := range hanging {
		select {
		case <-h.release:
		default:
			t.Fatal("hanging transport was not closed")
		}
	}
}

func TestEngine_BoundedCleanupWithParallelLimit(t *testing.T) {
	const timeout = 50 * time.Millisecond
	r := newTestRegistry()
	for i := 0; i < 4; i++ {
		r.Register(newHangingTransport())
	}

	e := NewEngine(r, EngineConfig{DeliveryTimeout: timeout, MaxParallel: 2}, nil, zerolog.Nop())
	start := time.Now()
	report, err := e.Broadcast(context.Background(), titled(t, "x"))
	require.NoError(t, err)
	require.Less(t, time.Since(start), 4*timeout+timeout)
	require.Equal(t, 4, report.Failed)
	require.Zero(t, r.Count())
}

func TestEngine_NoDoubleDeliveryUnderConcurrentChurn(t *testing.T) {
	const n = 50
	r := newTestRegistry()
	originals := make([]*stubTransport, n)
	ids := make([]string, n)
	for i := range originals {
		originals[i] = &stubTransport{delay: time.Millisecond}
		ids[i] = r.Register(originals[i]).String()
	}

	var wg sync.WaitGroup
	late := make([]*stubTransport, n)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range late {
			late[i] = &stubTransport{}
			r.Register(late[i])
			if i%2 == 0 {
				snap := r.Snapshot()
				if len(snap) > 0 {
					r.Unregister(snap[0].ID)
				}
			}
		}
	}()

	report, err := newTestEngine(r, time.Second, nil).Broadcast(context.Background(), titled(t, "x"))
	wg.Wait()

	require.NoError(t, err)
	require.GreaterOrEqual(t, report.Attempted, n)

	total := 0
	for _, s := range originals {
		require.LessOrEqual(t, s.attempts.Load(), int32(1))
		total += int(s.attempts.Load())
	}
	for _, s := range late {
		require.LessOrEqual(t, s.attempts.Load(), int32(1))
		total += int(s.attempts.Load())
	}
	require.Equal(t, report.Attempted, total)
}

func TestEngine_CallerCancellationDoesNotDropClients(t *testing.T) {
	r := newTestRegistry()
	a := &stubTransport{}
	r.Register(a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestEngine(r, time.Second, nil).Broadcast(ctx, titled(t, "x"))
	require.NoError(t, err)
	require.Equal(t, 1, report.Delivered)
	require.Equal(t, 1, r.Count())
}

func TestEngine_SuccessfulDeliveryTouchesConnection(t *testing.T) {
	r := newTestRegistry()
	id := r.Register(&stubTransport{})
	before, _ := r.Get(id)
	time.Sleep(2 * time.Millisecond)

	_, err := newTestEngine(r, time.Second, nil).Broadcast(context.Background(), titled(t, "x"))
	require.NoError(t, err)

	after, _ := r.Get(id)
	require.True(t, after.LastActivity.After(before.LastActivity))
}
