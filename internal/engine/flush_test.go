package engine

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/sentrywatch/endpointagent/internal/event"
	"github.com/sentrywatch/endpointagent/internal/rpc"
)

// fakeSink is an in-process activity service speaking the same JSON codec
// as the real client, so the flush loop is exercised over genuine gRPC
// framing rather than a stubbed transport.
type fakeSink struct {
	received atomic.Int32
}

func startFakeSink(t *testing.T) (string, *fakeSink) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fs := &fakeSink{}
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		var req rpc.CreateActivityRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		fs.received.Add(1)
		return stream.SendMsg(&rpc.CreateActivityResponse{Success: true})
	}))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return lis.Addr().String(), fs
}

func enqueueSnapshots(t *testing.T, e *Engine, n int) {
	t.Helper()
	events := make([]*event.ActivityEvent, n)
	for i := range events {
		events[i] = event.New(e.cfg.Agent.ComputerID, event.ProcessSnapshot)
	}
	_, err := e.queue.EnqueueMany(context.Background(), events)
	require.NoError(t, err)
}

// With the sink reachable, every queued event is delivered in order, the
// queue drains to zero, and the agent flips to online.
func TestFlushLoopDeliversQueuedEventsWhenSinkOnline(t *testing.T) {
	addr, fs := startFakeSink(t)

	e, q := newTestEngine(t)
	e.activityClient = rpc.NewActivityClient(addr)
	t.Cleanup(func() { e.activityClient.Close() })

	enqueueSnapshots(t, e, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.flushLoop(ctx)
	}()

	require.Eventually(t, func() bool {
		size, err := q.Size(context.Background())
		return err == nil && size == 0
	}, 5*time.Second, 50*time.Millisecond, "queue should drain once the sink is online")

	cancel()
	<-done

	require.EqualValues(t, 3, fs.received.Load())
	require.True(t, e.online.Load(), "agent should report online after successful deliveries")
}

// With the sink down, nothing is lost: every queued row is still present
// after the flush loop runs, and the agent reports degraded.
func TestFlushLoopKeepsQueueWhenSinkUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	e, q := newTestEngine(t)
	e.online.Store(true)
	e.activityClient = rpc.NewActivityClient(addr)
	t.Cleanup(func() { e.activityClient.Close() })

	enqueueSnapshots(t, e, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e.flushLoop(ctx)

	size, err := q.Size(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, size, "no event may be lost while the sink is unreachable")
	require.False(t, e.online.Load(), "agent should report degraded after a failed delivery")

	// The failed row and the rows behind it all remain dequeueable.
	rows, err := q.DequeueBatch(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
}
