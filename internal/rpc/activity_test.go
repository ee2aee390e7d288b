package rpc

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sentrywatch/endpointagent/internal/event"
)

// startFlakySink serves CreateActivity over the registered JSON codec,
// rejecting the request numbers listed in failOn (1-based) and accepting
// the rest.
func startFlakySink(t *testing.T, failOn map[int64]bool) (string, *atomic.Int64) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var calls atomic.Int64
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		var req CreateActivityRequest
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		n := calls.Add(1)
		if failOn[n] {
			return status.Error(codes.Unavailable, "sink overloaded")
		}
		return stream.SendMsg(&CreateActivityResponse{Success: true})
	}))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return lis.Addr().String(), &calls
}

func TestSendActivityAcceptedBySink(t *testing.T) {
	addr, calls := startFlakySink(t, nil)
	c := NewActivityClient(addr)
	t.Cleanup(func() { c.Close() })

	ev := event.New(1, event.ProcessSnapshot)
	require.NoError(t, c.SendActivity(context.Background(), ev))
	require.EqualValues(t, 1, calls.Load())
}

// SendBatch keeps attempting subsequent events after a failure: every
// index gets exactly one result, only the failed index carries an error,
// and the backoff pause fires once per failed send, never before a send
// that follows a success.
func TestSendBatchContinuesPastFirstFailure(t *testing.T) {
	addr, calls := startFlakySink(t, map[int64]bool{1: true})
	c := NewActivityClient(addr)
	t.Cleanup(func() { c.Close() })

	pauses := 0
	c.sleepFunc = func(time.Duration) { pauses++ }

	events := []*event.ActivityEvent{
		event.New(1, event.ProcessSnapshot),
		event.New(1, event.BrowserVisit),
		event.New(1, event.ActiveWindowChange),
	}
	results := c.SendBatch(context.Background(), events)

	require.Len(t, results, 3)
	require.Error(t, results[0].Err)
	require.NoError(t, results[1].Err)
	require.NoError(t, results[2].Err)
	require.EqualValues(t, 3, calls.Load(), "every event must be attempted")
	require.Equal(t, 1, pauses, "one failure means exactly one backoff pause")
}

func TestSendBatchPausesOncePerFailure(t *testing.T) {
	addr, calls := startFlakySink(t, map[int64]bool{2: true, 4: true})
	c := NewActivityClient(addr)
	t.Cleanup(func() { c.Close() })

	pauses := 0
	c.sleepFunc = func(time.Duration) { pauses++ }

	events := make([]*event.ActivityEvent, 5)
	for i := range events {
		events[i] = event.New(1, event.ProcessSnapshot)
	}
	results := c.SendBatch(context.Background(), events)

	require.Len(t, results, 5)
	require.EqualValues(t, 5, calls.Load())
	require.Equal(t, 2, pauses, "two failures mean exactly two backoff pauses")
}
