package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sentrywatch/endpointagent/internal/config"
	"github.com/sentrywatch/endpointagent/internal/event"
)

const methodCreateActivity = "/activity.ActivityService/CreateActivity"

// retryBackoff is how long SendBatch pauses after a failed send before
// attempting the next event. Delivery is best-effort per item: one
// transient failure should not stall the whole batch, but a brief pause
// avoids hammering a sink that just rejected a request.
const retryBackoff = 50 * time.Millisecond

// ActivityClient sends activity events to the activity sink. Failed sends
// are the caller's responsibility to redeliver (see internal/queue); this
// client never retries internally beyond the single backoff pause
// described above.
type ActivityClient struct {
	target string
	mu     sync.Mutex
	conn   *grpc.ClientConn

	// sleepFunc defaults to time.Sleep; overridable in tests so SendBatch's
	// pause-after-failure behavior can be asserted without real delays.
	sleepFunc func(time.Duration)
}

// NewActivityClient constructs a client for the given "host:port" target.
func NewActivityClient(target string) *ActivityClient {
	return &ActivityClient{target: target, sleepFunc: time.Sleep}
}

func (c *ActivityClient) connection() (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := grpc.NewClient(c.target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("rpc: dial activity service at %s: %w", c.target, err)
	}
	c.conn = conn
	return conn, nil
}

// Close tears down the underlying connection, if one was ever dialed.
func (c *ActivityClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// SendActivity delivers a single event and reports whether the sink
// accepted it.
func (c *ActivityClient) SendActivity(ctx context.Context, ev *event.ActivityEvent) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	payload, err := ev.ToWirePayload()
	if err != nil {
		return fmt.Errorf("rpc: encoding activity payload: %w", err)
	}
	req := CreateActivityRequest{Activity: *payload}
	var resp CreateActivityResponse
	callCtx, cancel := context.WithTimeout(ctx, config.RPCDeadline)
	defer cancel()
	if err := conn.Invoke(callCtx, methodCreateActivity, req, &resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return fmt.Errorf("rpc: %s: %w", methodCreateActivity, err)
	}
	if !resp.Success {
		return fmt.Errorf("rpc: activity service rejected event")
	}
	return nil
}

// SendResult reports the per-event outcome of a SendBatch call, so the
// caller (the flush loop) can ack or retry each queued row independently.
type SendResult struct {
	Index int
	Err   error
}

// SendBatch sends each event in order, pausing retryBackoff after each
// failed send so a struggling sink gets a brief breather before the next
// attempt. It never aborts the rest of the batch on one failure: every
// index gets exactly one SendResult.
func (c *ActivityClient) SendBatch(ctx context.Context, events []*event.ActivityEvent) []SendResult {
	results := make([]SendResult, len(events))
	for i, ev := range events {
		err := c.SendActivity(ctx, ev)
		results[i] = SendResult{Index: i, Err: err}
		if err != nil {
			c.sleepFunc(retryBackoff)
		}
	}
	return results
}
