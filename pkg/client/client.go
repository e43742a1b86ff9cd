// Package client implements the blocking request/response client for the
// tsexpr protocol.
package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/hydrosight/tsexpr/pkg/codec"
	"github.com/hydrosight/tsexpr/pkg/domain"
)

// Client is a stateless request/response wrapper over one connection. Every
// call blocks until a full response is read or the timeout elapses. Calls are
// serialized over the single connection; no lock is held while waiting on the
// network beyond the connection's own, so independent clients proceed fully
// in parallel.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
	closed  bool
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Dial connects to a server at addr (host:port).
func Dial(addr string, opts ...Option) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := &Client{conn: conn, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Evaluate submits the vector for evaluation over period and returns the
// computed vector (one bound point expression per input element).
func (c *Client) Evaluate(v domain.Vector, period domain.Period) (domain.Vector, error) {
	return c.roundTrip(&codec.Request{
		Op:     codec.OpEvaluate,
		Vector: v,
		Period: period,
	})
}

// Percentiles submits the vector for percentile aggregation over period,
// aligned to axis. Percentile -1 requests the ensemble mean; results follow
// the order of percentiles.
func (c *Client) Percentiles(v domain.Vector, period domain.Period, axis domain.FixedAxis, percentiles []int) (domain.Vector, error) {
	return c.roundTrip(&codec.Request{
		Op:          codec.OpPercentiles,
		Vector:      v,
		Period:      period,
		OutAxis:     axis,
		Percentiles: percentiles,
	})
}

// Close tells the server the session is over and closes the connection. It
// waits at most timeout for the close message to flush.
func (c *Client) Close(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if payload, err := codec.EncodeRequest(&codec.Request{Op: codec.OpClose}); err == nil {
		_ = codec.WriteFrame(c.conn, payload)
	}
	return c.conn.Close()
}

func (c *Client) roundTrip(req *codec.Request) (domain.Vector, error) {
	payload, err := codec.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, net.ErrClosed
	}
	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
	}
	if err := codec.WriteFrame(c.conn, payload); err != nil {
		return nil, c.wrapIOErr(err)
	}
	raw, err := codec.ReadFrame(c.conn)
	if err != nil {
		return nil, c.wrapIOErr(err)
	}
	resp, err := codec.DecodeResponse(raw)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Vector, nil
}

// wrapIOErr maps a deadline miss onto ErrTimeout and marks the connection
// unusable; a timed-out request is abandoned, never retried.
func (c *Client) wrapIOErr(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() || errors.Is(err, os.ErrDeadlineExceeded) {
		c.closed = true
		_ = c.conn.Close()
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return err
}
