// Package mpd manages connections to a Music Player Daemon.
package mpd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tunez/mpdbridge/internal/protocol"
)

const (
	DefaultRetryInterval = 5 * time.Second
	defaultDialTimeout   = 5 * time.Second
)

// ConnState is the reconnect state machine of a Conn.
type ConnState int

const (
	StateConnected ConnState = iota
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Options configures a Conn.
type Options struct {
	// Addr is the host:port of the server.
	Addr          string
	Logger        *slog.Logger
	RetryInterval time.Duration
	// Password is sent after every connect when set.
	Password string
	// Dial replaces the default TCP dialer. Tests use it to inject failures.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Conn is one text/binary stream to the server. Commands must not be issued
// concurrently; callers serialize access.
type Conn struct {
	opts Options
	log  *slog.Logger

	mu    sync.Mutex
	nc    net.Conn
	r     *bufio.Reader
	w     *bufio.Writer
	state ConnState
}

// Dial opens a connection and consumes the server greeting.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{Timeout: defaultDialTimeout}).DialContext
	}
	c := &Conn{opts: opts, log: opts.Logger.With(slog.String("addr", opts.Addr))}
	if err := c.Reconnect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// State returns the current reconnect state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Reconnect replaces the underlying stream with a fresh one. The previous
// stream, if any, is closed once the new one is ready.
func (c *Conn) Reconnect(ctx context.Context) error {
	nc, err := c.opts.Dial(ctx, "tcp", c.opts.Addr)
	if err != nil {
		return &ConnError{Op: "dial", Err: err}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = nc.SetDeadline(time.Unix(1, 0))
	})
	r, w := bufio.NewReader(nc), bufio.NewWriter(nc)
	greeting, err := r.ReadString('\n')
	if err == nil && c.opts.Password != "" {
		err = authenticate(r, w, c.opts.Password)
	}
	if !stop() {
		nc.Close()
		return &ConnError{Op: "handshake", Err: ctx.Err()}
	}
	if err != nil {
		nc.Close()
		var ack *protocol.AckError
		if errors.As(err, &ack) {
			return err
		}
		return &ConnError{Op: "handshake", Err: err}
	}
	c.log.Debug("connected to mpd", slog.String("greeting", trimNewline(greeting)))

	c.mu.Lock()
	old := c.nc
	c.nc, c.r, c.w = nc, r, w
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// ReconnectUntilSuccess retries Reconnect every RetryInterval until it
// succeeds. It only gives up when ctx is cancelled.
func (c *Conn) ReconnectUntilSuccess(ctx context.Context) error {
	c.setState(StateReconnecting)
	c.log.Error("mpd connection broken, attempting reconnect")
	for attempt := 1; ; attempt++ {
		err := c.Reconnect(ctx)
		if err == nil {
			c.setState(StateConnected)
			c.log.Info("reconnect succeeded", slog.Int("attempts", attempt))
			return nil
		}
		if attempt == 1 {
			c.log.Error("reconnect failed, will keep retrying", slog.Any("err", err), slog.Duration("interval", c.opts.RetryInterval))
		} else {
			c.log.Debug("reconnect attempt failed", slog.Int("attempt", attempt), slog.Any("err", err))
		}

		t := time.NewTimer(c.opts.RetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Command sends cmd and waits for the complete response, including any binary
// payload. Stream failures are returned as *ConnError; ACK lines as
// *protocol.AckError.
func (c *Conn) Command(ctx context.Context, cmd string) (*protocol.Response, error) {
	c.mu.Lock()
	nc, r, w := c.nc, c.r, c.w
	c.mu.Unlock()
	if nc == nil {
		return nil, &ConnError{Op: cmd, Err: net.ErrClosed}
	}

	// A caller that gave up before the exchange started leaves the stream
	// untouched.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}

	c.log.Debug("issuing command", slog.String("cmd", cmd))
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = nc.SetDeadline(time.Unix(1, 0))
		close(interrupted)
	})
	framed := false
	defer func() {
		if stop() {
			return
		}
		<-interrupted
		if framed {
			// Cancelled after the response was complete; the stream is
			// still in sync.
			_ = nc.SetDeadline(time.Time{})
			return
		}
		_ = nc.Close()
	}()

	if _, err := w.WriteString(cmd + "\n"); err != nil {
		return nil, c.fail(ctx, nc, cmd, err)
	}
	if err := w.Flush(); err != nil {
		return nil, c.fail(ctx, nc, cmd, err)
	}
	resp, err := protocol.ReadResponse(r)
	if err != nil {
		var ack *protocol.AckError
		if errors.As(err, &ack) {
			framed = true
			return nil, err
		}
		return nil, c.fail(ctx, nc, cmd, err)
	}
	framed = true
	c.log.Debug("command returned", slog.String("cmd", cmd), slog.Int("fields", len(resp.Fields)))
	return resp, nil
}

// fail closes a stream that can no longer be trusted and classifies err.
func (c *Conn) fail(ctx context.Context, nc net.Conn, cmd string, err error) error {
	_ = nc.Close()
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", cmd, ctx.Err())
	}
	if errors.Is(err, protocol.ErrMalformed) {
		c.log.Warn("protocol violation, stream closed", slog.String("cmd", cmd), slog.Any("err", err))
		return err
	}
	return &ConnError{Op: cmd, Err: err}
}

// Close closes the underlying stream, unblocking any pending Command.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc == nil {
		return nil
	}
	return c.nc.Close()
}

func authenticate(r *bufio.Reader, w *bufio.Writer, password string) error {
	if _, err := w.WriteString("password " + protocol.Quote(password) + "\n"); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := protocol.ReadResponse(r)
	return err
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
