// Package device talks to the laser control software over its UDP command
// interface. Every exchange waits a bounded time for a reply; a missing or
// negative reply is an ordinary error, never a hang.
package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"laser-align/internal/monitoring"
)

const (
	DefaultHost      = "127.0.0.1"
	DefaultPort      = 19840 // command port, fixed by the device software
	DefaultReplyPort = 19841 // where the device sends replies
	DefaultTimeout   = 2 * time.Second

	maxReplySize = 1024
	okToken      = "OK"
)

// ErrNoReply is returned when the device does not answer within the timeout.
var ErrNoReply = errors.New("no reply from device")

// UnreachableError reports a command the device did not acknowledge, either
// because nothing answered or because the reply lacked "OK".
type UnreachableError struct {
	Command string
	Reply   string // empty when no reply arrived
	Err     error
}

func (e *UnreachableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device command %s failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("device rejected %s: %q", e.Command, e.Reply)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// Config addresses the device.
type Config struct {
	Host      string
	Port      int
	ReplyPort int // local port replies arrive on; 0 picks an ephemeral port
	Timeout   time.Duration
}

// DefaultConfig returns the local device defaults.
func DefaultConfig() Config {
	return Config{
		Host:      DefaultHost,
		Port:      DefaultPort,
		ReplyPort: DefaultReplyPort,
		Timeout:   DefaultTimeout,
	}
}

// Client sends commands one at a time.
type Client struct {
	cfg     Config
	sockets UDPSocketFactory
	mu      sync.Mutex
}

// NewClient returns a client using real UDP sockets.
func NewClient(cfg Config) *Client {
	return NewClientWithFactory(cfg, RealUDPSocketFactory{})
}

// NewClientWithFactory returns a client that opens sockets through f.
func NewClientWithFactory(cfg Config, f UDPSocketFactory) *Client {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{cfg: cfg, sockets: f}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Send transmits cmd and waits for one reply, up to the configured timeout
// or the context deadline, whichever is sooner.
func (c *Client) Send(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	raddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port)))
	if err != nil {
		return "", fmt.Errorf("resolve device address: %w", err)
	}
	sock, err := c.sockets.ListenUDP("udp4", &net.UDPAddr{Port: c.cfg.ReplyPort})
	if err != nil {
		return "", fmt.Errorf("open reply socket: %w", err)
	}
	defer sock.Close()

	if _, err := sock.WriteToUDP([]byte(cmd), raddr); err != nil {
		return "", fmt.Errorf("send %s: %w", cmd, err)
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := sock.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	buf := make([]byte, maxReplySize)
	n, _, err := sock.ReadFromUDP(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", ErrNoReply
		}
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimSpace(string(buf[:n])), nil
}

// command sends cmd and requires an "OK" reply.
func (c *Client) command(ctx context.Context, cmd string) error {
	reply, err := c.Send(ctx, cmd)
	if err != nil {
		return &UnreachableError{Command: cmd, Err: err}
	}
	if !strings.Contains(reply, okToken) {
		return &UnreachableError{Command: cmd, Reply: reply}
	}
	return nil
}

// Ping checks that the device software is running.
func (c *Client) Ping(ctx context.Context) error {
	return c.command(ctx, "PING")
}

// Status returns the device's status line.
func (c *Client) Status(ctx context.Context) (string, error) {
	reply, err := c.Send(ctx, "STATUS")
	if err != nil {
		return "", &UnreachableError{Command: "STATUS", Err: err}
	}
	return reply, nil
}

// LoadFile asks the device to open path. With force set, any open file is
// closed first.
func (c *Client) LoadFile(ctx context.Context, path string, force bool) error {
	uri, err := FileURI(path)
	if err != nil {
		return err
	}
	cmd := "LOADFILE:" + uri
	if force {
		cmd = "FORCELOAD:" + uri
	}
	if err := c.command(ctx, cmd); err != nil {
		return err
	}
	monitoring.Logf("device: loaded %s", filepath.Base(path))
	return nil
}

// Start starts the loaded job.
func (c *Client) Start(ctx context.Context) error {
	return c.command(ctx, "START")
}

// CloseFile closes the current file.
func (c *Client) CloseFile(ctx context.Context, force bool) error {
	if force {
		return c.command(ctx, "FORCECLOSE")
	}
	return c.command(ctx, "CLOSE")
}

// WaitForReady pings every poll until the device answers or maxWait passes.
func (c *Client) WaitForReady(ctx context.Context, maxWait, poll time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var last error
	for {
		if last = c.Ping(ctx); last == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("device not ready after %v: %w", maxWait, last)
		case <-ticker.C:
		}
	}
}

// FileURI returns the absolute file:// URI for an existing file.
func FileURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("file to load: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("file to load: %s is a directory", abs)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
