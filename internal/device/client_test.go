package device

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"laser-align/internal/monitoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

// fakeDevice answers every datagram with reply(cmd) and records what it got.
type fakeDevice struct {
	conn *net.UDPConn

	mu       sync.Mutex
	received []string
}

func startFakeDevice(t *testing.T, reply func(cmd string) string) *fakeDevice {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	d := &fakeDevice{conn: conn}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			cmd := string(buf[:n])
			d.mu.Lock()
			d.received = append(d.received, cmd)
			d.mu.Unlock()
			if r := reply(cmd); r != "" {
				conn.WriteToUDP([]byte(r), addr)
			}
		}
	}()
	return d
}

func (d *fakeDevice) port() int {
	return d.conn.LocalAddr().(*net.UDPAddr).Port
}

func (d *fakeDevice) commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

func testClient(port int, timeout time.Duration) *Client {
	return NewClient(Config{Host: "127.0.0.1", Port: port, ReplyPort: 0, Timeout: timeout})
}

// closedPort returns a UDP port nothing is listening on.
func closedPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

func TestPingNoListenerTimesOut(t *testing.T) {
	timeout := 200 * time.Millisecond
	c := testClient(closedPort(t), timeout)

	start := time.Now()
	err := c.Ping(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	var ue *UnreachableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "PING", ue.Command)
	assert.Less(t, elapsed, timeout+time.Second)
}

func TestSendNoReply(t *testing.T) {
	d := startFakeDevice(t, func(string) string { return "" })
	c := testClient(d.port(), 150*time.Millisecond)

	_, err := c.Send(context.Background(), "STATUS")
	assert.ErrorIs(t, err, ErrNoReply)
	assert.Eventually(t, func() bool { return len(d.commands()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestContextDeadlineShortensWait(t *testing.T) {
	d := startFakeDevice(t, func(string) string { return "" })
	c := testClient(d.port(), 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Send(ctx, "PING")
	assert.ErrorIs(t, err, ErrNoReply)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCancelledContext(t *testing.T) {
	c := testClient(closedPort(t), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Send(ctx, "PING")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplyContainingOK(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		ok    bool
	}{
		{"plain", "OK", true},
		{"embedded", "PING:OK\n", true},
		{"lowercase", "ok", false},
		{"error", "ERROR: busy", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := startFakeDevice(t, func(string) string { return tt.reply })
			c := testClient(d.port(), time.Second)

			err := c.Ping(context.Background())
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var ue *UnreachableError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, "PING", ue.Command)
			assert.Equal(t, strings.TrimSpace(tt.reply), ue.Reply)
			assert.NoError(t, ue.Err)
		})
	}
}

func TestStatusReturnsTrimmedReply(t *testing.T) {
	d := startFakeDevice(t, func(string) string { return "  Idle\r\n" })
	c := testClient(d.port(), time.Second)

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Idle", status)
}

func TestLoadFile(t *testing.T) {
	d := startFakeDevice(t, func(string) string { return "OK" })
	c := testClient(d.port(), time.Second)

	path := filepath.Join(t.TempDir(), "design.png")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, c.LoadFile(context.Background(), path, false))
	require.NoError(t, c.LoadFile(context.Background(), path, true))

	uri := "file://" + filepath.ToSlash(path)
	assert.Equal(t, []string{"LOADFILE:" + uri, "FORCELOAD:" + uri}, d.commands())
}

func TestLoadFileMissing(t *testing.T) {
	d := startFakeDevice(t, func(string) string { return "OK" })
	c := testClient(d.port(), time.Second)

	err := c.LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.png"), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, d.commands())
}

func TestCloseAndStartCommands(t *testing.T) {
	d := startFakeDevice(t, func(string) string { return "OK" })
	c := testClient(d.port(), time.Second)
	ctx := context.Background()

	require.NoError(t, c.CloseFile(ctx, false))
	require.NoError(t, c.CloseFile(ctx, true))
	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []string{"CLOSE", "FORCECLOSE", "START"}, d.commands())
}

func TestWaitForReady(t *testing.T) {
	var mu sync.Mutex
	pings := 0
	d := startFakeDevice(t, func(string) string {
		mu.Lock()
		defer mu.Unlock()
		pings++
		if pings < 3 {
			return "BUSY"
		}
		return "OK"
	})
	c := testClient(d.port(), time.Second)

	require.NoError(t, c.WaitForReady(context.Background(), 5*time.Second, 20*time.Millisecond))
	assert.Len(t, d.commands(), 3)
}

func TestWaitForReadyGivesUp(t *testing.T) {
	d := startFakeDevice(t, func(string) string { return "BUSY" })
	c := testClient(d.port(), 50*time.Millisecond)

	start := time.Now()
	err := c.WaitForReady(context.Background(), 200*time.Millisecond, 30*time.Millisecond)
	require.Error(t, err)
	var ue *UnreachableError
	assert.True(t, errors.As(err, &ue))
	assert.Less(t, time.Since(start), 2*time.Second)
}

// mockSocket never receives anything and reports a timeout.
type mockSocket struct {
	written  []byte
	deadline time.Time
}

func (m *mockSocket) WriteToUDP(b []byte, _ *net.UDPAddr) (int, error) {
	m.written = append([]byte(nil), b...)
	return len(b), nil
}

func (m *mockSocket) ReadFromUDP([]byte) (int, *net.UDPAddr, error) {
	return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: os.ErrDeadlineExceeded}
}

func (m *mockSocket) SetReadDeadline(t time.Time) error {
	m.deadline = t
	return nil
}

func (m *mockSocket) Close() error        { return nil }
func (m *mockSocket) LocalAddr() net.Addr { return &net.UDPAddr{} }

type mockFactory struct {
	sock  *mockSocket
	laddr *net.UDPAddr
}

func (f *mockFactory) ListenUDP(_ string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.laddr = laddr
	return f.sock, nil
}

func TestSendUsesReplyPortAndTimeout(t *testing.T) {
	f := &mockFactory{sock: &mockSocket{}}
	c := NewClientWithFactory(DefaultConfig(), f)

	before := time.Now()
	_, err := c.Send(context.Background(), "PING")
	assert.ErrorIs(t, err, ErrNoReply)
	assert.Equal(t, DefaultReplyPort, f.laddr.Port)
	assert.Equal(t, "PING", string(f.sock.written))
	assert.WithinDuration(t, before.Add(DefaultTimeout), f.sock.deadline, 500*time.Millisecond)
}
