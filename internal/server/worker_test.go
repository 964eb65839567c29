package server

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zAlexisD/2024-UDP-TCP-Chat-App/internal/command"
)

// countingConn records how many times the worker closes its stream.
type countingConn struct {
	net.Conn
	closes atomic.Int32
}

func (c *countingConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

type workerRun struct {
	client    net.Conn
	conn      *countingConn
	mu        sync.Mutex
	callbacks []command.Command
	done      chan struct{}
}

func (r *workerRun) commands() []command.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]command.Command(nil), r.callbacks...)
}

func startWorker(t *testing.T) *workerRun {
	t.Helper()
	serverSide, client := net.Pipe()
	t.Cleanup(func() { client.Close() })

	r := &workerRun{
		client: client,
		conn:   &countingConn{Conn: serverSide},
		done:   make(chan struct{}),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := newWorker(r.conn, logger, func(cmd command.Command) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.callbacks = append(r.callbacks, cmd)
		assert.Equal(t, int32(0), r.conn.closes.Load(), "Callback must run before the stream is closed")
	})
	go func() {
		defer close(r.done)
		w.run()
	}()
	return r
}

func (r *workerRun) send(t *testing.T, message string) string {
	t.Helper()
	_, err := r.client.Write([]byte(message))
	require.NoError(t, err, "Failed to send message")

	reply := make([]byte, len(echoMessage))
	_, err = io.ReadFull(r.client, reply)
	require.NoError(t, err, "Failed to read reply")
	return string(reply)
}

func (r *workerRun) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func TestWorkerEchoesEveryMessage(t *testing.T) {
	r := startWorker(t)

	assert.Equal(t, "Message received\n", r.send(t, "hello"))
	assert.Equal(t, "Message received\n", r.send(t, "second message"))

	require.NoError(t, r.client.Close())
	r.wait(t)

	assert.Equal(t, []command.Command{command.None}, r.commands())
	assert.Equal(t, int32(1), r.conn.closes.Load())
}

func TestWorkerTerminatingCommands(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected command.Command
	}{
		{name: "Exit Console", input: "exit console", expected: command.ExitConsole},
		{name: "Exit Console Upper", input: "EXIT CONSOLE", expected: command.ExitConsole},
		{name: "Exit Console Padded", input: " Exit Console \n", expected: command.ExitConsole},
		{name: "Close Server", input: "close server", expected: command.CloseServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := startWorker(t)

			assert.Equal(t, "Message received\n", r.send(t, tt.input), "Terminating commands are still acknowledged")
			r.wait(t)

			_, err := r.client.Read(make([]byte, 1))
			assert.ErrorIs(t, err, io.EOF, "Server should close the stream")

			assert.Equal(t, []command.Command{tt.expected}, r.commands())
			assert.Equal(t, int32(1), r.conn.closes.Load())
		})
	}
}

func TestWorkerPeerClosedWithoutReply(t *testing.T) {
	r := startWorker(t)

	require.NoError(t, r.client.Close())
	r.wait(t)

	assert.Equal(t, []command.Command{command.None}, r.commands())
	assert.Equal(t, int32(1), r.conn.closes.Load())
}

func TestWorkerWriteFailureIsContained(t *testing.T) {
	r := startWorker(t)

	_, err := r.client.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, r.client.Close())
	r.wait(t)

	assert.Equal(t, []command.Command{command.None}, r.commands())
	assert.Equal(t, int32(1), r.conn.closes.Load())
}

func TestWorkerUsesOnlyBytesRead(t *testing.T) {
	r := startWorker(t)

	// A long first message leaves stale bytes in the buffer.
	assert.Equal(t, "Message received\n", r.send(t, "a much longer message than the command"))
	assert.Equal(t, "Message received\n", r.send(t, "exit console"))
	r.wait(t)

	assert.Equal(t, []command.Command{command.ExitConsole}, r.commands())
}
