package server

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/zAlexisD/2024-UDP-TCP-Chat-App/internal/command"
)

const (
	readBufferSize = 1024
	echoMessage    = "Message received\n"
)

// worker serves one accepted connection until the peer leaves, sends a
// terminating command, or the stream fails.
type worker struct {
	conn         net.Conn
	identity     string
	logger       *slog.Logger
	onDisconnect func(command.Command)
}

func newWorker(conn net.Conn, logger *slog.Logger, onDisconnect func(command.Command)) *worker {
	identity := conn.RemoteAddr().String()
	return &worker{
		conn:         conn,
		identity:     identity,
		logger:       logger.With("client", identity),
		onDisconnect: onDisconnect,
	}
}

// run always invokes onDisconnect once and then closes the stream once.
func (w *worker) run() {
	last := command.None
	defer func() {
		w.onDisconnect(last)
		if err := w.conn.Close(); err != nil {
			w.logger.Warn("error closing connection", "error", err)
		}
	}()

	buf := make([]byte, readBufferSize)
	writer := bufio.NewWriterSize(w.conn, len(echoMessage))

	for connected := true; connected; {
		n, err := w.conn.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				w.logger.Info("client left")
			} else {
				w.logger.Error("error reading from connection", "error", err)
			}
			return
		}

		text := string(buf[:n])
		w.logger.Info("client says", "message", text)

		last = command.Interpret(text)
		switch last {
		case command.ExitConsole:
			w.logger.Info("client left the chat")
		case command.CloseServer:
			w.logger.Info("client requested server shutdown")
		}
		connected = !last.Terminates()

		if _, err := writer.WriteString(echoMessage); err != nil {
			w.logger.Error("error writing to connection", "error", err)
			return
		}
		if err := writer.Flush(); err != nil {
			w.logger.Error("error writing to connection", "error", err)
			return
		}
	}
}
