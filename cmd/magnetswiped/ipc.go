package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"magnetswipe"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Protocol: Line-delimited JSON (see magnetswipe.IPCRequest/IPCResponse)
//   - Client sends: {"action": "start"}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
// ============================================================================

// ipcReplyTimeout bounds how long a connection waits for the daemon loop.
const ipcReplyTimeout = 2 * time.Second

// commander is the subset of the daemon used by the IPC and HTTP surfaces.
type commander interface {
	Command(ctx context.Context, action string) error
	Status(ctx context.Context) (magnetswipe.Snapshot, error)
}

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, d commander, logger *slog.Logger) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, d, logger)
	}
}

// handleIPCConnection handles a single IPC connection
func handleIPCConnection(ctx context.Context, conn net.Conn, d commander, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		resp := handleIPCRequest(ctx, []byte(line), d)
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	logger.Debug("IPC connection closed")
}

func handleIPCRequest(ctx context.Context, line []byte, d commander) magnetswipe.IPCResponse {
	var req magnetswipe.IPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return magnetswipe.IPCResponse{Status: "error", Error: fmt.Sprintf("parse request: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, ipcReplyTimeout)
	defer cancel()

	if req.Action == magnetswipe.ActionStatus {
		snap, err := d.Status(ctx)
		if err != nil {
			return magnetswipe.IPCResponse{Status: "error", Error: err.Error()}
		}
		return magnetswipe.IPCResponse{Status: "ok", Snapshot: &snap}
	}

	if err := d.Command(ctx, req.Action); err != nil {
		return magnetswipe.IPCResponse{Status: "error", Error: err.Error()}
	}
	return magnetswipe.IPCResponse{Status: "ok"}
}
