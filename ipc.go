package magnetswipe

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// ============================================================================
// IPC wire format
// ============================================================================
// The daemon accepts line-delimited JSON requests on a Unix domain socket:
//   - Client sends:     {"action": "start"}
//   - Server responds:  {"status": "ok"} or {"status": "error", "error": "msg"}
//
// The "status" action is answered by the daemon itself and carries a
// Snapshot of the detector.
// ============================================================================

// ActionStatus asks the daemon for a detector snapshot.
const ActionStatus = "status"

// DefaultIPCSocket is the default daemon socket path.
const DefaultIPCSocket = "/tmp/magnetswipe.sock"

// IPCRequest is one command sent to the daemon.
type IPCRequest struct {
	Action string `json:"action"`
}

// IPCResponse is the daemon's reply to an IPCRequest.
type IPCResponse struct {
	Status   string    `json:"status"`          // "ok" or "error"
	Error    string    `json:"error,omitempty"` // error message if status == "error"
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// SendIPCCommand sends action to the daemon listening on socketPath and
// returns its response. A response with status "error" is returned as an
// error.
func SendIPCCommand(socketPath, action string, timeout time.Duration) (IPCResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	data, err := json.Marshal(IPCRequest{Action: action})
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("ipc error: %s", resp.Error)
	}
	return resp, nil
}
