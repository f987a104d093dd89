package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// healthPingTimeout bounds the broker round trip of a health check.
const healthPingTimeout = 2 * time.Second

// HealthStatus is the outcome of a broker health check.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// Err returns the failure as an error, or nil when the broker is reachable.
func (s HealthStatus) Err() error {
	if s.Connected && s.Error == "" {
		return nil
	}
	if s.Error == "" {
		return errors.New("not connected to message broker")
	}
	return errors.New(s.Error)
}

// CheckClientHealth verifies the connection of client and measures one
// request round trip on SubjectHealthPing. Nobody answers that subject, so a
// "no responders" reply from a connected broker counts as healthy.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	if client == nil {
		return HealthStatus{Error: "client is nil"}
	}
	if !client.IsConnected() {
		return HealthStatus{Error: "not connected to message broker"}
	}

	start := time.Now()
	_, err := client.Request(ctx, SubjectHealthPing, nil, healthPingTimeout)
	status := HealthStatus{Connected: client.IsConnected(), Latency: time.Since(start)}
	if err != nil && !status.Connected {
		status.Error = fmt.Sprintf("health check failed: %v", err)
	}
	return status
}
