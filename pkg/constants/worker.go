package constants

import "fmt"

// Worker status constants
type WorkerStatus string

const (
	WorkerStatusRunning WorkerStatus = "Running" // Process observed alive
	WorkerStatusStopped WorkerStatus = "Stopped" // Process gone, shard not finished
	WorkerStatusDone    WorkerStatus = "Done"    // Sentinel seen in the worker log (terminal)
)

func (s WorkerStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status can never change again.
func (s WorkerStatus) IsTerminal() bool {
	switch s {
	case WorkerStatusDone:
		return true
	case WorkerStatusRunning, WorkerStatusStopped:
		return false
	default:
		panic(fmt.Sprintf("unhandled worker status %q", string(s)))
	}
}

// ParseWorkerStatus converts a persisted value into a WorkerStatus.
// Unknown values are rejected instead of silently falling through.
func ParseWorkerStatus(s string) (WorkerStatus, error) {
	switch WorkerStatus(s) {
	case WorkerStatusRunning, WorkerStatusStopped, WorkerStatusDone:
		return WorkerStatus(s), nil
	default:
		return "", fmt.Errorf("unknown worker status %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so that JSON and YAML
// decoding go through ParseWorkerStatus.
func (s *WorkerStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseWorkerStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s WorkerStatus) MarshalText() ([]byte, error) {
	if _, err := ParseWorkerStatus(string(s)); err != nil {
		return nil, err
	}
	return []byte(s), nil
}
