package enums

import "fmt"

// GraphWriteStatus is the lifecycle of a queued purchase edge.
type GraphWriteStatus string

const (
	GraphWriteStatusPending GraphWriteStatus = "pending"
	GraphWriteStatusDone    GraphWriteStatus = "done"
	// GraphWriteStatusDead rows exhausted their attempts and need manual reconciliation.
	GraphWriteStatusDead GraphWriteStatus = "dead"
)

var validGraphWriteStatuses = []GraphWriteStatus{
	GraphWriteStatusPending,
	GraphWriteStatusDone,
	GraphWriteStatusDead,
}

// String implements fmt.Stringer.
func (s GraphWriteStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known GraphWriteStatus.
func (s GraphWriteStatus) IsValid() bool {
	for _, candidate := range validGraphWriteStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseGraphWriteStatus converts raw input into a GraphWriteStatus.
func ParseGraphWriteStatus(value string) (GraphWriteStatus, error) {
	for _, candidate := range validGraphWriteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid graph write status %q", value)
}
