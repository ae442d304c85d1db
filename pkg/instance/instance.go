package instance

import (
	"os"
	"strings"
)

const fallbackID = "reconciler-0"

// GetID returns the process instance identifier used to tell concurrent
// reconcilers apart in logs.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("RECONCILER_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fallbackID
}
