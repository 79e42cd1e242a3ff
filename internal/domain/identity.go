package domain

import "github.com/segmentio/ksuid"

// NewTaskID returns a stable opaque identifier for a transfer.
// KSUIDs sort chronologically, so ID order matches creation order.
func NewTaskID() string {
	return ksuid.New().String()
}

// ValidTaskID reports whether id parses as a KSUID.
func ValidTaskID(id string) bool {
	_, err := ksuid.Parse(id)
	return err == nil
}
