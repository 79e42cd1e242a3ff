package domain

import (
	"fmt"
	"strings"
)

// UnknownSize marks a transfer whose remote did not report a length.
const UnknownSize int64 = -1

type TransferStatus string

const (
	StatusQueued   TransferStatus = "queued" // registered, waiting for a transfer slot
	StatusRunning  TransferStatus = "running"
	StatusPaused   TransferStatus = "paused"
	StatusStopped  TransferStatus = "stopped"
	StatusFinished TransferStatus = "finished"
	StatusFailed   TransferStatus = "failed"
)

// transitions lists the moves a task may make. Running goes back to Queued
// when a resume arrives while a pause is still settling.
var transitions = map[TransferStatus][]TransferStatus{
	StatusQueued:  {StatusRunning, StatusPaused, StatusStopped, StatusFailed},
	StatusRunning: {StatusQueued, StatusPaused, StatusStopped, StatusFinished, StatusFailed},
	StatusPaused:  {StatusQueued, StatusStopped},
	StatusFailed:  {StatusQueued, StatusStopped},
}

// ParseStatus converts a persisted status string back to a TransferStatus.
func ParseStatus(s string) (TransferStatus, error) {
	st := TransferStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusQueued, StatusRunning, StatusPaused, StatusStopped, StatusFinished, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown transfer status %q", s)
}

// CanTransition reports whether moving from s to next is allowed.
func (s TransferStatus) CanTransition(next TransferStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal is true for Stopped and Finished; nothing left to resume.
func (s TransferStatus) IsTerminal() bool {
	return s == StatusStopped || s == StatusFinished
}

// IsResumable reports whether a task in this status belongs in a snapshot.
func (s TransferStatus) IsResumable() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusPaused, StatusFailed:
		return true
	}
	return false
}

// Label is the text shown in the status column.
func (s TransferStatus) Label() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusRunning:
		return "Downloading"
	case StatusPaused:
		return "Paused"
	case StatusStopped:
		return "Removed"
	case StatusFinished:
		return "Complete"
	case StatusFailed:
		return "Error"
	}
	return string(s)
}

// LinkRequest is the raw input to resolution.
type LinkRequest struct {
	RawLink  string
	Password string
}

// DownloadDescriptor is what resolution produces: enough to start or resume a transfer.
type DownloadDescriptor struct {
	DirectURL   string `json:"direct_url"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password,omitempty"`
}

// TransferState is a point-in-time copy of a task's progress.
type TransferState struct {
	ID           string             `json:"id"`
	Descriptor   DownloadDescriptor `json:"descriptor"`
	BytesWritten int64              `json:"bytes_written"`
	TotalBytes   int64              `json:"total_bytes"`
	Status       TransferStatus     `json:"status"`
	RowIndex     int                `json:"row"`

	// Path is the final file the task writes to, with ".part" appended while
	// in progress. Empty until the task is registered.
	Path string `json:"path,omitempty"`
}

// Percent returns 0..100, or 0 when the total is unknown.
func (t TransferState) Percent() int {
	if t.TotalBytes <= 0 {
		return 0
	}
	p := int(t.BytesWritten * 100 / t.TotalBytes)
	if p > 100 {
		p = 100
	}
	return p
}
