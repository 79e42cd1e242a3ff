package domain

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

type EventKind string

const (
	EventRowAdded   EventKind = "row_added"
	EventRowRemoved EventKind = "row_removed"
	EventProgress   EventKind = "progress"
	EventAlert      EventKind = "alert"
)

// Event is the only thing the engine sends to a presentation layer.
type Event struct {
	Kind        EventKind `json:"kind"`
	TaskID      string    `json:"task_id,omitempty"`
	Row         int       `json:"row"`
	DisplayName string    `json:"display_name,omitempty"`
	HasPassword bool      `json:"has_password,omitempty"`
	Progress    *Progress `json:"progress,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// Progress is one sample of a task's transfer.
type Progress struct {
	DisplayName  string         `json:"display_name"`
	TotalBytes   int64          `json:"total_bytes"`
	BytesWritten int64          `json:"bytes_written"`
	Rate         float64        `json:"rate"` // bytes per second since the previous sample
	Status       TransferStatus `json:"status"`

	SizeLabel   string `json:"size_label"`
	StatusLabel string `json:"status_label"`
	RateLabel   string `json:"rate_label"`
	Percent     int    `json:"percent"`
}

// NewProgress builds a sample with its display labels filled in.
func NewProgress(name string, written, total int64, rate float64, status TransferStatus) Progress {
	p := Progress{
		DisplayName:  name,
		TotalBytes:   total,
		BytesWritten: written,
		Rate:         rate,
		Status:       status,
		StatusLabel:  status.Label(),
		RateLabel:    RateLabel(rate),
	}
	if total >= 0 {
		p.SizeLabel = humanize.Bytes(uint64(total))
		p.Percent = TransferState{BytesWritten: written, TotalBytes: total}.Percent()
	} else {
		p.SizeLabel = humanize.Bytes(uint64(written))
	}
	return p
}

// RateLabel formats a byte rate the way the status table shows it, e.g. "1.2 MB/s".
func RateLabel(rate float64) string {
	if rate <= 0 {
		return "0 B/s"
	}
	return fmt.Sprintf("%s/s", humanize.Bytes(uint64(rate)))
}
