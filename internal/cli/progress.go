package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/datallboy/gofichier/internal/domain"
)

const barWidth = 20

// progressRenderer draws one terminal line for the task that reported last.
type progressRenderer struct {
	out, errOut io.Writer
	dirty       bool
}

func newProgressRenderer(out, errOut io.Writer) *progressRenderer {
	return &progressRenderer{out: out, errOut: errOut}
}

func (r *progressRenderer) Render(e domain.Event) {
	switch e.Kind {
	case domain.EventRowAdded:
		r.Newline()
		fmt.Fprintf(r.out, "+ %s\n", e.DisplayName)
	case domain.EventAlert:
		r.Newline()
		fmt.Fprintf(r.errOut, "! %s\n", e.Message)
	case domain.EventProgress:
		if e.Progress == nil {
			return
		}
		r.renderProgress(*e.Progress)
	}
}

func (r *progressRenderer) renderProgress(p domain.Progress) {
	percent := float64(p.Percent)
	if p.Status == domain.StatusFinished {
		percent = 100
	}

	// Progress Bar go brrr [====>   ]
	completedWidth := int(percent / 100 * barWidth)
	bar := strings.Repeat("=", completedWidth)
	if completedWidth < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-completedWidth-1)
	}

	size := "?"
	if p.TotalBytes >= 0 {
		size = humanize.Bytes(uint64(p.TotalBytes))
	}

	// Print UI: [Bar] 50% | 1.2 MB/s | 10 MB/20 MB | Downloading | name
	fmt.Fprintf(r.out, "\r[%s] %5.1f%% | %10s | %s/%s | %-11s | %s      ",
		bar, percent, p.RateLabel, humanize.Bytes(uint64(p.BytesWritten)), size, p.StatusLabel, p.DisplayName)
	r.dirty = true

	if p.Status != domain.StatusRunning && p.Status != domain.StatusQueued {
		r.Newline()
	}
}

// Newline ends the current progress line, if one is drawn.
func (r *progressRenderer) Newline() {
	if r.dirty {
		fmt.Fprintln(r.out)
		r.dirty = false
	}
}
