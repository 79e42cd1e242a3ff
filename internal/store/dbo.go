package store

import (
	"database/sql"
	"fmt"

	"github.com/datallboy/gofichier/internal/domain"
)

// transferDBO maps to the transfers table
type transferDBO struct {
	Position     int            `db:"position"`
	ID           string         `db:"id"`
	DirectURL    string         `db:"direct_url"`
	DisplayName  string         `db:"display_name"`
	Password     sql.NullString `db:"password"`
	BytesWritten int64          `db:"bytes_written"`
	TotalBytes   int64          `db:"total_bytes"`
	Status       string         `db:"status"`
	FilePath     string         `db:"file_path"`
}

// ToDomain restores a row as a Paused task, ready to be resumed.
func (t *transferDBO) ToDomain(row int) (domain.TransferState, error) {
	if _, err := domain.ParseStatus(t.Status); err != nil {
		return domain.TransferState{}, err
	}
	if t.DirectURL == "" {
		return domain.TransferState{}, fmt.Errorf("transfer %s has no url", t.ID)
	}
	if t.BytesWritten < 0 {
		return domain.TransferState{}, fmt.Errorf("transfer %s has negative offset %d", t.ID, t.BytesWritten)
	}

	return domain.TransferState{
		ID: t.ID,
		Descriptor: domain.DownloadDescriptor{
			DirectURL:   t.DirectURL,
			DisplayName: t.DisplayName,
			Password:    t.Password.String,
		},
		BytesWritten: t.BytesWritten,
		TotalBytes:   t.TotalBytes,
		Status:       domain.StatusPaused,
		RowIndex:     row,
		Path:         t.FilePath,
	}, nil
}

func (t *transferDBO) FromDomain(position int, st domain.TransferState) {
	t.Position = position
	t.ID = st.ID
	t.DirectURL = st.Descriptor.DirectURL
	t.DisplayName = st.Descriptor.DisplayName
	t.Password = sql.NullString{String: st.Descriptor.Password, Valid: st.Descriptor.Password != ""}
	t.BytesWritten = st.BytesWritten
	t.TotalBytes = st.TotalBytes
	t.Status = string(st.Status)
	t.FilePath = st.Path
}
