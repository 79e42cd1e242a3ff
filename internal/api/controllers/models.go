package controllers

import "github.com/datallboy/gofichier/internal/domain"

type AddLinksRequest struct {
	Text     string `json:"text"`
	Password string `json:"password"`
}

type AddLinksResponse struct {
	Accepted int `json:"accepted"`
}

type RowControlRequest struct {
	Rows    []int  `json:"rows"`
	Command string `json:"command"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// TaskView is one row of the transfer table.
type TaskView struct {
	ID           string                `json:"id"`
	Row          int                   `json:"row"`
	DisplayName  string                `json:"display_name"`
	HasPassword  bool                  `json:"has_password"`
	BytesWritten int64                 `json:"bytes_written"`
	TotalBytes   int64                 `json:"total_bytes"`
	Status       domain.TransferStatus `json:"status"`
	StatusLabel  string                `json:"status_label"`
	SizeLabel    string                `json:"size_label"`
	Percent      int                   `json:"percent"`
	Path         string                `json:"path"`
}

func NewTaskView(st domain.TransferState) TaskView {
	p := domain.NewProgress(st.Descriptor.DisplayName, st.BytesWritten, st.TotalBytes, 0, st.Status)
	return TaskView{
		ID:           st.ID,
		Row:          st.RowIndex,
		DisplayName:  st.Descriptor.DisplayName,
		HasPassword:  st.Descriptor.Password != "",
		BytesWritten: st.BytesWritten,
		TotalBytes:   st.TotalBytes,
		Status:       st.Status,
		StatusLabel:  p.StatusLabel,
		SizeLabel:    p.SizeLabel,
		Percent:      p.Percent,
		Path:         st.Path,
	}
}
