package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/gofichier/internal/domain"
	"github.com/datallboy/gofichier/internal/downloader"
)

type TaskController struct {
	Service *downloader.Service
}

// AddLinks queues every link in the pasted text for resolution
func (ctrl *TaskController) AddLinks(c *echo.Context) error {
	var req AddLinksRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	n, err := ctrl.Service.AddLinks(req.Text, req.Password)
	if errors.Is(err, downloader.ErrShuttingDown) {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	}
	if n == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no links given"})
	}

	return c.JSON(http.StatusAccepted, AddLinksResponse{Accepted: n})
}

func (ctrl *TaskController) List(c *echo.Context) error {
	states := ctrl.Service.Tasks()
	views := make([]TaskView, 0, len(states))
	for _, st := range states {
		views = append(views, NewTaskView(st))
	}
	return c.JSON(http.StatusOK, views)
}

// Control handles /api/tasks/:id/:command
func (ctrl *TaskController) Control(c *echo.Context) error {
	cmd, err := domain.ParseCommand(c.Param("command"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	id := c.Param("id")
	if _, ok := ctrl.Service.Task(id); !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: domain.ErrTaskNotFound.Error()})
	}

	if err := ctrl.Service.Control([]string{id}, cmd); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// ControlRows addresses tasks by their current row positions
func (ctrl *TaskController) ControlRows(c *echo.Context) error {
	var req RowControlRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	cmd, err := domain.ParseCommand(req.Command)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	if err := ctrl.Service.ControlByIndex(req.Rows, cmd); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}
