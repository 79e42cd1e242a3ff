package controllers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/gofichier/internal/domain"
	"github.com/datallboy/gofichier/internal/downloader"
)

type SettingsController struct {
	Service *downloader.Service
}

func (ctrl *SettingsController) Get(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.Service.Settings())
}

// Put replaces the settings wholesale. Fields left out fall back to defaults.
func (ctrl *SettingsController) Put(c *echo.Context) error {
	var s domain.Settings
	if err := c.Bind(&s); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	if err := ctrl.Service.ApplySettings(c.Request().Context(), s); err != nil {
		// Applied in memory; only persisting failed
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, ctrl.Service.Settings())
}
