package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/jester/internal/healthcheck"
)

// StatusHandler serves the runtime check report.
type StatusHandler struct {
	logger   *slog.Logger
	checkers []healthcheck.Checker
}

func NewStatusHandler(log *slog.Logger, checkers ...healthcheck.Checker) *StatusHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StatusHandler{
		logger:   log.With(slog.String("handler", "status")),
		checkers: checkers,
	}
}

func (h *StatusHandler) Register(e *echo.Echo) {
	e.GET("/status", h.Status)
}

// Status returns the report, with 503 when any check failed.
func (h *StatusHandler) Status(c echo.Context) error {
	report := healthcheck.Collect(c.Request().Context(), h.checkers...)
	code := http.StatusOK
	if report.Status == healthcheck.StatusError {
		code = http.StatusServiceUnavailable
		h.logger.Warn("status check failed", slog.Int("checks", len(report.Checks)))
	}
	return c.JSON(code, report)
}
