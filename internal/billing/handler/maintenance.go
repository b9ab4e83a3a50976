package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// QuotaResetter resets the daily quiz quota for the current service day and
// reports that day (YYYY-MM-DD) and how many users were reset.
type QuotaResetter interface {
	ResetNow(ctx context.Context) (date string, users int64, err error)
}

type MaintenanceHandler struct {
	resetter QuotaResetter
	logger   *slog.Logger
}

func NewMaintenanceHandler(r QuotaResetter, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{resetter: r, logger: logger}
}

type resetResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Date       string `json:"date"`
	ResetUsers int64  `json:"resetUsers"`
}

// ResetDailyQuizCount runs the daily reset on demand for external schedulers.
func (h *MaintenanceHandler) ResetDailyQuizCount(w http.ResponseWriter, r *http.Request) {
	date, n, err := h.resetter.ResetNow(r.Context())
	if err != nil {
		h.logger.Error("reset daily quiz count", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Daily reset failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, resetResponse{
		Success:    true,
		Message:    fmt.Sprintf("Daily quiz count reset completed for %d users", n),
		Date:       date,
		ResetUsers: n,
	})
}
