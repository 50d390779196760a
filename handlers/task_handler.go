package handlers

import (
	"context"
	"net/http"
	"time"

	"snapLinkAPI/services"
)

// TaskHandler exposes the sweeper to an external scheduler (Cloud
// Scheduler, cron). The route sits behind the task-secret middleware.
type TaskHandler struct {
	sweeper *services.StreakSweeper
}

func NewTaskHandler(sweeper *services.StreakSweeper) *TaskHandler {
	return &TaskHandler{sweeper: sweeper}
}

// POST /tasks/streak-sweep
func (h *TaskHandler) StreakSweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	h.sweeper.Sweep(ctx)

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
