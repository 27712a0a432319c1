package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorewheel/internal/apperr"
	"github.com/dukerupert/chorewheel/internal/auth"
	"github.com/dukerupert/chorewheel/internal/fairness"
	"github.com/dukerupert/chorewheel/internal/rotation"
	"github.com/dukerupert/chorewheel/internal/websocket"
)

type RotationHandler struct {
	broadcaster
	scheduler *rotation.Scheduler
	metrics   *fairness.Engine
	logger    *slog.Logger
}

func NewRotationHandler(sched *rotation.Scheduler, metrics *fairness.Engine, hub *websocket.Hub, logger *slog.Logger) *RotationHandler {
	return &RotationHandler{broadcaster: broadcaster{hub}, scheduler: sched, metrics: metrics, logger: logger}
}

func (h *RotationHandler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	var date *time.Time
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			writeError(w, h.logger, apperr.Validation("date must be YYYY-MM-DD"))
			return
		}
		date = &d
	}

	homeID := auth.HomeID(r.Context())
	created, err := h.scheduler.AutoAssign(homeID, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(created) > 0 {
		h.broadcast(homeID, websocket.NewMessage("assignment", "created", 0, map[string]any{"count": len(created)}))
	}
	writeJSON(w, http.StatusCreated, created)
}

// Rotate starts the current cycle if it has not been dealt yet. With
// ?force=true it closes and redeals unconditionally.
func (h *RotationHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	homeID := auth.HomeID(r.Context())

	var (
		res     *rotation.Result
		started = true
		err     error
	)
	if r.URL.Query().Get("force") == "true" {
		res, err = h.scheduler.CloseCycleAndReassign(homeID)
	} else {
		res, started, err = h.scheduler.StartCycleIfNeeded(homeID)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if started {
		h.broadcast(homeID, websocket.NewMessage("cycle", "started", homeID, map[string]any{
			"closed": res.Closed, "assigned": res.Assigned,
		}))
	}
	writeJSON(w, http.StatusOK, map[string]any{"started": started, "result": res})
}

func (h *RotationHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	homeID := auth.HomeID(r.Context())
	moved, err := h.scheduler.ReassignPendingTasks(homeID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(moved) > 0 {
		h.broadcast(homeID, websocket.NewMessage("assignment", "reassigned", 0, map[string]any{"count": len(moved)}))
	}
	writeJSON(w, http.StatusOK, moved)
}

func (h *RotationHandler) Current(w http.ResponseWriter, r *http.Request) {
	c, err := h.scheduler.CurrentCycle(auth.HomeID(r.Context()), 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *RotationHandler) Mine(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	c, err := h.scheduler.CurrentCycle(id.HomeID, id.MemberID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *RotationHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.metrics.GetHomeMetrics(auth.HomeID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
