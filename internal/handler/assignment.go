package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorewheel/internal/auth"
	"github.com/dukerupert/chorewheel/internal/completion"
	"github.com/dukerupert/chorewheel/internal/reclaim"
	"github.com/dukerupert/chorewheel/internal/websocket"
)

// AssignmentHandler covers what a member does with a single assignment:
// complete it, release it, or take someone else's.
type AssignmentHandler struct {
	broadcaster
	tracker  *completion.Tracker
	workflow *reclaim.Workflow
	logger   *slog.Logger
}

func NewAssignmentHandler(tracker *completion.Tracker, workflow *reclaim.Workflow, hub *websocket.Hub, logger *slog.Logger) *AssignmentHandler {
	return &AssignmentHandler{broadcaster: broadcaster{hub}, tracker: tracker, workflow: workflow, logger: logger}
}

func (h *AssignmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req struct {
		Notes       string `json:"notes"`
		EvidenceURL string `json:"evidence_url"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	caller, _ := auth.FromContext(r.Context())
	res, err := h.tracker.CompleteTask(id, caller.MemberID, req.Notes, req.EvidenceURL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(caller.HomeID, websocket.NewMessage("assignment", "completed", id, map[string]any{
		"member_id": caller.MemberID, "points": res.PointsAwarded,
	}))
	writeJSON(w, http.StatusOK, res)
}

func (h *AssignmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	caller, _ := auth.FromContext(r.Context())
	c, err := h.workflow.Cancel(id, caller.MemberID, req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(caller.HomeID, websocket.NewMessage("cancellation", "created", c.ID, map[string]any{"assignment_id": id}))
	writeJSON(w, http.StatusCreated, c)
}

func (h *AssignmentHandler) Available(w http.ResponseWriter, r *http.Request) {
	list, err := h.workflow.ListAvailable(auth.HomeID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Take claims a cancellation. Cancellation id 0 claims a task nobody was
// dealt this cycle; the body must then name the task.
func (h *AssignmentHandler) Take(w http.ResponseWriter, r *http.Request) {
	id, err := pathIDOrZero(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req struct {
		TaskID *int64 `json:"task_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	caller, _ := auth.FromContext(r.Context())
	a, err := h.workflow.Take(id, caller.MemberID, req.TaskID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(caller.HomeID, websocket.NewMessage("cancellation", "taken", id, map[string]any{
		"assignment_id": a.ID, "member_id": caller.MemberID,
	}))
	writeJSON(w, http.StatusCreated, a)
}
