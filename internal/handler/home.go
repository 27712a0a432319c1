package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorewheel/internal/auth"
	"github.com/dukerupert/chorewheel/internal/household"
	"github.com/dukerupert/chorewheel/internal/websocket"
)

type HomeHandler struct {
	broadcaster
	households *household.Service
	logger     *slog.Logger
}

func NewHomeHandler(svc *household.Service, hub *websocket.Hub, logger *slog.Logger) *HomeHandler {
	return &HomeHandler{broadcaster: broadcaster{hub}, households: svc, logger: logger}
}

// Create is the one unauthenticated write: it creates the home and returns
// the creator's member record, whose id the caller uses from then on.
func (h *HomeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req household.CreateHomeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	home, member, err := h.households.CreateHome(req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"home": home, "member": member})
}

func (h *HomeHandler) Get(w http.ResponseWriter, r *http.Request) {
	home, err := h.households.GetHome(auth.HomeID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, home)
}

func (h *HomeHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req household.SettingsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	homeID := auth.HomeID(r.Context())
	home, err := h.households.UpdateSettings(homeID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(homeID, websocket.NewMessage("home", "updated", homeID, nil))
	writeJSON(w, http.StatusOK, home)
}

func (h *HomeHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.households.ListMembers(auth.HomeID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *HomeHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req household.JoinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	homeID := auth.HomeID(r.Context())
	m, err := h.households.AddMember(homeID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(homeID, websocket.NewMessage("member", "joined", m.ID, nil))
	writeJSON(w, http.StatusCreated, m)
}

func (h *HomeHandler) DeactivateMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	homeID := auth.HomeID(r.Context())
	m, err := h.households.DeactivateMember(homeID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(homeID, websocket.NewMessage("member", "deactivated", m.ID, nil))
	writeJSON(w, http.StatusOK, m)
}

func (h *HomeHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.households.Leaderboard(auth.HomeID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *HomeHandler) ListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.households.ListZones(auth.HomeID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, zones)
}

func (h *HomeHandler) CreateZone(w http.ResponseWriter, r *http.Request) {
	var req household.ZoneRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	homeID := auth.HomeID(r.Context())
	z, err := h.households.CreateZone(homeID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(homeID, websocket.NewMessage("zone", "created", z.ID, nil))
	writeJSON(w, http.StatusCreated, z)
}

func (h *HomeHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.households.ListTasks(auth.HomeID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *HomeHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req household.TaskRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	homeID := auth.HomeID(r.Context())
	t, err := h.households.CreateTask(homeID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(homeID, websocket.NewMessage("task", "created", t.ID, nil))
	writeJSON(w, http.StatusCreated, t)
}

func (h *HomeHandler) SetTaskActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req struct {
		Active bool `json:"is_active"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	homeID := auth.HomeID(r.Context())
	t, err := h.households.SetTaskActive(homeID, id, req.Active)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(homeID, websocket.NewMessage("task", "updated", t.ID, nil))
	writeJSON(w, http.StatusOK, t)
}
