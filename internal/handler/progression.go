package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/chorewheel/internal/auth"
	"github.com/dukerupert/chorewheel/internal/household"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/progression"
	"github.com/dukerupert/chorewheel/internal/websocket"
)

const defaultHistoryLimit = 50

type ProgressionHandler struct {
	broadcaster
	engine     *progression.Engine
	households *household.Service
	logger     *slog.Logger
}

func NewProgressionHandler(engine *progression.Engine, households *household.Service, hub *websocket.Hub, logger *slog.Logger) *ProgressionHandler {
	return &ProgressionHandler{broadcaster: broadcaster{hub}, engine: engine, households: households, logger: logger}
}

// member resolves the {id} path value to a member of the caller's home.
func (h *ProgressionHandler) member(w http.ResponseWriter, r *http.Request) (*model.Member, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return nil, false
	}
	m, err := h.households.GetMember(auth.HomeID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return nil, false
	}
	return m, true
}

func (h *ProgressionHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *ProgressionHandler) History(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	list, err := h.engine.History(m.ID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ProgressionHandler) Achievements(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	list, err := h.engine.Unlocked(m.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CheckAchievements re-evaluates the member's locked achievements.
func (h *ProgressionHandler) CheckAchievements(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	unlocked, err := h.engine.CheckAchievements(m.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(unlocked) > 0 {
		h.broadcast(m.HomeID, websocket.NewMessage("achievement", "unlocked", m.ID, map[string]any{"count": len(unlocked)}))
	}
	writeJSON(w, http.StatusOK, unlocked)
}

// AwardBonus grants bonus XP to a member of the caller's home.
func (h *ProgressionHandler) AwardBonus(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount int     `json:"amount"`
		Note   *string `json:"note"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	award, err := h.engine.AwardXP(m.ID, req.Amount, model.XPSourceBonus, req.Note)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(m.HomeID, websocket.NewMessage("member", "xp_awarded", m.ID, map[string]any{
		"amount": award.Amount, "leveled_up": award.LeveledUp,
	}))
	writeJSON(w, http.StatusOK, award)
}

type pinRequest struct {
	PIN string `json:"pin"`
}

func (h *ProgressionHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	var req pinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.households.SetPIN(m.HomeID, m.ID, req.PIN); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

func (h *ProgressionHandler) ClearPIN(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	if err := h.households.ClearPIN(m.HomeID, m.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin cleared"})
}

func (h *ProgressionHandler) VerifyPIN(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	var req pinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.households.VerifyPIN(m.HomeID, m.ID, req.PIN); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
