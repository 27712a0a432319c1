package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorewheel/internal/apperr"
	"github.com/dukerupert/chorewheel/internal/auth"
	"github.com/dukerupert/chorewheel/internal/challenge"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/websocket"
)

type ChallengeHandler struct {
	broadcaster
	engine *challenge.Engine
	logger *slog.Logger
}

func NewChallengeHandler(engine *challenge.Engine, hub *websocket.Hub, logger *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{broadcaster: broadcaster{hub}, engine: engine, logger: logger}
}

func (h *ChallengeHandler) Templates(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Templates()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Start instantiates a template for the caller's home. Individual
// challenges are always started for the caller; group challenges record
// the caller as creator.
func (h *ChallengeHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID int64 `json:"template_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.TemplateID <= 0 {
		writeError(w, h.logger, apperr.Validation("template_id is required"))
		return
	}

	caller, _ := auth.FromContext(r.Context())
	ch, err := h.engine.Instantiate(req.TemplateID, caller.HomeID, &caller.MemberID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(caller.HomeID, websocket.NewMessage("challenge", "created", ch.ID, nil))
	writeJSON(w, http.StatusCreated, ch)
}

// List returns running challenges, or every challenge with ?all=true.
func (h *ChallengeHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListForHome(auth.HomeID(r.Context()), r.URL.Query().Get("all") == "true")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ChallengeHandler) Get(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// load fetches the challenge named in the path, hiding other homes'
// challenges behind a 404.
func (h *ChallengeHandler) load(w http.ResponseWriter, r *http.Request) (*model.ChallengeWithProgress, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return nil, false
	}
	ch, err := h.engine.Get(id)
	if err == nil && ch.HomeID != auth.HomeID(r.Context()) {
		err = apperr.NotFound("challenge", id)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return nil, false
	}
	return ch, true
}

func (h *ChallengeHandler) Progress(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.load(w, r)
	if !ok {
		return
	}
	var req struct {
		TaskID int64 `json:"task_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.TaskID <= 0 {
		writeError(w, h.logger, apperr.Validation("task_id is required"))
		return
	}

	caller, _ := auth.FromContext(r.Context())
	out, err := h.engine.UpdateProgress(ch.ID, req.TaskID, caller.MemberID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(caller.HomeID, websocket.NewMessage("challenge", "progressed", ch.ID, map[string]any{"member_id": caller.MemberID}))
	writeJSON(w, http.StatusOK, out)
}

func (h *ChallengeHandler) Claim(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.load(w, r)
	if !ok {
		return
	}
	caller, _ := auth.FromContext(r.Context())
	res, err := h.engine.ClaimReward(ch.ID, caller.MemberID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(caller.HomeID, websocket.NewMessage("challenge", "claimed", ch.ID, map[string]any{
		"member_id": caller.MemberID, "xp": res.Award.Amount,
	}))
	writeJSON(w, http.StatusOK, res)
}
