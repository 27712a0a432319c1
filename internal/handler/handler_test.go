package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/chorewheel/internal/apperr"
	"github.com/dukerupert/chorewheel/internal/auth"
	"github.com/dukerupert/chorewheel/internal/catalog"
	"github.com/dukerupert/chorewheel/internal/challenge"
	"github.com/dukerupert/chorewheel/internal/database"
	"github.com/dukerupert/chorewheel/internal/household"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/progression"
	"github.com/dukerupert/chorewheel/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// call routes one request through pattern on behalf of caller.
func call(t *testing.T, pattern string, h http.HandlerFunc, method, path string, caller *model.Member, body any) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{
			MemberID: caller.ID, HomeID: caller.HomeID, Name: caller.Name,
		}))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Code
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, discard, errors.New("database is locked"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "locked")

	rec = httptest.NewRecorder()
	writeError(rec, discard, apperr.NotFound("task", 3))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeNotFound, errorCode(t, rec))
}

func TestDecode(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	empty := httptest.NewRequest("POST", "/", http.NoBody)
	assert.NoError(t, decode(empty, &v))

	bad := httptest.NewRequest("POST", "/", bytes.NewBufferString("{name:"))
	assert.ErrorIs(t, decode(bad, &v), apperr.ErrValidation)
}

func TestPathID(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		if _, err := pathID(r, "id"); err != nil {
			writeError(w, discard, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
	assert.Equal(t, http.StatusNoContent, call(t, "GET /x/{id}", h, "GET", "/x/12", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, "GET /x/{id}", h, "GET", "/x/0", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, "GET /x/{id}", h, "GET", "/x/abc", nil, nil).Code)
}

type fixture struct {
	households *household.Service
	challengeH *ChallengeHandler
	progressH  *ProgressionHandler
	templates  map[string]int64
	ana        *model.Member
	zoe        *model.Member
	task       *model.Task
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hs, ms, ts := store.NewHomeStore(db), store.NewMemberStore(db), store.NewTaskStore(db)
	ps, cs := store.NewProgressionStore(db), store.NewChallengeStore(db)

	c, err := catalog.Load("")
	require.NoError(t, err)
	_, err = catalog.Sync(c, ps, cs, discard)
	require.NoError(t, err)

	progress := progression.NewEngine(ms, ps, discard)
	engine := challenge.NewEngine(hs, ms, ts, cs, progress, discard)
	svc := household.NewService(hs, ms, ts, progress, discard)

	f := &fixture{
		households: svc,
		challengeH: NewChallengeHandler(engine, nil, discard),
		progressH:  NewProgressionHandler(progress, svc, nil, discard),
		templates:  map[string]int64{},
	}

	list, err := engine.Templates()
	require.NoError(t, err)
	for _, tmpl := range list {
		f.templates[tmpl.Key] = tmpl.ID
	}

	_, f.ana, err = svc.CreateHome(household.CreateHomeRequest{
		Name: "Flat 4", RotationPolicy: "weekly", GoalPercentage: 80, CreatorName: "ana",
	})
	require.NoError(t, err)
	_, f.zoe, err = svc.CreateHome(household.CreateHomeRequest{
		Name: "Cottage", RotationPolicy: "weekly", GoalPercentage: 80, CreatorName: "zoe",
	})
	require.NoError(t, err)
	f.task, err = svc.CreateTask(f.ana.HomeID, household.TaskRequest{Name: "dishes", EffortPoints: 3, Frequency: "weekly"})
	require.NoError(t, err)
	return f
}

func (f *fixture) start(t *testing.T, key string, caller *model.Member) *httptest.ResponseRecorder {
	t.Helper()
	return call(t, "POST /api/challenges", f.challengeH.Start, "POST", "/api/challenges", caller,
		map[string]any{"template_id": f.templates[key]})
}

func TestChallengeLifecycle(t *testing.T) {
	f := setup(t)

	rec := f.start(t, "daily-double", f.ana)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ch model.ChallengeWithProgress
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ch))
	base := "/api/challenges/" + strconv.FormatInt(ch.ID, 10)

	claim := func(caller *model.Member) *httptest.ResponseRecorder {
		return call(t, "POST /api/challenges/{id}/claim", f.challengeH.Claim, "POST", base+"/claim", caller, nil)
	}
	progress := func() *httptest.ResponseRecorder {
		return call(t, "POST /api/challenges/{id}/progress", f.challengeH.Progress, "POST", base+"/progress", f.ana,
			map[string]any{"task_id": f.task.ID})
	}

	rec = claim(f.ana)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusOK, progress().Code)
	require.Equal(t, http.StatusOK, progress().Code)

	rec = claim(f.ana)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res challenge.ClaimResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, ch.XPReward, res.Award.Amount)

	assert.Equal(t, http.StatusConflict, claim(f.ana).Code)
}

func TestChallengesAreHomeScoped(t *testing.T) {
	f := setup(t)

	rec := f.start(t, "daily-double", f.ana)
	require.Equal(t, http.StatusCreated, rec.Code)
	var ch model.ChallengeWithProgress
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ch))
	path := "/api/challenges/" + strconv.FormatInt(ch.ID, 10)

	assert.Equal(t, http.StatusOK, call(t, "GET /api/challenges/{id}", f.challengeH.Get, "GET", path, f.ana, nil).Code)
	rec = call(t, "GET /api/challenges/{id}", f.challengeH.Get, "GET", path, f.zoe, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeNotFound, errorCode(t, rec))

	shed, err := f.households.CreateTask(f.zoe.HomeID, household.TaskRequest{Name: "shed", EffortPoints: 3, Frequency: "weekly"})
	require.NoError(t, err)
	rec = call(t, "POST /api/challenges/{id}/progress", f.challengeH.Progress, "POST", path+"/progress", f.ana,
		map[string]any{"task_id": shed.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, "GET /api/challenges", f.challengeH.List, "GET", "/api/challenges", f.zoe, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.ChallengeWithProgress
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Empty(t, list)
}

func TestStartChallengeGates(t *testing.T) {
	f := setup(t)

	rec := f.start(t, "room-hopper", f.ana)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, "POST /api/challenges", f.challengeH.Start, "POST", "/api/challenges", f.ana, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, "POST /api/challenges", f.challengeH.Start, "POST", "/api/challenges", f.ana,
		map[string]any{"template_id": 9999})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressionEndpoints(t *testing.T) {
	f := setup(t)
	path := "/api/members/" + strconv.FormatInt(f.ana.ID, 10)

	rec := call(t, "POST /api/members/{id}/xp", f.progressH.AwardBonus, "POST", path+"/xp", f.ana,
		map[string]any{"amount": 120, "note": "spring clean"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var award model.XPAward
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&award))
	assert.Equal(t, 120, award.Amount)

	rec = call(t, "GET /api/members/{id}/xp", f.progressH.History, "GET", path+"/xp?limit=5", f.ana, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []model.XPTransaction
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	require.NotEmpty(t, history)
	assert.LessOrEqual(t, len(history), 5)

	rec = call(t, "GET /api/members/{id}/achievements", f.progressH.Achievements, "GET", path+"/achievements", f.ana, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var unlocked []model.UnlockedAchievement
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&unlocked))
	assert.NotEmpty(t, unlocked, "onboarding achievement unlocks on home creation")

	rec = call(t, "POST /api/members/{id}/xp", f.progressH.AwardBonus, "POST", path+"/xp", f.zoe,
		map[string]any{"amount": 10})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
