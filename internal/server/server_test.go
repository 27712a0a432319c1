package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/chorewheel/internal/database"
	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/rotation"
)

type client struct {
	t      *testing.T
	router http.Handler
}

func newClient(t *testing.T) *client {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := New(db, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &client{t: t, router: srv.Router()}
}

// do sends body as JSON on behalf of memberID (0 for anonymous) and decodes
// the response into out when out is non-nil.
func (c *client) do(method, path string, memberID int64, body, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if memberID > 0 {
		req.Header.Set("X-Member-ID", strconv.FormatInt(memberID, 10))
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(c.t, json.NewDecoder(rec.Body).Decode(out), rec.Body.String())
	}
	return rec.Code
}

func (c *client) createHome(name, creator string) (model.Home, model.Member) {
	c.t.Helper()
	var out struct {
		Home   model.Home   `json:"home"`
		Member model.Member `json:"member"`
	}
	code := c.do("POST", "/api/homes", 0, map[string]any{
		"name": name, "rotation_policy": "weekly", "goal_percentage": 80, "auto_rotation": true, "creator_name": creator,
	}, &out)
	require.Equal(c.t, http.StatusCreated, code)
	return out.Home, out.Member
}

func TestHealth(t *testing.T) {
	c := newClient(t)
	var out map[string]string
	assert.Equal(t, http.StatusOK, c.do("GET", "/health", 0, nil, &out))
	assert.Equal(t, "ok", out["status"])
}

func TestProtectedRoutesRequireMember(t *testing.T) {
	c := newClient(t)
	assert.Equal(t, http.StatusUnauthorized, c.do("GET", "/api/home", 0, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, c.do("GET", "/api/home", 999, nil, nil))
}

func TestCreateHomeValidation(t *testing.T) {
	c := newClient(t)
	code := c.do("POST", "/api/homes", 0, map[string]any{
		"name": "Flat", "rotation_policy": "hourly", "goal_percentage": 80, "creator_name": "ana",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRotateCompleteFlow(t *testing.T) {
	c := newClient(t)
	home, ana := c.createHome("Flat 4", "ana")

	var ben model.Member
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/members", ana.ID, map[string]any{"name": "ben"}, &ben))
	assert.Equal(t, home.ID, ben.HomeID)

	var task model.Task
	require.Equal(t, http.StatusCreated, c.do("POST", "/api/tasks", ana.ID, map[string]any{
		"name": "dishes", "effort_points": 5, "frequency": "weekly",
	}, &task))

	var rotated struct {
		Started bool            `json:"started"`
		Result  rotation.Result `json:"result"`
	}
	require.Equal(t, http.StatusOK, c.do("POST", "/api/rotation/rotate", ana.ID, nil, &rotated))
	assert.True(t, rotated.Started)
	assert.Equal(t, 1, rotated.Result.Assigned)

	// A second rotate in the same cycle is a no-op.
	require.Equal(t, http.StatusOK, c.do("POST", "/api/rotation/rotate", ana.ID, nil, &rotated))
	assert.False(t, rotated.Started)

	var current rotation.Cycle
	require.Equal(t, http.StatusOK, c.do("GET", "/api/rotation/current", ana.ID, nil, &current))
	require.Len(t, current.Assignments, 1)
	a := current.Assignments[0]

	other := ana.ID
	if a.MemberID == ana.ID {
		other = ben.ID
	}
	path := "/api/assignments/" + strconv.FormatInt(a.ID, 10) + "/complete"
	assert.Equal(t, http.StatusForbidden, c.do("POST", path, other, nil, nil))

	var done struct {
		PointsAwarded int `json:"points_awarded"`
	}
	require.Equal(t, http.StatusOK, c.do("POST", path, a.MemberID, map[string]any{"notes": "sparkling"}, &done))
	assert.Equal(t, 5, done.PointsAwarded)
	assert.Equal(t, http.StatusConflict, c.do("POST", path, a.MemberID, nil, nil))

	var m model.Member
	require.Equal(t, http.StatusOK, c.do("GET", "/api/members/"+strconv.FormatInt(a.MemberID, 10), ana.ID, nil, &m))
	assert.Equal(t, 5, m.TotalPoints)
	assert.Equal(t, 1, m.TasksCompleted)
}

func TestMembersAreHomeScoped(t *testing.T) {
	c := newClient(t)
	_, ana := c.createHome("Flat 4", "ana")
	_, zoe := c.createHome("Cottage", "zoe")

	path := "/api/members/" + strconv.FormatInt(zoe.ID, 10)
	assert.Equal(t, http.StatusNotFound, c.do("GET", path, ana.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, c.do("POST", path+"/xp", ana.ID, map[string]any{"amount": 50}, nil))
	assert.Equal(t, http.StatusOK, c.do("GET", path, zoe.ID, nil, nil))
}

func TestBonusXP(t *testing.T) {
	c := newClient(t)
	_, ana := c.createHome("Flat 4", "ana")

	path := "/api/members/" + strconv.FormatInt(ana.ID, 10) + "/xp"
	var award model.XPAward
	require.Equal(t, http.StatusOK, c.do("POST", path, ana.ID, map[string]any{"amount": 50}, &award))
	assert.Equal(t, 50, award.Amount)

	var history []model.XPTransaction
	require.Equal(t, http.StatusOK, c.do("GET", path+"?limit=10", ana.ID, nil, &history))
	require.NotEmpty(t, history)
	assert.Equal(t, http.StatusBadRequest, c.do("POST", path, ana.ID, map[string]any{"amount": 0}, nil))
}
