package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/chorewheel/internal/challenge"
	"github.com/dukerupert/chorewheel/internal/completion"
	"github.com/dukerupert/chorewheel/internal/fairness"
	"github.com/dukerupert/chorewheel/internal/handler"
	"github.com/dukerupert/chorewheel/internal/household"
	"github.com/dukerupert/chorewheel/internal/middleware"
	"github.com/dukerupert/chorewheel/internal/progression"
	"github.com/dukerupert/chorewheel/internal/reclaim"
	"github.com/dukerupert/chorewheel/internal/rotation"
	"github.com/dukerupert/chorewheel/internal/store"
	"github.com/dukerupert/chorewheel/internal/sweeper"
	ws "github.com/dukerupert/chorewheel/internal/websocket"
)

// Write endpoints that award points or XP are limited per member.
const (
	actionLimit  = 30
	actionWindow = time.Minute
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	homeH       *handler.HomeHandler
	rotationH   *handler.RotationHandler
	assignmentH *handler.AssignmentHandler
	challengeH  *handler.ChallengeHandler
	progressH   *handler.ProgressionHandler
	memberStore *store.MemberStore
	rateLimiter *middleware.RateLimiter
	sweeper     *sweeper.Sweeper
	logger      *slog.Logger
}

func New(db *sql.DB, sweepInterval time.Duration, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	homeStore := store.NewHomeStore(db)
	memberStore := store.NewMemberStore(db)
	taskStore := store.NewTaskStore(db)
	assignmentStore := store.NewAssignmentStore(db)
	cancellationStore := store.NewCancellationStore(db)
	challengeStore := store.NewChallengeStore(db)
	progressionStore := store.NewProgressionStore(db)

	progress := progression.NewEngine(memberStore, progressionStore, logger.With("component", "progression"))
	challenges := challenge.NewEngine(homeStore, memberStore, taskStore, challengeStore, progress, logger.With("component", "challenge"))
	tracker := completion.NewTracker(assignmentStore, taskStore, challenges, progress, logger.With("component", "completion"))
	workflow := reclaim.NewWorkflow(homeStore, memberStore, taskStore, assignmentStore, cancellationStore, logger.With("component", "reclaim"))
	scheduler := rotation.NewScheduler(homeStore, memberStore, taskStore, assignmentStore, logger.With("component", "rotation"))
	households := household.NewService(homeStore, memberStore, taskStore, progress, logger.With("component", "household"))

	sw := sweeper.New(homeStore, scheduler, challenges, sweepInterval, logger.With("component", "sweeper"))
	sw.OnCycleStarted = func(homeID int64, res *rotation.Result) {
		hub.Broadcast(homeID, ws.NewMessage("cycle", "started", homeID, map[string]any{
			"closed":   res.Closed,
			"assigned": res.Assigned,
		}))
	}

	return &Server{
		db:          db,
		hub:         hub,
		homeH:       handler.NewHomeHandler(households, hub, logger.With("component", "home")),
		rotationH:   handler.NewRotationHandler(scheduler, fairness.NewEngine(homeStore, memberStore, assignmentStore), hub, logger.With("component", "rotation_handler")),
		assignmentH: handler.NewAssignmentHandler(tracker, workflow, hub, logger.With("component", "assignment")),
		challengeH:  handler.NewChallengeHandler(challenges, hub, logger.With("component", "challenge_handler")),
		progressH:   handler.NewProgressionHandler(progress, households, hub, logger.With("component", "progression_handler")),
		memberStore: memberStore,
		rateLimiter: middleware.NewRateLimiter(),
		sweeper:     sw,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Sweeper returns the background cycle sweeper; the caller starts it.
func (s *Server) Sweeper() *sweeper.Sweeper {
	return s.sweeper
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /api/homes", s.ipLimited(s.homeH.Create))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", promhttp.Handler())

	// Everything else requires a member identity
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)
	outerMux.Handle("/", middleware.RequireMember(s.memberStore)(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) ipLimited(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}

func (s *Server) memberLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.MemberKey, actionLimit, actionWindow)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Home, members, zones and tasks
	mux.HandleFunc("GET /api/home", s.homeH.Get)
	mux.HandleFunc("PUT /api/home/settings", s.homeH.UpdateSettings)
	mux.HandleFunc("GET /api/members", s.homeH.ListMembers)
	mux.HandleFunc("POST /api/members", s.homeH.AddMember)
	mux.HandleFunc("DELETE /api/members/{id}", s.homeH.DeactivateMember)
	mux.HandleFunc("GET /api/leaderboard", s.homeH.Leaderboard)
	mux.HandleFunc("GET /api/zones", s.homeH.ListZones)
	mux.HandleFunc("POST /api/zones", s.homeH.CreateZone)
	mux.HandleFunc("GET /api/tasks", s.homeH.ListTasks)
	mux.HandleFunc("POST /api/tasks", s.homeH.CreateTask)
	mux.HandleFunc("PUT /api/tasks/{id}/active", s.homeH.SetTaskActive)

	// Rotation
	mux.HandleFunc("POST /api/rotation/assign", s.rotationH.AutoAssign)
	mux.HandleFunc("POST /api/rotation/rotate", s.rotationH.Rotate)
	mux.HandleFunc("POST /api/rotation/reassign", s.rotationH.Reassign)
	mux.HandleFunc("GET /api/rotation/current", s.rotationH.Current)
	mux.HandleFunc("GET /api/rotation/mine", s.rotationH.Mine)
	mux.HandleFunc("GET /api/rotation/metrics", s.rotationH.Metrics)

	// Assignments and cancellations
	mux.HandleFunc("POST /api/assignments/{id}/complete", s.memberLimited(s.assignmentH.Complete))
	mux.HandleFunc("POST /api/assignments/{id}/cancel", s.assignmentH.Cancel)
	mux.HandleFunc("GET /api/cancellations", s.assignmentH.Available)
	mux.HandleFunc("POST /api/cancellations/{id}/take", s.memberLimited(s.assignmentH.Take))

	// Challenges
	mux.HandleFunc("GET /api/challenge-templates", s.challengeH.Templates)
	mux.HandleFunc("GET /api/challenges", s.challengeH.List)
	mux.HandleFunc("POST /api/challenges", s.challengeH.Start)
	mux.HandleFunc("GET /api/challenges/{id}", s.challengeH.Get)
	mux.HandleFunc("POST /api/challenges/{id}/progress", s.challengeH.Progress)
	mux.HandleFunc("POST /api/challenges/{id}/claim", s.memberLimited(s.challengeH.Claim))

	// Progression
	mux.HandleFunc("GET /api/members/{id}", s.progressH.Get)
	mux.HandleFunc("GET /api/members/{id}/xp", s.progressH.History)
	mux.HandleFunc("POST /api/members/{id}/xp", s.memberLimited(s.progressH.AwardBonus))
	mux.HandleFunc("GET /api/members/{id}/achievements", s.progressH.Achievements)
	mux.HandleFunc("POST /api/members/{id}/achievements/check", s.progressH.CheckAchievements)
	mux.HandleFunc("POST /api/members/{id}/pin", s.progressH.SetPIN)
	mux.HandleFunc("DELETE /api/members/{id}/pin", s.progressH.ClearPIN)
	mux.HandleFunc("POST /api/members/{id}/pin/verify", s.ipLimited(s.progressH.VerifyPIN))

	// Live updates
	mux.HandleFunc("GET /ws", ws.Handle(s.hub, s.logger.With("component", "websocket")))
}
