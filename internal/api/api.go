// Package api exposes the engine over HTTP/JSON for the dashboard. Handlers
// never compute authoritative state; they validate input, call the engine,
// and render what it returns.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/bridgeit/bridgeit/internal/auth"
	"github.com/bridgeit/bridgeit/internal/db"
	"github.com/bridgeit/bridgeit/internal/engine"
	"github.com/bridgeit/bridgeit/pkg/metrics"
)

// maxBodySize bounds mutating request bodies.
const maxBodySize = 64 * 1024 // 64KB

type API struct {
	db       *db.DB
	auth     *auth.Auth
	engine   *engine.Engine
	validate *validator.Validate
	metrics  *metrics.Metrics
}

func New(database *db.DB, a *auth.Auth, eng *engine.Engine) *API {
	return &API{
		db:       database,
		auth:     a,
		engine:   eng,
		validate: validator.New(),
	}
}

// SetMetrics enables per-route instrumentation. Must be called before
// RegisterRoutes.
func (a *API) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, a.metrics.Instrument(pattern, h))
	}

	// Auth
	handle("POST /api/login", a.handleLogin)
	handle("GET /api/me", a.handleGetMe)

	// Leads
	handle("POST /api/leads", a.handleCreateLead)
	handle("GET /api/leads", a.handleListLeads)
	handle("GET /api/leads/{id}", a.handleGetLead)
	handle("PATCH /api/leads/{id}/status", a.handleUpdateLeadStatus)
	handle("GET /api/leads/{id}/standings", a.handleStandings)

	// Sprint lifecycle
	handle("POST /api/sprints/{leadId}/launch", a.handleLaunchSprint)
	handle("PATCH /api/sprints/{leadId}/pause", a.handlePauseSprint)
	handle("PATCH /api/sprints/{leadId}/extend-deadline", a.handleExtendDeadline)
	handle("POST /api/sprints/{leadId}/terminate", a.handleTerminateSprint)
	handle("POST /api/sprints/{leadId}/finalize", a.handleFinalize)

	// Roster & progress
	handle("POST /api/sprints/{leadId}/builders/{builderId}/join", a.handleJoinSprint)
	handle("POST /api/sprints/{leadId}/builders/{builderId}/checkpoints/{n}/proof", a.handleSubmitProof)
	handle("PATCH /api/sprints/{leadId}/builders/{builderId}/checkpoints/{n}/verify", a.handleVerifyCheckpoint)
	handle("POST /api/sprints/{leadId}/builders/{builderId}/nudge", a.handleNudgeBuilder)
	handle("POST /api/sprints/{leadId}/builders/{builderId}/flag", a.handleFlagBuilder)
	handle("POST /api/sprints/{leadId}/builders/{builderId}/review", a.handleSubmitReview)
	handle("DELETE /api/sprints/{leadId}/builders/{builderId}", a.handleEvictBuilder)

	// Voting
	handle("POST /api/sprints/{leadId}/voting/open", a.handleOpenVoting)
	handle("POST /api/sprints/{leadId}/voting/close", a.handleCloseVoting)
	handle("POST /api/sprints/{leadId}/votes", a.handleCastVote)

	// Health
	handle("GET /healthz", a.handleHealth)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.db.Ping(); err != nil {
		jsonError(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Auth ---

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle   string `json:"handle"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, passwordHash, err := a.db.GetStaffByHandle(req.Handle)
	if err != nil {
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !a.auth.CheckPassword(passwordHash, req.Password) {
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := a.auth.GenerateToken(user.ID, user.Handle, user.Role)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	jsonResp(w, http.StatusOK, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

func (a *API) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}
	user, err := a.db.GetStaffByID(claims.UserID)
	if err != nil {
		jsonError(w, "user not found", http.StatusNotFound)
		return
	}
	jsonResp(w, http.StatusOK, user)
}

// requireAuth extracts claims or writes a 401. All mutating endpoints call it;
// the claims' handle becomes the audit actor.
func (a *API) requireAuth(w http.ResponseWriter, r *http.Request) *auth.Claims {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
	}
	return claims
}

// decodeValid decodes a bounded JSON body and runs struct-tag validation.
func (a *API) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		jsonErrorKind(w, err.Error(), string(engine.KindValidation), http.StatusBadRequest)
		return false
	}
	return true
}

// --- Helpers ---

func jsonResp(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func jsonErrorKind(w http.ResponseWriter, msg, kind string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "kind": kind})
}

// writeEngineError renders an engine error with its specific kind so the
// dashboard can show an actionable message, never a generic alert.
func writeEngineError(w http.ResponseWriter, err error) {
	kind := engine.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		slog.Error("engine operation failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonErrorKind(w, err.Error(), string(kind), status)
}

var kindStatus = map[engine.Kind]int{
	engine.KindNotFound:                 http.StatusNotFound,
	engine.KindInvalidState:             http.StatusConflict,
	engine.KindAlreadyFinalized:         http.StatusConflict,
	engine.KindCapacityExceeded:         http.StatusConflict,
	engine.KindAlreadyEnrolledElsewhere: http.StatusConflict,
	engine.KindInsufficientVotes:        http.StatusUnprocessableEntity,
	engine.KindValidation:               http.StatusBadRequest,
}
