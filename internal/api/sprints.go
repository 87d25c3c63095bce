package api

import (
	"encoding/json"
	"net/http"

	"github.com/bridgeit/bridgeit/internal/db"
)

type launchSprintRequest struct {
	MaxSlots      int            `json:"max_slots" validate:"required,min=1,max=4"`
	DurationWeeks int            `json:"duration_weeks" validate:"required,min=2,max=4"`
	Milestones    []db.Milestone `json:"milestones" validate:"omitempty,dive"`
}

func (a *API) handleLaunchSprint(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	var req launchSprintRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	sprint, err := a.engine.LaunchSprint(r.Context(), r.PathValue("leadId"), req.MaxSlots, req.DurationWeeks, req.Milestones, claims.Handle)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, sprint)
}

type pauseSprintRequest struct {
	Paused bool `json:"paused"`
}

func (a *API) handlePauseSprint(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	var req pauseSprintRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	sprint, err := a.engine.PauseSprint(r.Context(), r.PathValue("leadId"), req.Paused, claims.Handle)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, sprint)
}

type extendDeadlineRequest struct {
	Days   int    `json:"days" validate:"required,min=1"`
	Reason string `json:"reason"`
}

func (a *API) handleExtendDeadline(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	var req extendDeadlineRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	sprint, err := a.engine.ExtendDeadline(r.Context(), r.PathValue("leadId"), req.Days, claims.Handle, req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, sprint)
}

type terminateSprintRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleTerminateSprint(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	// Reason is optional; an empty body is fine.
	var req terminateSprintRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := a.engine.TerminateSprint(r.Context(), r.PathValue("leadId"), claims.Handle, req.Reason); err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "terminated"})
}

func (a *API) handleFinalize(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	result, err := a.engine.Finalize(r.Context(), r.PathValue("leadId"), claims.Handle)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, result)
}
