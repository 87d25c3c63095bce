package api

import (
	"net/http"
)

func (a *API) handleOpenVoting(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	if err := a.engine.OpenVoting(r.Context(), r.PathValue("leadId"), claims.Handle); err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "voting_open"})
}

func (a *API) handleCloseVoting(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	result, err := a.engine.CloseVoting(r.Context(), r.PathValue("leadId"), claims.Handle)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, result)
}

type castVoteRequest struct {
	BuilderID string `json:"builder_id" validate:"required"`
	Score     int    `json:"score" validate:"required,min=1,max=5"`
}

func (a *API) handleCastVote(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	var req castVoteRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	if err := a.engine.CastVote(r.Context(), r.PathValue("leadId"), req.BuilderID, claims.UserID, req.Score); err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "vote_recorded"})
}
