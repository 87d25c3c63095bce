package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type joinSprintRequest struct {
	BuilderName string `json:"builder_name" validate:"required"`
}

func (a *API) handleJoinSprint(w http.ResponseWriter, r *http.Request) {
	if a.requireAuth(w, r) == nil {
		return
	}

	var req joinSprintRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	enrollment, err := a.engine.JoinSprint(r.Context(), r.PathValue("leadId"), r.PathValue("builderId"), req.BuilderName)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, enrollment)
}

// checkpointIndex parses the {n} path segment. Checkpoints are addressed by
// zero-based milestone index.
func checkpointIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		jsonError(w, "invalid checkpoint index", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

type submitProofRequest struct {
	ProofLink string `json:"proof_link" validate:"required,url"`
}

func (a *API) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	if a.requireAuth(w, r) == nil {
		return
	}

	n, ok := checkpointIndex(w, r)
	if !ok {
		return
	}
	var req submitProofRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	if err := a.engine.SubmitProof(r.Context(), r.PathValue("leadId"), r.PathValue("builderId"), n, req.ProofLink); err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "submitted"})
}

type verifyCheckpointRequest struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

func (a *API) handleVerifyCheckpoint(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	n, ok := checkpointIndex(w, r)
	if !ok {
		return
	}
	var req verifyCheckpointRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	err := a.engine.VerifyCheckpoint(r.Context(), r.PathValue("leadId"), r.PathValue("builderId"), n, req.Approved, req.Notes, claims.Handle)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	status := "rejected"
	if req.Approved {
		status = "approved"
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": status})
}

func (a *API) handleNudgeBuilder(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	if err := a.engine.NudgeBuilder(r.Context(), r.PathValue("leadId"), r.PathValue("builderId"), claims.Handle); err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "nudged"})
}

type flagBuilderRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (a *API) handleFlagBuilder(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	var req flagBuilderRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	if err := a.engine.FlagBuilder(r.Context(), r.PathValue("leadId"), r.PathValue("builderId"), claims.Handle, req.Reason); err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "flagged"})
}

type submitReviewRequest struct {
	Quality float64 `json:"quality" validate:"min=0,max=100"`
	Review  float64 `json:"review" validate:"min=0,max=100"`
	Notes   string  `json:"notes"`
}

func (a *API) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	var req submitReviewRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	err := a.engine.SubmitReview(r.Context(), r.PathValue("leadId"), r.PathValue("builderId"), req.Quality, req.Review, req.Notes, claims.Handle)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "reviewed"})
}

type evictBuilderRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleEvictBuilder(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}

	// Reason is optional; DELETE bodies are often empty.
	var req evictBuilderRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := a.engine.EvictBuilder(r.Context(), r.PathValue("leadId"), r.PathValue("builderId"), claims.Handle, req.Reason); err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "evicted"})
}
