package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/bridgeit/bridgeit/internal/db"
	"github.com/bridgeit/bridgeit/internal/engine"
)

type createLeadRequest struct {
	BusinessName     string               `json:"business_name" validate:"required"`
	Category         string               `json:"category" validate:"required"`
	Neighborhood     string               `json:"neighborhood"`
	Borough          string               `json:"borough"`
	PostalCode       string               `json:"postal_code"`
	HFI              int                  `json:"hfi" validate:"min=0,max=100"`
	FrictionType     string               `json:"friction_type"`
	FrictionClusters []db.FrictionCluster `json:"friction_clusters"`
	Recency          db.RecencyBuckets    `json:"recency"`
	TimeBurden       string               `json:"time_burden"`
	WebsiteURL       *string              `json:"website_url"`
}

func (a *API) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	if a.requireAuth(w, r) == nil {
		return
	}

	var req createLeadRequest
	if !a.decodeValid(w, r, &req) {
		return
	}

	lead, err := a.db.CreateLead(db.CreateLeadInput{
		BusinessName:     req.BusinessName,
		Category:         req.Category,
		Neighborhood:     req.Neighborhood,
		Borough:          req.Borough,
		PostalCode:       req.PostalCode,
		HFI:              req.HFI,
		FrictionType:     req.FrictionType,
		FrictionClusters: req.FrictionClusters,
		Recency:          req.Recency,
		TimeBurden:       req.TimeBurden,
		WebsiteURL:       req.WebsiteURL,
	})
	if err != nil {
		jsonError(w, "failed to create lead", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusCreated, lead)
}

func (a *API) handleListLeads(w http.ResponseWriter, r *http.Request) {
	if a.requireAuth(w, r) == nil {
		return
	}

	q := r.URL.Query()
	filter := db.ListLeadsFilter{
		Status:   q.Get("status"),
		Borough:  q.Get("borough"),
		Category: q.Get("category"),
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	if filter.Status != "" && !db.ValidLeadStatuses[filter.Status] {
		jsonError(w, "unknown status: "+filter.Status, http.StatusBadRequest)
		return
	}

	leads, err := a.db.ListLeads(filter)
	if err != nil {
		jsonError(w, "failed to list leads", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"leads": leads,
		"count": len(leads),
	})
}

func (a *API) handleGetLead(w http.ResponseWriter, r *http.Request) {
	if a.requireAuth(w, r) == nil {
		return
	}

	lead, err := a.db.GetLead(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			jsonError(w, "lead not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to load lead", http.StatusInternalServerError)
		return
	}

	analysis := engine.AnalyzeLead(lead)
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"lead":     lead,
		"analysis": analysis,
	})
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (a *API) handleUpdateLeadStatus(w http.ResponseWriter, r *http.Request) {
	if a.requireAuth(w, r) == nil {
		return
	}

	var req updateStatusRequest
	if !a.decodeValid(w, r, &req) {
		return
	}
	if !db.ValidLeadStatuses[req.Status] {
		jsonError(w, "unknown status: "+req.Status, http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	if err := a.db.UpdateLeadStatus(id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			jsonError(w, "lead not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to update status", http.StatusInternalServerError)
		return
	}

	lead, err := a.db.GetLead(id)
	if err != nil {
		jsonError(w, "failed to load lead", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, lead)
}

func (a *API) handleStandings(w http.ResponseWriter, r *http.Request) {
	if a.requireAuth(w, r) == nil {
		return
	}

	standings, err := a.engine.Standings(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, standings)
}
