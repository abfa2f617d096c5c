package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/email"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/engine"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/store"
)

// CreateCampaignRequest is the request body for POST /campaigns
type CreateCampaignRequest struct {
	Name         string              `json:"name"`
	TemplateID   string              `json:"template_id"`
	SenderID     string              `json:"sender_id"`
	Schedule     models.Schedule     `json:"schedule"`
	DelayConfig  models.DelayConfig  `json:"delay_config"`
	SendCriteria models.SendCriteria `json:"send_criteria"`
}

// TransitionRequest is the request body for POST /campaigns/{id}/transition
type TransitionRequest struct {
	Status models.CampaignStatus `json:"status"`
	Reason string                `json:"reason,omitempty"`
}

// AddLeadsRequest is the request body for POST /campaigns/{id}/leads
type AddLeadsRequest struct {
	Leads []LeadInput `json:"leads"`
}

// LeadInput is one lead to assign to a campaign
type LeadInput struct {
	Email       string `json:"email"`
	FullName    string `json:"full_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

// AddLeadsResponse is the response for POST /campaigns/{id}/leads
type AddLeadsResponse struct {
	Added      int `json:"added"`
	TotalLeads int `json:"total_leads"`
}

// CreditsResponse is the response for GET /verifier/credits
type CreditsResponse struct {
	Credits int `json:"credits"`
}

// HealthResponse is the response for GET /healthz
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleTick handles POST /api/v1/tick
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Tick(r.Context())
	if errors.Is(err, engine.ErrTickRunning) {
		s.sendError(w, http.StatusConflict, "tick already running")
		return
	}
	if err != nil {
		s.logger.Error("tick failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "tick failed")
		return
	}
	s.sendJSON(w, http.StatusOK, report)
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Schedule.Timezone == "" {
		s.sendError(w, http.StatusBadRequest, "schedule.timezone is required")
		return
	}
	if _, err := time.LoadLocation(req.Schedule.Timezone); err != nil {
		s.sendError(w, http.StatusBadRequest, "schedule.timezone is not a valid IANA name")
		return
	}
	if req.Schedule.DailyLimit <= 0 {
		s.sendError(w, http.StatusBadRequest, "schedule.daily_limit must be positive")
		return
	}
	if req.TemplateID != "" {
		tmpl, err := s.templates.GetByID(req.TemplateID)
		if err != nil {
			s.logger.Error("failed to get template", "template_id", req.TemplateID, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to get template")
			return
		}
		if tmpl == nil {
			s.sendError(w, http.StatusBadRequest, "template_id does not reference a stored template")
			return
		}
	}

	c := &models.Campaign{
		Name:         req.Name,
		TemplateID:   req.TemplateID,
		SenderID:     req.SenderID,
		Schedule:     req.Schedule,
		DelayConfig:  req.DelayConfig,
		SendCriteria: req.SendCriteria,
	}
	if err := s.campaigns.Create(c); err != nil {
		s.logger.Error("failed to create campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create campaign")
		return
	}

	s.logger.Info("campaign created via API", "campaign_id", c.ID, "name", c.Name)
	s.sendJSON(w, http.StatusCreated, c)
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.campaigns.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get campaign", "campaign_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}
	if c == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleTransition handles POST /api/v1/campaigns/{id}/transition
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validCampaignStatus(req.Status) {
		s.sendError(w, http.StatusBadRequest, "unknown status")
		return
	}

	c, err := s.engine.TransitionCampaign(id, req.Status, req.Reason)
	if err != nil {
		var guardErr *engine.EntryGuardError
		var invalidErr *models.ErrInvalidTransition
		switch {
		case errors.Is(err, engine.ErrCampaignNotFound):
			s.sendError(w, http.StatusNotFound, "Campaign not found")
		case errors.As(err, &guardErr):
			s.sendError(w, http.StatusUnprocessableEntity, guardErr.Error())
		case errors.As(err, &invalidErr):
			s.sendError(w, http.StatusConflict, invalidErr.Error())
		case errors.Is(err, store.ErrStatusConflict):
			s.sendError(w, http.StatusConflict, "campaign status changed concurrently")
		default:
			s.logger.Error("transition failed", "campaign_id", id, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Transition failed")
		}
		return
	}

	s.sendJSON(w, http.StatusOK, c)
}

// handleAddLeads handles POST /api/v1/campaigns/{id}/leads
func (s *Server) handleAddLeads(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := s.campaigns.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get campaign", "campaign_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get campaign")
		return
	}
	if c == nil {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}

	var req AddLeadsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Leads) == 0 {
		s.sendError(w, http.StatusBadRequest, "leads is required")
		return
	}
	for i, in := range req.Leads {
		normalized, err := email.Normalize(in.Email)
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "invalid email: "+in.Email)
			return
		}
		req.Leads[i].Email = normalized
	}

	added := 0
	for _, in := range req.Leads {
		l := &models.Lead{
			Email:       in.Email,
			FullName:    in.FullName,
			CompanyName: in.CompanyName,
			CampaignID:  c.ID,
			Status:      models.LeadQueued,
		}
		if err := s.leads.Create(l); err != nil {
			s.logger.Error("failed to create lead", "campaign_id", c.ID, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to create lead")
			return
		}
		added++
	}

	total := c.Metrics.TotalLeads + added
	if err := s.campaigns.SetTotalLeads(c.ID, total); err != nil {
		s.logger.Error("failed to update lead total", "campaign_id", c.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update lead total")
		return
	}

	s.logger.Info("leads assigned via API", "campaign_id", c.ID, "added", added)
	s.sendJSON(w, http.StatusCreated, AddLeadsResponse{Added: added, TotalLeads: total})
}

// handleCredits handles GET /api/v1/verifier/credits
func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	credits, err := s.verifier.Credits(r.Context())
	if err != nil {
		s.logger.Error("credits lookup failed", "error", err)
		s.sendError(w, http.StatusBadGateway, "Credits lookup failed")
		return
	}
	s.sendJSON(w, http.StatusOK, CreditsResponse{Credits: credits})
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

func validCampaignStatus(st models.CampaignStatus) bool {
	switch st {
	case models.CampaignDraft, models.CampaignQueued, models.CampaignRunning,
		models.CampaignPaused, models.CampaignAborting, models.CampaignAborted,
		models.CampaignCompleted, models.CampaignError:
		return true
	}
	return false
}
