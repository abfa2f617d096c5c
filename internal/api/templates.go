package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/template"
)

// CreateTemplateRequest is the request body for POST /templates
type CreateTemplateRequest struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// PreviewRequest is the request body for POST /templates/{id}/preview.
// Omitted fields fall back to sample values.
type PreviewRequest struct {
	Email       string `json:"email,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

// handleCreateTemplate handles POST /api/v1/templates
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Subject == "" {
		s.sendError(w, http.StatusBadRequest, "subject is required")
		return
	}
	if req.HTML == "" && req.Text == "" {
		s.sendError(w, http.StatusBadRequest, "html or text body is required")
		return
	}

	t := &models.Template{
		Name:    req.Name,
		Subject: req.Subject,
		HTML:    req.HTML,
		Text:    req.Text,
	}
	if err := s.renderer.Validate(t); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.templates.Create(t); err != nil {
		s.logger.Error("failed to create template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	s.logger.Info("template created via API", "template_id", t.ID, "name", t.Name)
	s.sendJSON(w, http.StatusCreated, t)
}

// handleListTemplates handles GET /api/v1/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.templates.List(0, 0)
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	s.sendJSON(w, http.StatusOK, templates)
}

// handleGetTemplate handles GET /api/v1/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := s.templates.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get template", "template_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}
	if t == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}
	s.sendJSON(w, http.StatusOK, t)
}

// handlePreviewTemplate handles POST /api/v1/templates/{id}/preview
func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := s.templates.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get template", "template_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}
	if t == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	var req PreviewRequest
	if r.Body != nil {
		// An empty body previews with sample data
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	lead := &models.Lead{
		Email:       req.Email,
		FullName:    req.FullName,
		CompanyName: req.CompanyName,
	}
	if lead.Email == "" {
		lead.Email = "jane.doe@example.com"
	}
	if lead.FullName == "" {
		lead.FullName = "Jane Doe"
	}
	if lead.CompanyName == "" {
		lead.CompanyName = "Example Inc"
	}

	result, err := s.renderer.Render(t, template.LeadData(lead))
	if err != nil {
		s.sendError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}
