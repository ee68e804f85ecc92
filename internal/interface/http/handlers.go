package http

import (
	"net/http"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/application/command"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/application/query"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/identity"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports every check; 503 only when a critical one fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"uptime":  s.Uptime().String(),
			"version": s.config.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleReady handles the readiness endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSubmitApplication handles POST /api/v1/applications
func (s *Server) handleSubmitApplication(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	var req SubmitApplicationRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, "application.submit", err)
		return
	}

	result, err := s.deps.SubmitApplication.Handle(r.Context(), command.SubmitApplicationCommand{
		Actor:         actor,
		ProgramID:     req.ProgramID,
		Message:       req.Message,
		Motivation:    req.Motivation,
		CVURL:         req.CVURL,
		CorrelationID: requestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, "application.submit", err)
		return
	}

	w.Header().Set("Location", "/api/v1/applications/"+result.Application.ID)
	writeJSON(w, r, http.StatusCreated, query.ToApplicationDTO(result.Application))
}

// handleGetApplication handles GET /api/v1/applications/{id}
func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	detail, err := s.deps.GetApplication.Handle(r.Context(), query.GetApplicationQuery{
		Actor:         actor,
		ApplicationID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, "application.byId", err)
		return
	}

	writeJSON(w, r, http.StatusOK, detail)
}

// handleDecideApplication handles POST /api/v1/applications/{id}/decision
func (s *Server) handleDecideApplication(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	var req DecisionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, "application.decide", err)
		return
	}

	decision, err := application.ParseDecision(req.Decision)
	if err != nil {
		s.writeError(w, r, "application.decide", err)
		return
	}

	result, err := s.deps.DecideApplication.Handle(r.Context(), command.DecideApplicationCommand{
		Actor:         actor,
		ApplicationID: r.PathValue("id"),
		Decision:      decision,
		CorrelationID: requestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, "application.decide", err)
		return
	}

	writeJSON(w, r, http.StatusOK, query.ToApplicationDTO(result.Application))
}

// handleCompleteApplication handles POST /api/v1/applications/{id}/complete
func (s *Server) handleCompleteApplication(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	result, err := s.deps.DecideApplication.Complete(r.Context(), command.CompleteApplicationCommand{
		Actor:         actor,
		ApplicationID: r.PathValue("id"),
		CorrelationID: requestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, "application.complete", err)
		return
	}

	writeJSON(w, r, http.StatusOK, query.ToApplicationDTO(result.Application))
}

// handleListArtisanApplications handles GET /api/v1/artisan/applications
func (s *Server) handleListArtisanApplications(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	s.listApplications(w, r, actor, query.ScopeArtisan, "application.listByArtisan")
}

// handleListApplicantApplications handles GET /api/v1/applicant/applications
func (s *Server) handleListApplicantApplications(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	s.listApplications(w, r, actor, query.ScopeApplicant, "application.listByApplicant")
}

func (s *Server) listApplications(w http.ResponseWriter, r *http.Request, actor identity.Principal, scope query.Scope, op string) {
	q := query.ListApplicationsQuery{Actor: actor, Scope: scope}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := application.ParseStatus(raw)
		if err != nil {
			s.writeError(w, r, op, err)
			return
		}
		q.Status = status
	}

	items, err := s.deps.ListApplications.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	if items == nil {
		items = []query.ApplicationDTO{}
	}

	writeList(w, r, items, len(items))
}

// handleDashboard handles GET /api/v1/artisan/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	dto, err := s.deps.Dashboard.Handle(r.Context(), query.ArtisanDashboardQuery{
		Actor:     actor,
		SkipCache: queryFlag(r, "refresh"),
	})
	if err != nil {
		s.writeError(w, r, "dashboard", err)
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordDashboardRead(dto.FromCache)
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPORT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCreateReport handles POST /api/v1/applications/{id}/reports
func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	var req ReportRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, "report.create", err)
		return
	}

	result, err := s.deps.Reports.Create(r.Context(), command.CreateReportCommand{
		Actor:         actor,
		ApplicationID: r.PathValue("id"),
		WeekNumber:    req.WeekNumber,
		ReportText:    req.ReportText,
		ImageURL:      req.ImageURL,
		CorrelationID: requestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, "report.create", err)
		return
	}

	w.Header().Set("Location", "/api/v1/reports/"+result.Report.ID)
	writeJSON(w, r, http.StatusCreated, query.ToReportDTO(result.Report))
}

// handleListReports handles GET /api/v1/applications/{id}/reports
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	result, err := s.deps.ListReports.Handle(r.Context(), query.ListReportsQuery{
		Actor:         actor,
		ApplicationID: r.PathValue("id"),
	})
	if err != nil {
		s.writeError(w, r, "report.listByApplication", err)
		return
	}
	if result.Reports == nil {
		result.Reports = []query.ReportDTO{}
	}

	writeList(w, r, result, len(result.Reports))
}

// handleUpdateReport handles PUT /api/v1/reports/{id}
func (s *Server) handleUpdateReport(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	var req ReportRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, "report.update", err)
		return
	}

	result, err := s.deps.Reports.Update(r.Context(), command.UpdateReportCommand{
		Actor:         actor,
		ReportID:      r.PathValue("id"),
		WeekNumber:    req.WeekNumber,
		ReportText:    req.ReportText,
		ImageURL:      req.ImageURL,
		CorrelationID: requestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, "report.update", err)
		return
	}

	writeJSON(w, r, http.StatusOK, query.ToReportDTO(result.Report))
}

// handleDeleteReport handles DELETE /api/v1/reports/{id}
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request, actor identity.Principal) {
	reportID := r.PathValue("id")

	err := s.deps.Reports.Delete(r.Context(), command.DeleteReportCommand{
		Actor:         actor,
		ReportID:      reportID,
		CorrelationID: requestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, "report.delete", err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{"id": reportID, "deleted": true})
}
