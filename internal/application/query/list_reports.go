package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/identity"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/report"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST REPORTS QUERY
// Отчёты заявки, поздние недели первыми.
// ══════════════════════════════════════════════════════════════════════════════

// ListReportsQuery содержит параметры запроса отчётов.
type ListReportsQuery struct {
	Actor         identity.Principal
	ApplicationID string
}

// Validate проверяет корректность параметров запроса.
func (q ListReportsQuery) Validate() error {
	if err := q.Actor.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(q.ApplicationID) == "" {
		return shared.NewDomainError("report", "List", shared.ErrEmptyValue, "application_id is required")
	}
	return nil
}

// ListReportsResult содержит отчёты и индикатор прогресса.
type ListReportsResult struct {
	Reports  []ReportDTO  `json:"reports"`
	Progress *ProgressDTO `json:"progress,omitempty"`
}

// ListReportsHandler обрабатывает запрос отчётов.
type ListReportsHandler struct {
	appRepo    application.Repository
	reportRepo report.Repository
	directory  program.Directory
	progress   *ProgressCalculator
}

// NewListReportsHandler создаёт новый обработчик.
func NewListReportsHandler(
	appRepo application.Repository,
	reportRepo report.Repository,
	directory program.Directory,
	progress *ProgressCalculator,
) *ListReportsHandler {
	return &ListReportsHandler{
		appRepo:    appRepo,
		reportRepo: reportRepo,
		directory:  directory,
		progress:   progress,
	}
}

// Handle выполняет запрос.
func (h *ListReportsHandler) Handle(ctx context.Context, q ListReportsQuery) (*ListReportsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	app, prog, err := loadViewable(ctx, h.appRepo, h.directory, q.Actor, q.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("list_reports: %w", err)
	}

	reports, err := h.reportRepo.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("list_reports: %w", err)
	}

	result := &ListReportsResult{Reports: ToReportDTOs(reports)}
	if hasProgress(app.Status) {
		result.Progress = ToProgressDTO(h.progress.FromReports(reports, prog))
	}
	return result, nil
}
