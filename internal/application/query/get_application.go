package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/authz"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/identity"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/report"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET APPLICATION QUERY
// Карточка заявки: программа, мастер, ученик, отчёты и прогресс.
// Видна только автору заявки и мастеру программы.
// ══════════════════════════════════════════════════════════════════════════════

// GetApplicationQuery содержит параметры запроса карточки заявки.
type GetApplicationQuery struct {
	Actor         identity.Principal
	ApplicationID string
}

// Validate проверяет корректность параметров запроса.
func (q GetApplicationQuery) Validate() error {
	if err := q.Actor.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(q.ApplicationID) == "" {
		return shared.NewDomainError("application", "Get", shared.ErrEmptyValue, "application_id is required")
	}
	return nil
}

// GetApplicationHandler обрабатывает запрос карточки заявки.
type GetApplicationHandler struct {
	appRepo    application.Repository
	reportRepo report.Repository
	directory  program.Directory
	progress   *ProgressCalculator
}

// NewGetApplicationHandler создаёт новый обработчик.
func NewGetApplicationHandler(
	appRepo application.Repository,
	reportRepo report.Repository,
	directory program.Directory,
	progress *ProgressCalculator,
) *GetApplicationHandler {
	return &GetApplicationHandler{
		appRepo:    appRepo,
		reportRepo: reportRepo,
		directory:  directory,
		progress:   progress,
	}
}

// Handle выполняет запрос.
func (h *GetApplicationHandler) Handle(ctx context.Context, q GetApplicationQuery) (*ApplicationDetailDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	app, prog, err := loadViewable(ctx, h.appRepo, h.directory, q.Actor, q.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("get_application: %w", err)
	}

	reports, err := h.reportRepo.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("get_application: %w", err)
	}

	users, err := h.directory.GetUsers(ctx, []string{prog.ArtisanID, app.ApplicantID})
	if err != nil {
		return nil, fmt.Errorf("get_application: %w", err)
	}

	dto := &ApplicationDetailDTO{
		ApplicationDTO: ToApplicationDTO(app),
		Program:        toProgramDTO(prog),
		Artisan:        toUserDTO(prog.ArtisanID, users),
		Applicant:      toUserDTO(app.ApplicantID, users),
		Reports:        ToReportDTOs(reports),
	}
	if hasProgress(app.Status) {
		dto.Progress = ToProgressDTO(h.progress.FromReports(reports, prog))
	}
	return dto, nil
}

// loadViewable загружает свежее состояние заявки и проверяет право просмотра.
func loadViewable(
	ctx context.Context,
	appRepo application.Repository,
	directory program.Directory,
	actor identity.Principal,
	id string,
) (*application.Application, *program.Program, error) {
	app, err := appRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	prog, err := directory.GetProgram(ctx, app.ProgramID)
	if err != nil {
		if shared.IsStorage(err) {
			return nil, nil, err
		}
		// Без программы право мастера не доказать; автор заявки её всё равно видит.
		prog = &program.Program{ID: app.ProgramID}
	}

	if !authz.CanViewApplication(actor, app, prog) {
		return nil, nil, shared.ErrNotApplicationViewer
	}
	return app, prog, nil
}
