package query

import (
	"context"
	"fmt"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/identity"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST APPLICATIONS QUERY
// Списки заявок мастера и ученика. Всегда ограничены самим участником,
// отсортированы по дате создания, новые первыми. Пагинации нет.
// ══════════════════════════════════════════════════════════════════════════════

// Scope определяет, чей список запрашивается.
type Scope string

const (
	// ScopeArtisan - заявки во все программы мастера.
	ScopeArtisan Scope = "artisan"
	// ScopeApplicant - заявки, поданные учеником.
	ScopeApplicant Scope = "applicant"
)

// ListApplicationsQuery содержит параметры запроса списка.
type ListApplicationsQuery struct {
	Actor identity.Principal
	Scope Scope

	// Status - необязательный фильтр по статусу.
	Status application.Status
}

// Validate проверяет корректность параметров запроса.
func (q ListApplicationsQuery) Validate() error {
	if err := q.Actor.Validate(); err != nil {
		return err
	}
	switch q.Scope {
	case ScopeArtisan:
		if !q.Actor.IsArtisan() {
			return shared.NewDomainError("application", "ListByArtisan", shared.ErrForbidden, "only artisans have an artisan inbox")
		}
	case ScopeApplicant:
		if !q.Actor.IsApplicant() {
			return shared.NewDomainError("application", "ListByApplicant", shared.ErrForbidden, "only applicants have submitted applications")
		}
	default:
		return shared.NewDomainError("application", "List", shared.ErrInvalidInput, "unknown scope "+string(q.Scope))
	}
	if q.Status != "" && !q.Status.IsValid() {
		return shared.NewDomainError("application", "List", shared.ErrInvalidInput, "unknown status "+q.Status.String())
	}
	return nil
}

// ListApplicationsHandler обрабатывает запрос списка заявок.
type ListApplicationsHandler struct {
	appRepo   application.Repository
	directory program.Directory
	progress  *ProgressCalculator
}

// NewListApplicationsHandler создаёт новый обработчик.
func NewListApplicationsHandler(
	appRepo application.Repository,
	directory program.Directory,
	progress *ProgressCalculator,
) *ListApplicationsHandler {
	return &ListApplicationsHandler{
		appRepo:   appRepo,
		directory: directory,
		progress:  progress,
	}
}

// Handle выполняет запрос.
func (h *ListApplicationsHandler) Handle(ctx context.Context, q ListApplicationsQuery) ([]ApplicationDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	opts := application.ListOptions{}.WithStatus(q.Status)

	var (
		apps []*application.Application
		err  error
	)
	if q.Scope == ScopeArtisan {
		apps, err = h.appRepo.ListByArtisan(ctx, q.Actor.UserID, opts)
	} else {
		apps, err = h.appRepo.ListByApplicant(ctx, q.Actor.UserID, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("list_applications: %w", err)
	}

	programs := make(map[string]*program.Program)
	out := make([]ApplicationDTO, 0, len(apps))
	for _, app := range apps {
		dto := ToApplicationDTO(app)
		if hasProgress(app.Status) {
			prog, err := h.programFor(ctx, programs, app.ProgramID)
			if err != nil {
				return nil, fmt.Errorf("list_applications: %w", err)
			}
			p, err := h.progress.For(ctx, app, prog)
			if err != nil {
				return nil, fmt.Errorf("list_applications: %w", err)
			}
			dto.Progress = ToProgressDTO(p)
		}
		out = append(out, dto)
	}
	return out, nil
}

// programFor загружает программу один раз на запрос.
func (h *ListApplicationsHandler) programFor(ctx context.Context, seen map[string]*program.Program, id string) (*program.Program, error) {
	if p, ok := seen[id]; ok {
		return p, nil
	}
	p, err := h.directory.GetProgram(ctx, id)
	if err != nil {
		if shared.IsStorage(err) {
			return nil, err
		}
		p = nil
	}
	seen[id] = p
	return p, nil
}
