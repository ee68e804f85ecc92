// Package report содержит доменную модель еженедельного отчёта о прогрессе.
// Отчёт всегда принадлежит одной заявке.
package report

import (
	"context"
	"strings"
	"time"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ProgressReport - еженедельный отчёт ученика (текст и изображение).
type ProgressReport struct {
	ID            string
	ApplicationID string
	WeekNumber    int
	ReportText    string
	ImageURL      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Content - изменяемая часть отчёта.
type Content struct {
	WeekNumber int
	ReportText string
	ImageURL   string
}

// Validate проверяет содержимое отчёта.
// imageUrl - непрозрачная строка от сервиса загрузки, здесь проверяется только наличие.
func (c Content) Validate() error {
	if c.WeekNumber < 1 {
		return shared.ErrInvalidWeekNumber
	}
	if strings.TrimSpace(c.ReportText) == "" {
		return shared.ErrEmptyReportText
	}
	if strings.TrimSpace(c.ImageURL) == "" {
		return shared.ErrEmptyImageURL
	}
	return nil
}

// NewProgressReport создаёт отчёт с валидацией.
func NewProgressReport(id, applicationID string, c Content, now time.Time) (*ProgressReport, error) {
	if err := shared.ValidateID("report", "id", id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(applicationID) == "" {
		return nil, shared.NewDomainError("report", "Validate", shared.ErrEmptyValue, "application id is required")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return &ProgressReport{
		ID:            id,
		ApplicationID: applicationID,
		WeekNumber:    c.WeekNumber,
		ReportText:    c.ReportText,
		ImageURL:      strings.TrimSpace(c.ImageURL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Apply заменяет содержимое отчёта.
func (r *ProgressReport) Apply(c Content, at time.Time) {
	r.WeekNumber = c.WeekNumber
	r.ReportText = c.ReportText
	r.ImageURL = strings.TrimSpace(c.ImageURL)
	r.UpdatedAt = at
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранения отчётов.
// Все изменяющие операции - одна условная запись по статусу родительской заявки.
type Repository interface {
	// CreateIfParentIn вставляет отчёт, только если статус заявки входит в allowed.
	// Возвращает false без ошибки, если условие не выполнено.
	// Возвращает ErrReportWeekExists при повторе недели.
	CreateIfParentIn(ctx context.Context, r *ProgressReport, allowed []application.Status) (bool, error)

	// GetByID возвращает отчёт по ID.
	// Возвращает ErrReportNotFound, если отчёт не найден.
	GetByID(ctx context.Context, id string) (*ProgressReport, error)

	// UpdateIfParentIn обновляет содержимое, только если статус заявки входит в allowed.
	UpdateIfParentIn(ctx context.Context, r *ProgressReport, allowed []application.Status) (bool, error)

	// DeleteIfParentIn удаляет отчёт безвозвратно, только если статус заявки входит в allowed.
	DeleteIfParentIn(ctx context.Context, id string, allowed []application.Status) (bool, error)

	// ListByApplication возвращает отчёты заявки, поздние недели первыми.
	ListByApplication(ctx context.Context, applicationID string) ([]*ProgressReport, error)

	// LatestWeek возвращает max(weekNumber) по заявке, 0 если отчётов нет.
	LatestWeek(ctx context.Context, applicationID string) (int, error)
}

// EditableStatuses возвращает статусы заявки, при которых отчёты можно менять.
// COMPLETED замораживает отчёты, если политика не разрешает обратное.
func EditableStatuses(allowAfterCompletion bool) []application.Status {
	if allowAfterCompletion {
		return []application.Status{application.StatusApproved, application.StatusCompleted}
	}
	return []application.Status{application.StatusApproved}
}

// CreatableStatuses возвращает статусы, при которых можно создать отчёт.
func CreatableStatuses() []application.Status {
	return []application.Status{application.StatusApproved}
}
