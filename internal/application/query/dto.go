// Package query contains read operations (CQRS - Queries).
package query

import (
	"time"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/report"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTO
// Наружу отдаются только непрозрачные ID сущностей.
// ══════════════════════════════════════════════════════════════════════════════

// ApplicationDTO - заявка в списках.
type ApplicationDTO struct {
	ID          string       `json:"id"`
	ApplicantID string       `json:"applicant_id"`
	ProgramID   string       `json:"program_id"`
	Status      string       `json:"status"`
	Message     string       `json:"message"`
	Motivation  string       `json:"motivation,omitempty"`
	CVURL       string       `json:"cv_url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	DecidedAt   *time.Time   `json:"decided_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Progress    *ProgressDTO `json:"progress,omitempty"`
}

// ProgramDTO - краткая карточка программы.
type ProgramDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ArtisanID string `json:"artisan_id"`
	IsOpen    bool   `json:"is_open"`
}

// UserDTO - краткий профиль участника.
type UserDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// ReportDTO - еженедельный отчёт.
type ReportDTO struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	WeekNumber    int       `json:"week_number"`
	ReportText    string    `json:"report_text"`
	ImageURL      string    `json:"image_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProgressDTO - индикатор "Week N (X%)".
type ProgressDTO struct {
	LatestWeek int    `json:"latest_week"`
	TotalWeeks int    `json:"total_weeks"`
	Percent    int    `json:"percent"`
	Label      string `json:"label"`
}

// ApplicationDetailDTO - заявка вместе с программой, участниками и отчётами.
type ApplicationDetailDTO struct {
	ApplicationDTO
	Program   ProgramDTO  `json:"program"`
	Artisan   UserDTO     `json:"artisan"`
	Applicant UserDTO     `json:"applicant"`
	Reports   []ReportDTO `json:"reports"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Mappers
// ─────────────────────────────────────────────────────────────────────────────

// ToApplicationDTO преобразует сущность заявки в DTO.
func ToApplicationDTO(a *application.Application) ApplicationDTO {
	return ApplicationDTO{
		ID:          a.ID,
		ApplicantID: a.ApplicantID,
		ProgramID:   a.ProgramID,
		Status:      a.Status.String(),
		Message:     a.Message,
		Motivation:  a.Motivation,
		CVURL:       a.CVURL,
		CreatedAt:   a.CreatedAt,
		DecidedAt:   a.DecidedAt,
		CompletedAt: a.CompletedAt,
	}
}

// ToReportDTO преобразует отчёт в DTO.
func ToReportDTO(r *report.ProgressReport) ReportDTO {
	return ReportDTO{
		ID:            r.ID,
		ApplicationID: r.ApplicationID,
		WeekNumber:    r.WeekNumber,
		ReportText:    r.ReportText,
		ImageURL:      r.ImageURL,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// ToReportDTOs преобразует список отчётов, сохраняя порядок.
func ToReportDTOs(reports []*report.ProgressReport) []ReportDTO {
	out := make([]ReportDTO, 0, len(reports))
	for _, r := range reports {
		out = append(out, ToReportDTO(r))
	}
	return out
}

// ToProgressDTO преобразует value object прогресса.
func ToProgressDTO(p shared.Progress) *ProgressDTO {
	return &ProgressDTO{
		LatestWeek: p.LatestWeek,
		TotalWeeks: p.TotalWeeks,
		Percent:    p.Percent(),
		Label:      p.Label(),
	}
}

func toProgramDTO(p *program.Program) ProgramDTO {
	return ProgramDTO{ID: p.ID, Title: p.Title, ArtisanID: p.ArtisanID, IsOpen: p.IsOpen}
}

func toUserDTO(id string, users map[string]*program.User) UserDTO {
	dto := UserDTO{ID: id}
	if u, ok := users[id]; ok {
		dto.DisplayName = u.DisplayName
	}
	return dto
}
