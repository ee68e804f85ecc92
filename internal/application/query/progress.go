package query

import (
	"context"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/report"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS INDICATOR
// Последняя неделя = max(weekNumber) по отчётам заявки.
// Знаменатель - длительность программы или значение по умолчанию из конфигурации.
// Это константа представления, в хранилище она не записывается.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressCalculator строит индикатор прогресса заявки.
type ProgressCalculator struct {
	reportRepo        report.Repository
	defaultTotalWeeks int
}

// NewProgressCalculator создаёт калькулятор. defaultTotalWeeks <= 0 означает 12.
func NewProgressCalculator(reportRepo report.Repository, defaultTotalWeeks int) *ProgressCalculator {
	if defaultTotalWeeks <= 0 {
		defaultTotalWeeks = shared.DefaultTotalWeeks
	}
	return &ProgressCalculator{reportRepo: reportRepo, defaultTotalWeeks: defaultTotalWeeks}
}

// Denominator возвращает число недель для программы.
func (c *ProgressCalculator) Denominator(prog *program.Program) int {
	if prog != nil && prog.DurationWeeks > 0 {
		return prog.DurationWeeks
	}
	return c.defaultTotalWeeks
}

// For вычисляет прогресс заявки. Для заявок без отчётов возвращает неделю 0.
func (c *ProgressCalculator) For(ctx context.Context, app *application.Application, prog *program.Program) (shared.Progress, error) {
	latest, err := c.reportRepo.LatestWeek(ctx, app.ID)
	if err != nil {
		return shared.Progress{}, err
	}
	return shared.NewProgress(latest, c.Denominator(prog)), nil
}

// FromReports вычисляет прогресс по уже загруженным отчётам.
func (c *ProgressCalculator) FromReports(reports []*report.ProgressReport, prog *program.Program) shared.Progress {
	latest := 0
	for _, r := range reports {
		if r.WeekNumber > latest {
			latest = r.WeekNumber
		}
	}
	return shared.NewProgress(latest, c.Denominator(prog))
}

// hasProgress - индикатор имеет смысл только для начатого наставничества.
func hasProgress(s application.Status) bool {
	return s == application.StatusApproved || s == application.StatusCompleted
}
