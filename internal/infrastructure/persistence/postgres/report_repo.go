package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/report"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPORT REPOSITORY IMPLEMENTATION
// Writes lock the parent application row FOR SHARE inside the same statement,
// so a concurrent status change either waits or is observed.
// ══════════════════════════════════════════════════════════════════════════════

const reportColumns = `
	r.id::text, r.application_id::text, r.week_number, r.report_text, r.image_url,
	r.created_at, r.updated_at`

// ReportRepository implements report.Repository for PostgreSQL.
type ReportRepository struct {
	db DB
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(db DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// CreateIfParentIn inserts the report only while the parent status is allowed.
func (r *ReportRepository) CreateIfParentIn(ctx context.Context, rep *report.ProgressReport, allowed []application.Status) (bool, error) {
	query := `
		INSERT INTO progress_reports (
			id, application_id, week_number, report_text, image_url, created_at, updated_at
		)
		SELECT $1, a.id, $3, $4, $5, $6, $6
		FROM applications a
		WHERE a.id = $2 AND a.status = ANY($7::varchar[])
		FOR SHARE
	`

	tag, err := r.db.Exec(ctx, query,
		rep.ID,
		rep.ApplicationID,
		rep.WeekNumber,
		rep.ReportText,
		rep.ImageURL,
		rep.CreatedAt,
		statusStrings(allowed),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return false, shared.ErrReportWeekExists
		}
		if IsCheckViolation(err) {
			return false, shared.WrapError("report", "Create", shared.ErrValidation, "report violates constraints", err)
		}
		return false, storageError("report", "Create", fmt.Errorf("failed to create report: %w", err))
	}

	return tag.RowsAffected() == 1, nil
}

// GetByID returns a report by ID.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*report.ProgressReport, error) {
	if !shared.IsValidID(id) {
		return nil, shared.ErrReportNotFound
	}

	query := `SELECT ` + reportColumns + ` FROM progress_reports r WHERE r.id = $1`

	rep, err := scanReport(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrReportNotFound
		}
		return nil, storageError("report", "GetByID", fmt.Errorf("failed to get report: %w", err))
	}
	return rep, nil
}

// UpdateIfParentIn replaces content only while the parent status is allowed.
func (r *ReportRepository) UpdateIfParentIn(ctx context.Context, rep *report.ProgressReport, allowed []application.Status) (bool, error) {
	query := `
		WITH parent AS (
			SELECT a.id
			FROM applications a
			JOIN progress_reports pr ON pr.application_id = a.id
			WHERE pr.id = $1 AND a.status = ANY($5::varchar[])
			FOR SHARE OF a
		)
		UPDATE progress_reports SET
			week_number = $2,
			report_text = $3,
			image_url = $4,
			updated_at = $6
		WHERE id = $1 AND application_id IN (SELECT id FROM parent)
	`

	tag, err := r.db.Exec(ctx, query,
		rep.ID,
		rep.WeekNumber,
		rep.ReportText,
		rep.ImageURL,
		statusStrings(allowed),
		rep.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return false, shared.ErrReportWeekExists
		}
		return false, storageError("report", "Update", fmt.Errorf("failed to update report: %w", err))
	}

	if tag.RowsAffected() == 0 {
		return false, r.ensureExists(ctx, rep.ID)
	}
	return true, nil
}

// DeleteIfParentIn removes the report only while the parent status is allowed.
func (r *ReportRepository) DeleteIfParentIn(ctx context.Context, id string, allowed []application.Status) (bool, error) {
	if !shared.IsValidID(id) {
		return false, shared.ErrReportNotFound
	}

	query := `
		WITH parent AS (
			SELECT a.id
			FROM applications a
			JOIN progress_reports pr ON pr.application_id = a.id
			WHERE pr.id = $1 AND a.status = ANY($2::varchar[])
			FOR SHARE OF a
		)
		DELETE FROM progress_reports
		WHERE id = $1 AND application_id IN (SELECT id FROM parent)
	`

	tag, err := r.db.Exec(ctx, query, id, statusStrings(allowed))
	if err != nil {
		return false, storageError("report", "Delete", fmt.Errorf("failed to delete report: %w", err))
	}

	if tag.RowsAffected() == 0 {
		return false, r.ensureExists(ctx, id)
	}
	return true, nil
}

// ListByApplication returns the application's reports, latest week first.
func (r *ReportRepository) ListByApplication(ctx context.Context, applicationID string) ([]*report.ProgressReport, error) {
	if !shared.IsValidID(applicationID) {
		return nil, nil
	}

	query := `
		SELECT ` + reportColumns + `
		FROM progress_reports r
		WHERE r.application_id = $1
		ORDER BY r.week_number DESC, r.created_at DESC
	`

	rows, err := r.db.Query(ctx, query, applicationID)
	if err != nil {
		return nil, storageError("report", "ListByApplication", fmt.Errorf("failed to list reports: %w", err))
	}
	defer rows.Close()

	var out []*report.ProgressReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, storageError("report", "ListByApplication", fmt.Errorf("failed to scan report: %w", err))
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("report", "ListByApplication", err)
	}
	return out, nil
}

// LatestWeek returns max(week_number) for the application, 0 when none.
func (r *ReportRepository) LatestWeek(ctx context.Context, applicationID string) (int, error) {
	if !shared.IsValidID(applicationID) {
		return 0, nil
	}

	var latest int
	query := `SELECT COALESCE(MAX(week_number), 0) FROM progress_reports WHERE application_id = $1`
	if err := r.db.QueryRow(ctx, query, applicationID).Scan(&latest); err != nil {
		return 0, storageError("report", "LatestWeek", fmt.Errorf("failed to get latest week: %w", err))
	}
	return latest, nil
}

// ensureExists distinguishes a missing report from a refused conditional write.
func (r *ReportRepository) ensureExists(ctx context.Context, id string) error {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM progress_reports WHERE id = $1)`
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return storageError("report", "Exists", fmt.Errorf("failed to check report: %w", err))
	}
	if !exists {
		return shared.ErrReportNotFound
	}
	return nil
}

func scanReport(row pgx.Row) (*report.ProgressReport, error) {
	var rep report.ProgressReport
	err := row.Scan(
		&rep.ID,
		&rep.ApplicationID,
		&rep.WeekNumber,
		&rep.ReportText,
		&rep.ImageURL,
		&rep.CreatedAt,
		&rep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func statusStrings(statuses []application.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
