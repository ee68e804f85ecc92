package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const applicationColumns = `
	a.id::text, a.applicant_id, a.program_id, a.status, a.message, a.motivation,
	a.cv_url, a.created_at, a.updated_at, a.decided_at, a.completed_at`

// ApplicationRepository implements application.Repository for PostgreSQL.
type ApplicationRepository struct {
	db DB
}

// NewApplicationRepository creates a new ApplicationRepository.
func NewApplicationRepository(db DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a new application.
func (r *ApplicationRepository) Create(ctx context.Context, app *application.Application) error {
	query := `
		INSERT INTO applications (
			id, applicant_id, program_id, status, message, motivation, cv_url,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		app.ID,
		app.ApplicantID,
		app.ProgramID,
		string(app.Status),
		app.Message,
		app.Motivation,
		app.CVURL,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrApplicationAlreadyExists
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrProgramNotFound
		}
		return storageError("application", "Create", fmt.Errorf("failed to create application: %w", err))
	}

	return nil
}

// GetByID returns an application by ID.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*application.Application, error) {
	if !shared.IsValidID(id) {
		return nil, shared.ErrApplicationNotFound
	}

	query := `SELECT ` + applicationColumns + ` FROM applications a WHERE a.id = $1`

	app, err := scanApplication(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrApplicationNotFound
		}
		return nil, storageError("application", "GetByID", fmt.Errorf("failed to get application: %w", err))
	}
	return app, nil
}

// TransitionStatus performs UPDATE ... WHERE status = from as one statement.
func (r *ApplicationRepository) TransitionStatus(ctx context.Context, id string, from, to application.Status, at time.Time) (*application.Application, bool, error) {
	if !application.CanTransition(from, to) {
		return nil, false, shared.NewDomainError("application", "TransitionStatus", shared.ErrStateTransition,
			"illegal transition "+from.String()+" -> "+to.String())
	}
	if !shared.IsValidID(id) {
		return nil, false, shared.ErrApplicationNotFound
	}

	query := `
		UPDATE applications a SET
			status = $3::varchar,
			updated_at = $4,
			decided_at = CASE WHEN $3::varchar IN ('APPROVED', 'REJECTED') THEN $4 ELSE a.decided_at END,
			completed_at = CASE WHEN $3::varchar = 'COMPLETED' THEN $4 ELSE a.completed_at END
		WHERE a.id = $1 AND a.status = $2
		RETURNING ` + applicationColumns

	app, err := scanApplication(r.db.QueryRow(ctx, query, id, string(from), string(to), at))
	if err == nil {
		return app, true, nil
	}
	if !IsNoRows(err) {
		return nil, false, storageError("application", "TransitionStatus", fmt.Errorf("failed to update status: %w", err))
	}

	// Zero rows: either the id is unknown or the status already moved on.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// ListByArtisan returns applications to the artisan's programs, newest first.
func (r *ApplicationRepository) ListByArtisan(ctx context.Context, artisanID string, opts application.ListOptions) ([]*application.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications a
		JOIN programs p ON p.id = a.program_id
		WHERE p.artisan_id = $1 AND ($2 = '' OR a.status = $2)
		ORDER BY a.created_at DESC, a.id DESC
	`

	rows, err := r.db.Query(ctx, query, artisanID, string(opts.Status))
	if err != nil {
		return nil, storageError("application", "ListByArtisan", fmt.Errorf("failed to list applications: %w", err))
	}
	return scanApplications(rows, "ListByArtisan")
}

// ListByApplicant returns the applicant's applications, newest first.
func (r *ApplicationRepository) ListByApplicant(ctx context.Context, applicantID string, opts application.ListOptions) ([]*application.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications a
		WHERE a.applicant_id = $1 AND ($2 = '' OR a.status = $2)
		ORDER BY a.created_at DESC, a.id DESC
	`

	rows, err := r.db.Query(ctx, query, applicantID, string(opts.Status))
	if err != nil {
		return nil, storageError("application", "ListByApplicant", fmt.Errorf("failed to list applications: %w", err))
	}
	return scanApplications(rows, "ListByApplicant")
}

// CountByStatusForArtisan groups the artisan's applications by status.
func (r *ApplicationRepository) CountByStatusForArtisan(ctx context.Context, artisanID string) (map[application.Status]int, error) {
	query := `
		SELECT a.status, COUNT(*)
		FROM applications a
		JOIN programs p ON p.id = a.program_id
		WHERE p.artisan_id = $1
		GROUP BY a.status
	`

	rows, err := r.db.Query(ctx, query, artisanID)
	if err != nil {
		return nil, storageError("application", "CountByStatus", fmt.Errorf("failed to count applications: %w", err))
	}
	defer rows.Close()

	counts := make(map[application.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, storageError("application", "CountByStatus", fmt.Errorf("failed to scan count: %w", err))
		}
		counts[application.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("application", "CountByStatus", err)
	}
	return counts, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanApplication(row pgx.Row) (*application.Application, error) {
	var (
		app    application.Application
		status string
	)
	err := row.Scan(
		&app.ID,
		&app.ApplicantID,
		&app.ProgramID,
		&status,
		&app.Message,
		&app.Motivation,
		&app.CVURL,
		&app.CreatedAt,
		&app.UpdatedAt,
		&app.DecidedAt,
		&app.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	app.Status = application.Status(status)
	return &app, nil
}

func scanApplications(rows pgx.Rows, op string) ([]*application.Application, error) {
	defer rows.Close()

	var out []*application.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, storageError("application", op, fmt.Errorf("failed to scan application: %w", err))
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("application", op, err)
	}
	return out, nil
}
