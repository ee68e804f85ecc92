package postgres

import (
	"context"
	"fmt"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAM DIRECTORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgramRepository implements program.Directory for PostgreSQL.
type ProgramRepository struct {
	db DB
}

// NewProgramRepository creates a new ProgramRepository.
func NewProgramRepository(db DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// GetProgram returns a program by ID.
func (r *ProgramRepository) GetProgram(ctx context.Context, id string) (*program.Program, error) {
	query := `
		SELECT id, artisan_id, title, is_open, duration_weeks, created_at
		FROM programs
		WHERE id = $1
	`

	var p program.Program
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.ArtisanID,
		&p.Title,
		&p.IsOpen,
		&p.DurationWeeks,
		&p.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgramNotFound
		}
		return nil, storageError("program", "GetProgram", fmt.Errorf("failed to get program: %w", err))
	}
	return &p, nil
}

// GetUsers returns profiles for the given IDs; unknown IDs are skipped.
func (r *ProgramRepository) GetUsers(ctx context.Context, ids []string) (map[string]*program.User, error) {
	out := make(map[string]*program.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `SELECT id, role, display_name FROM users WHERE id = ANY($1::varchar[])`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, storageError("program", "GetUsers", fmt.Errorf("failed to get users: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var u program.User
		if err := rows.Scan(&u.ID, &u.Role, &u.DisplayName); err != nil {
			return nil, storageError("program", "GetUsers", fmt.Errorf("failed to scan user: %w", err))
		}
		out[u.ID] = &u
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("program", "GetUsers", err)
	}
	return out, nil
}

// UpsertProgram stores a program mirrored from the external directory.
func (r *ProgramRepository) UpsertProgram(ctx context.Context, p *program.Program) error {
	query := `
		INSERT INTO programs (id, artisan_id, title, is_open, duration_weeks)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			artisan_id = EXCLUDED.artisan_id,
			title = EXCLUDED.title,
			is_open = EXCLUDED.is_open,
			duration_weeks = EXCLUDED.duration_weeks
	`

	if _, err := r.db.Exec(ctx, query, p.ID, p.ArtisanID, p.Title, p.IsOpen, p.DurationWeeks); err != nil {
		return storageError("program", "UpsertProgram", fmt.Errorf("failed to upsert program: %w", err))
	}
	return nil
}

// UpsertUser stores a user profile mirrored from the identity provider.
func (r *ProgramRepository) UpsertUser(ctx context.Context, u *program.User) error {
	query := `
		INSERT INTO users (id, role, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			role = EXCLUDED.role,
			display_name = EXCLUDED.display_name
	`

	if _, err := r.db.Exec(ctx, query, u.ID, u.Role, u.DisplayName); err != nil {
		return storageError("program", "UpsertUser", fmt.Errorf("failed to upsert user: %w", err))
	}
	return nil
}
