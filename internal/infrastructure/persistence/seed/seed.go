// Package seed mirrors programs and user profiles from a JSON export of the
// external directory into the local store.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/identity"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
)

// Target is a directory that accepts mirrored records.
type Target interface {
	UpsertProgram(ctx context.Context, p *program.Program) error
	UpsertUser(ctx context.Context, u *program.User) error
}

// File is the on-disk format.
type File struct {
	Users    []UserRecord    `json:"users"`
	Programs []ProgramRecord `json:"programs"`
}

// UserRecord is one user profile.
type UserRecord struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

// ProgramRecord is one program.
type ProgramRecord struct {
	ID            string `json:"id"`
	ArtisanID     string `json:"artisan_id"`
	Title         string `json:"title"`
	IsOpen        bool   `json:"is_open"`
	DurationWeeks int    `json:"duration_weeks"`
}

// Result reports how many records were applied.
type Result struct {
	Users    int
	Programs int
}

// Load reads and validates a seed file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks required fields and role values.
func (f *File) Validate() error {
	var errs []error
	for i, u := range f.Users {
		if strings.TrimSpace(u.ID) == "" {
			errs = append(errs, fmt.Errorf("users[%d]: id is required", i))
		}
		if _, err := identity.ParseRole(u.Role); err != nil {
			errs = append(errs, fmt.Errorf("users[%d]: %w", i, err))
		}
	}
	for i, p := range f.Programs {
		if strings.TrimSpace(p.ID) == "" {
			errs = append(errs, fmt.Errorf("programs[%d]: id is required", i))
		}
		if strings.TrimSpace(p.ArtisanID) == "" {
			errs = append(errs, fmt.Errorf("programs[%d]: artisan_id is required", i))
		}
		if p.DurationWeeks < 0 {
			errs = append(errs, fmt.Errorf("programs[%d]: duration_weeks must not be negative", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("seed: %w", errors.Join(errs...))
	}
	return nil
}

// Apply upserts users first so program owners exist before their programs.
func (f *File) Apply(ctx context.Context, target Target) (Result, error) {
	var res Result
	for _, u := range f.Users {
		role, _ := identity.ParseRole(u.Role)
		if err := target.UpsertUser(ctx, &program.User{ID: u.ID, Role: string(role), DisplayName: u.DisplayName}); err != nil {
			return res, fmt.Errorf("seed: user %s: %w", u.ID, err)
		}
		res.Users++
	}
	for _, p := range f.Programs {
		prog := &program.Program{
			ID:            p.ID,
			ArtisanID:     p.ArtisanID,
			Title:         p.Title,
			IsOpen:        p.IsOpen,
			DurationWeeks: p.DurationWeeks,
		}
		if err := target.UpsertProgram(ctx, prog); err != nil {
			return res, fmt.Errorf("seed: program %s: %w", p.ID, err)
		}
		res.Programs++
	}
	return res, nil
}
