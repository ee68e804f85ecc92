// Package memory provides in-process implementations of the domain repositories.
// All repositories created from one Store share a single lock, so a conditional
// write on a report observes the parent application status atomically.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/report"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// Store holds every entity kind behind one RWMutex.
type Store struct {
	mu sync.RWMutex

	applications map[string]*application.Application
	byPair       map[pairKey]string // (applicant, program) -> application id
	reports      map[string]*report.ProgressReport
	byWeek       map[weekKey]string // (application, week) -> report id
	programs     map[string]*program.Program
	users        map[string]*program.User
}

type pairKey struct {
	applicantID string
	programID   string
}

type weekKey struct {
	applicationID string
	week          int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		applications: make(map[string]*application.Application),
		byPair:       make(map[pairKey]string),
		reports:      make(map[string]*report.ProgressReport),
		byWeek:       make(map[weekKey]string),
		programs:     make(map[string]*program.Program),
		users:        make(map[string]*program.User),
	}
}

// Applications returns the application repository view.
func (s *Store) Applications() *ApplicationRepository {
	return &ApplicationRepository{store: s}
}

// Reports returns the report repository view.
func (s *Store) Reports() *ReportRepository {
	return &ReportRepository{store: s}
}

// Directory returns the program directory view.
func (s *Store) Directory() *Directory {
	return &Directory{store: s}
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATIONS
// ══════════════════════════════════════════════════════════════════════════════

// ApplicationRepository implements application.Repository.
type ApplicationRepository struct {
	store *Store
}

// Create stores a new application, enforcing (applicant, program) uniqueness.
func (r *ApplicationRepository) Create(ctx context.Context, app *application.Application) error {
	if err := ctx.Err(); err != nil {
		return shared.StorageError("application", "Create", err)
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{applicantID: app.ApplicantID, programID: app.ProgramID}
	if _, exists := s.byPair[key]; exists {
		return shared.ErrApplicationAlreadyExists
	}
	if _, exists := s.applications[app.ID]; exists {
		return shared.ErrApplicationAlreadyExists
	}

	s.applications[app.ID] = app.Clone()
	s.byPair[key] = app.ID
	return nil
}

// GetByID returns a copy of the stored application.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*application.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("application", "GetByID", err)
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.applications[id]
	if !ok {
		return nil, shared.ErrApplicationNotFound
	}
	return app.Clone(), nil
}

// TransitionStatus checks and writes the status under the write lock.
func (r *ApplicationRepository) TransitionStatus(ctx context.Context, id string, from, to application.Status, at time.Time) (*application.Application, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, shared.StorageError("application", "TransitionStatus", err)
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.applications[id]
	if !ok {
		return nil, false, shared.ErrApplicationNotFound
	}
	if app.Status != from {
		return app.Clone(), false, nil
	}
	if err := app.Transition(to, at); err != nil {
		return app.Clone(), false, nil
	}
	return app.Clone(), true, nil
}

// ListByArtisan returns applications to any program owned by the artisan.
func (r *ApplicationRepository) ListByArtisan(ctx context.Context, artisanID string, opts application.ListOptions) ([]*application.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("application", "ListByArtisan", err)
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*application.Application
	for _, app := range s.applications {
		prog, ok := s.programs[app.ProgramID]
		if !ok || prog.ArtisanID != artisanID || !opts.Matches(app) {
			continue
		}
		out = append(out, app.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

// ListByApplicant returns the applicant's own applications.
func (r *ApplicationRepository) ListByApplicant(ctx context.Context, applicantID string, opts application.ListOptions) ([]*application.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("application", "ListByApplicant", err)
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*application.Application
	for _, app := range s.applications {
		if app.ApplicantID != applicantID || !opts.Matches(app) {
			continue
		}
		out = append(out, app.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

// CountByStatusForArtisan groups the artisan's applications by status.
func (r *ApplicationRepository) CountByStatusForArtisan(ctx context.Context, artisanID string) (map[application.Status]int, error) {
	apps, err := r.ListByArtisan(ctx, artisanID, application.ListOptions{})
	if err != nil {
		return nil, err
	}
	counts := make(map[application.Status]int)
	for _, app := range apps {
		counts[app.Status]++
	}
	return counts, nil
}

func sortNewestFirst(apps []*application.Application) {
	sort.SliceStable(apps, func(i, j int) bool {
		if apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].ID > apps[j].ID
		}
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORTS
// ══════════════════════════════════════════════════════════════════════════════

// ReportRepository implements report.Repository.
type ReportRepository struct {
	store *Store
}

// parentIn reports whether the parent application status is allowed.
// Caller must hold the lock.
func (s *Store) parentIn(applicationID string, allowed []application.Status) bool {
	app, ok := s.applications[applicationID]
	if !ok {
		return false
	}
	for _, st := range allowed {
		if app.Status == st {
			return true
		}
	}
	return false
}

// CreateIfParentIn inserts the report when the parent status is allowed.
func (r *ReportRepository) CreateIfParentIn(ctx context.Context, rep *report.ProgressReport, allowed []application.Status) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, shared.StorageError("report", "Create", err)
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.parentIn(rep.ApplicationID, allowed) {
		return false, nil
	}
	key := weekKey{applicationID: rep.ApplicationID, week: rep.WeekNumber}
	if _, exists := s.byWeek[key]; exists {
		return false, shared.ErrReportWeekExists
	}

	c := *rep
	s.reports[rep.ID] = &c
	s.byWeek[key] = rep.ID
	return true, nil
}

// GetByID returns a copy of the stored report.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*report.ProgressReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("report", "GetByID", err)
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep, ok := s.reports[id]
	if !ok {
		return nil, shared.ErrReportNotFound
	}
	c := *rep
	return &c, nil
}

// UpdateIfParentIn replaces report content when the parent status is allowed.
func (r *ReportRepository) UpdateIfParentIn(ctx context.Context, rep *report.ProgressReport, allowed []application.Status) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, shared.StorageError("report", "Update", err)
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.reports[rep.ID]
	if !ok {
		return false, shared.ErrReportNotFound
	}
	if !s.parentIn(current.ApplicationID, allowed) {
		return false, nil
	}

	newKey := weekKey{applicationID: current.ApplicationID, week: rep.WeekNumber}
	if id, exists := s.byWeek[newKey]; exists && id != rep.ID {
		return false, shared.ErrReportWeekExists
	}
	delete(s.byWeek, weekKey{applicationID: current.ApplicationID, week: current.WeekNumber})

	c := *rep
	c.ApplicationID = current.ApplicationID
	c.CreatedAt = current.CreatedAt
	s.reports[rep.ID] = &c
	s.byWeek[newKey] = rep.ID
	return true, nil
}

// DeleteIfParentIn removes the report when the parent status is allowed.
func (r *ReportRepository) DeleteIfParentIn(ctx context.Context, id string, allowed []application.Status) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, shared.StorageError("report", "Delete", err)
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.reports[id]
	if !ok {
		return false, shared.ErrReportNotFound
	}
	if !s.parentIn(current.ApplicationID, allowed) {
		return false, nil
	}

	delete(s.byWeek, weekKey{applicationID: current.ApplicationID, week: current.WeekNumber})
	delete(s.reports, id)
	return true, nil
}

// ListByApplication returns reports ordered by week descending.
func (r *ReportRepository) ListByApplication(ctx context.Context, applicationID string) ([]*report.ProgressReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("report", "ListByApplication", err)
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*report.ProgressReport
	for _, rep := range s.reports {
		if rep.ApplicationID != applicationID {
			continue
		}
		c := *rep
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].WeekNumber == out[j].WeekNumber {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].WeekNumber > out[j].WeekNumber
	})
	return out, nil
}

// LatestWeek returns the highest reported week, 0 when none.
func (r *ReportRepository) LatestWeek(ctx context.Context, applicationID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, shared.StorageError("report", "LatestWeek", err)
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := 0
	for _, rep := range s.reports {
		if rep.ApplicationID == applicationID && rep.WeekNumber > latest {
			latest = rep.WeekNumber
		}
	}
	return latest, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

// Directory implements program.Directory and allows seeding.
type Directory struct {
	store *Store
}

// PutProgram inserts or replaces a program.
func (d *Directory) PutProgram(p *program.Program) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	c := *p
	d.store.programs[p.ID] = &c
}

// PutUser inserts or replaces a user profile.
func (d *Directory) PutUser(u *program.User) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	c := *u
	d.store.users[u.ID] = &c
}

// GetProgram returns a program by id.
func (d *Directory) GetProgram(ctx context.Context, id string) (*program.Program, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("program", "GetProgram", err)
	}

	d.store.mu.RLock()
	defer d.store.mu.RUnlock()

	p, ok := d.store.programs[id]
	if !ok {
		return nil, shared.ErrProgramNotFound
	}
	c := *p
	return &c, nil
}

// GetUsers returns the profiles that exist among ids.
func (d *Directory) GetUsers(ctx context.Context, ids []string) (map[string]*program.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("program", "GetUsers", err)
	}

	d.store.mu.RLock()
	defer d.store.mu.RUnlock()

	out := make(map[string]*program.User, len(ids))
	for _, id := range ids {
		if u, ok := d.store.users[id]; ok {
			c := *u
			out[id] = &c
		}
	}
	return out, nil
}

// UpsertProgram is the context-aware form of PutProgram used by seeding.
func (d *Directory) UpsertProgram(ctx context.Context, p *program.Program) error {
	if err := ctx.Err(); err != nil {
		return shared.StorageError("program", "UpsertProgram", err)
	}
	d.PutProgram(p)
	return nil
}

// UpsertUser is the context-aware form of PutUser used by seeding.
func (d *Directory) UpsertUser(ctx context.Context, u *program.User) error {
	if err := ctx.Err(); err != nil {
		return shared.StorageError("program", "UpsertUser", err)
	}
	d.PutUser(u)
	return nil
}
