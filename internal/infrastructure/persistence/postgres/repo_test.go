package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/report"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATEMENT RECORDER
// ══════════════════════════════════════════════════════════════════════════════

type statement struct {
	sql  string
	args []any
}

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

// recorder is a DB that answers Exec with queued command tags and QueryRow
// with queued rows, in call order.
type recorder struct {
	calls []statement
	tags  []string
	errs  []error
	rows  []rowFunc
}

func (r *recorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.calls = append(r.calls, statement{sql: sql, args: args})
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	tag := r.tags[0]
	r.tags = r.tags[1:]
	return pgconn.NewCommandTag(tag), nil
}

func (r *recorder) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	r.calls = append(r.calls, statement{sql: sql, args: args})
	return nil, errors.New("recorder: Query not supported")
}

func (r *recorder) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	r.calls = append(r.calls, statement{sql: sql, args: args})
	if len(r.rows) == 0 {
		return rowFunc(func(...any) error { return pgx.ErrNoRows })
	}
	row := r.rows[0]
	r.rows = r.rows[1:]
	return row
}

func existsRow(v bool) rowFunc {
	return func(dest ...any) error {
		*dest[0].(*bool) = v
		return nil
	}
}

func applicationRow(id string, status application.Status) rowFunc {
	return func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*string) = "applicant-1"
		*dest[2].(*string) = "program-1"
		*dest[3].(*string) = string(status)
		*dest[4].(*string) = "hello"
		return nil
	}
}

var (
	appID    = "7f1c2a9e-3b7d-4c59-9a0e-1f6d2b8c4e11"
	reportID = "0b9e4d6a-5c1f-4a3e-8d27-6e9f1a2b3c44"
	approved = []application.Status{application.StatusApproved}
)

func newReport() *report.ProgressReport {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return &report.ProgressReport{
		ID: reportID, ApplicationID: appID, WeekNumber: 2,
		ReportText: "Carded the wool", ImageURL: "https://img.example/w2.jpg",
		CreatedAt: now, UpdatedAt: now,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONDITIONAL WRITES
// ══════════════════════════════════════════════════════════════════════════════

func TestTransitionStatusIsOneConditionalUpdate(t *testing.T) {
	at := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		rows        []rowFunc
		wantOK      bool
		wantErr     error
		wantStatus  application.Status
		wantQueries int
	}{
		{
			name:        "row matched",
			rows:        []rowFunc{applicationRow(appID, application.StatusApproved)},
			wantOK:      true,
			wantStatus:  application.StatusApproved,
			wantQueries: 1,
		},
		{
			name:        "status already moved",
			rows:        []rowFunc{func(...any) error { return pgx.ErrNoRows }, applicationRow(appID, application.StatusRejected)},
			wantStatus:  application.StatusRejected,
			wantQueries: 2,
		},
		{
			name:        "unknown id",
			wantErr:     shared.ErrApplicationNotFound,
			wantQueries: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &recorder{rows: tt.rows}
			app, ok, err := NewApplicationRepository(db).TransitionStatus(context.Background(), appID,
				application.StatusPending, application.StatusApproved, at)

			require.Len(t, db.calls, tt.wantQueries)
			first := db.calls[0]
			assert.Contains(t, first.sql, "UPDATE applications a SET")
			assert.Contains(t, first.sql, "WHERE a.id = $1 AND a.status = $2")
			assert.Contains(t, first.sql, "RETURNING")
			assert.Equal(t, []any{appID, "PENDING", "APPROVED", at}, first.args)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, app.Status)
		})
	}
}

func TestCreateReportGuardsParentStatusInSameStatement(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		err     error
		wantOK  bool
		wantErr error
	}{
		{name: "parent approved", tag: "INSERT 0 1", wantOK: true},
		{name: "parent not approved", tag: "INSERT 0 0"},
		{name: "week taken", err: &pgconn.PgError{Code: "23505"}, wantErr: shared.ErrReportWeekExists},
		{name: "check constraint", err: &pgconn.PgError{Code: "23514"}, wantErr: shared.ErrValidation},
		{name: "driver failure", err: errors.New("conn reset"), wantErr: shared.ErrStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &recorder{tags: []string{tt.tag}, errs: []error{tt.err}}
			ok, err := NewReportRepository(db).CreateIfParentIn(context.Background(), newReport(), approved)

			require.Len(t, db.calls, 1)
			stmt := db.calls[0]
			assert.Contains(t, stmt.sql, "INSERT INTO progress_reports")
			assert.Contains(t, stmt.sql, "WHERE a.id = $2 AND a.status = ANY($7::varchar[])")
			assert.Contains(t, stmt.sql, "FOR SHARE")
			require.Len(t, stmt.args, 7)
			assert.Equal(t, appID, stmt.args[1])
			assert.Equal(t, []string{"APPROVED"}, stmt.args[6])

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateReportRefusalVersusMissing(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		rows    []rowFunc
		wantOK  bool
		wantErr error
	}{
		{name: "updated", tag: "UPDATE 1", wantOK: true},
		{name: "parent frozen", tag: "UPDATE 0", rows: []rowFunc{existsRow(true)}},
		{name: "report missing", tag: "UPDATE 0", rows: []rowFunc{existsRow(false)}, wantErr: shared.ErrReportNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &recorder{tags: []string{tt.tag}, rows: tt.rows}
			ok, err := NewReportRepository(db).UpdateIfParentIn(context.Background(), newReport(), approved)

			stmt := db.calls[0]
			assert.Contains(t, stmt.sql, "pr.id = $1 AND a.status = ANY($5::varchar[])")
			assert.Contains(t, stmt.sql, "FOR SHARE OF a")
			assert.Contains(t, stmt.sql, "application_id IN (SELECT id FROM parent)")
			assert.Equal(t, []string{"APPROVED"}, stmt.args[4])

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeleteReportGuardsParentStatus(t *testing.T) {
	db := &recorder{tags: []string{"DELETE 0"}, rows: []rowFunc{existsRow(true)}}
	ok, err := NewReportRepository(db).DeleteIfParentIn(context.Background(), reportID,
		[]application.Status{application.StatusApproved, application.StatusCompleted})

	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, db.calls, 2)
	assert.Contains(t, db.calls[0].sql, "DELETE FROM progress_reports")
	assert.Contains(t, db.calls[0].sql, "a.status = ANY($2::varchar[])")
	assert.Equal(t, []any{reportID, []string{"APPROVED", "COMPLETED"}}, db.calls[0].args)
}

func TestMalformedIDsSkipTheDatabase(t *testing.T) {
	db := &recorder{}
	ctx := context.Background()

	_, err := NewReportRepository(db).DeleteIfParentIn(ctx, "not-a-uuid", approved)
	assert.ErrorIs(t, err, shared.ErrReportNotFound)
	_, err = NewApplicationRepository(db).GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, shared.ErrApplicationNotFound)
	assert.Empty(t, db.calls)
}

func TestPoolPressure(t *testing.T) {
	assert.NoError(t, poolPressure(3, 10))
	assert.NoError(t, poolPressure(0, 0))
	assert.ErrorIs(t, poolPressure(10, 10), ErrPoolExhausted)
}

func TestOpenRejectsMalformedURL(t *testing.T) {
	_, err := Open(context.Background(), "postgres://user:pa ss@host:notaport/db", PoolOptions{})
	assert.ErrorIs(t, err, ErrInvalidURL)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIVE DATABASE (POSTGRES_TEST_URL)
// ══════════════════════════════════════════════════════════════════════════════

func openTestDB(t *testing.T) *Connection {
	t.Helper()
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := Open(ctx, url, PoolOptions{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	_, err = NewMigrator(conn).Migrate(ctx)
	require.NoError(t, err)
	n, err := NewMigrator(conn).Migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second run applies nothing")
	return conn
}

func TestLiveConditionalWrites(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	dir := NewProgramRepository(conn)
	require.NoError(t, dir.UpsertUser(ctx, &program.User{ID: "artisan-" + suffix, Role: "ARTISAN", DisplayName: "Aigerim"}))
	require.NoError(t, dir.UpsertProgram(ctx, &program.Program{ID: "program-" + suffix, ArtisanID: "artisan-" + suffix, Title: "Felt making", IsOpen: true}))

	apps := NewApplicationRepository(conn)
	now := time.Now().UTC().Truncate(time.Microsecond)
	app := &application.Application{
		ID: uuid.NewString(), ApplicantID: "applicant-" + suffix, ProgramID: "program-" + suffix,
		Status: application.StatusPending, Message: "I would like to learn", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, apps.Create(ctx, app))
	assert.ErrorIs(t, apps.Create(ctx, &application.Application{
		ID: uuid.NewString(), ApplicantID: app.ApplicantID, ProgramID: app.ProgramID,
		Status: application.StatusPending, Message: "again", CreatedAt: now, UpdatedAt: now,
	}), shared.ErrApplicationAlreadyExists)

	reports := NewReportRepository(conn)
	rep := &report.ProgressReport{
		ID: uuid.NewString(), ApplicationID: app.ID, WeekNumber: 1,
		ReportText: "Week one", ImageURL: "https://img.example/1.jpg", CreatedAt: now, UpdatedAt: now,
	}
	ok, err := reports.CreateIfParentIn(ctx, rep, approved)
	require.NoError(t, err)
	assert.False(t, ok, "pending parent refuses reports")

	// Concurrent decisions: exactly one wins.
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := apps.TransitionStatus(ctx, app.ID, application.StatusPending, application.StatusApproved, time.Now())
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	current, err := apps.GetByID(ctx, app.ID)
	require.NoError(t, err)
	require.Equal(t, application.StatusApproved, current.Status)
	require.NotNil(t, current.DecidedAt)

	ok, err = reports.CreateIfParentIn(ctx, rep, approved)
	require.NoError(t, err)
	assert.True(t, ok)

	dup := *rep
	dup.ID = uuid.NewString()
	_, err = reports.CreateIfParentIn(ctx, &dup, approved)
	assert.ErrorIs(t, err, shared.ErrReportWeekExists)

	counts, err := apps.CountByStatusForArtisan(ctx, "artisan-"+suffix)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[application.StatusApproved])
	assert.NoError(t, conn.Health(ctx))
}
