package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/report"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

func seed(t *testing.T) (*Store, *application.Application) {
	t.Helper()
	s := NewStore()
	s.Directory().PutProgram(&program.Program{ID: "program-1", ArtisanID: "artisan-1", IsOpen: true})

	app, err := application.NewApplication(application.NewApplicationParams{
		ID:          uuid.NewString(),
		ApplicantID: "applicant-1",
		ProgramID:   "program-1",
		Message:     "hello",
	})
	require.NoError(t, err)
	require.NoError(t, s.Applications().Create(context.Background(), app))
	return s, app
}

func TestApplicationRepository_UniquePair(t *testing.T) {
	s, app := seed(t)

	dup := app.Clone()
	dup.ID = uuid.NewString()
	err := s.Applications().Create(context.Background(), dup)
	assert.True(t, shared.IsAlreadyExists(err))
}

func TestApplicationRepository_TransitionIsConditional(t *testing.T) {
	s, app := seed(t)
	ctx := context.Background()
	repo := s.Applications()

	updated, ok, err := repo.TransitionStatus(ctx, app.ID, application.StatusPending, application.StatusApproved, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, application.StatusApproved, updated.Status)

	current, ok, err := repo.TransitionStatus(ctx, app.ID, application.StatusPending, application.StatusRejected, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, application.StatusApproved, current.Status)

	_, _, err = repo.TransitionStatus(ctx, uuid.NewString(), application.StatusPending, application.StatusApproved, time.Now())
	assert.True(t, shared.IsNotFound(err))
}

func TestApplicationRepository_ConcurrentTransition(t *testing.T) {
	s, app := seed(t)
	repo := s.Applications()

	const workers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		start = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			to := application.StatusApproved
			if i%2 == 1 {
				to = application.StatusRejected
			}
			_, ok, err := repo.TransitionStatus(context.Background(), app.ID, application.StatusPending, to, time.Now())
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestApplicationRepository_ListOrderAndCounts(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	s.Directory().PutProgram(&program.Program{ID: "p1", ArtisanID: "artisan-1"})
	s.Directory().PutProgram(&program.Program{ID: "p2", ArtisanID: "artisan-1"})
	s.Directory().PutProgram(&program.Program{ID: "p3", ArtisanID: "artisan-2"})

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i, pid := range []string{"p1", "p2", "p3"} {
		app, err := application.NewApplication(application.NewApplicationParams{
			ID:          uuid.NewString(),
			ApplicantID: "applicant-1",
			ProgramID:   pid,
			Message:     "m",
			Now:         base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		require.NoError(t, s.Applications().Create(ctx, app))
		ids = append(ids, app.ID)
	}

	mine, err := s.Applications().ListByApplicant(ctx, "applicant-1", application.ListOptions{})
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, ids[2], mine[0].ID)
	assert.Equal(t, ids[0], mine[2].ID)

	artisan, err := s.Applications().ListByArtisan(ctx, "artisan-1", application.ListOptions{})
	require.NoError(t, err)
	require.Len(t, artisan, 2)
	assert.Equal(t, ids[1], artisan[0].ID)

	_, _, err = s.Applications().TransitionStatus(ctx, ids[0], application.StatusPending, application.StatusRejected, time.Now())
	require.NoError(t, err)

	counts, err := s.Applications().CountByStatusForArtisan(ctx, "artisan-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[application.StatusPending])
	assert.Equal(t, 1, counts[application.StatusRejected])

	rejected, err := s.Applications().ListByArtisan(ctx, "artisan-1", application.ListOptions{}.WithStatus(application.StatusRejected))
	require.NoError(t, err)
	assert.Len(t, rejected, 1)
}

func newReport(t *testing.T, appID string, week int) *report.ProgressReport {
	t.Helper()
	r, err := report.NewProgressReport(uuid.NewString(), appID, report.Content{
		WeekNumber: week,
		ReportText: "week work",
		ImageURL:   "https://cdn/img.jpg",
	}, time.Now())
	require.NoError(t, err)
	return r
}

func TestReportRepository_CreateGatedOnParent(t *testing.T) {
	s, app := seed(t)
	ctx := context.Background()
	reports := s.Reports()

	ok, err := reports.CreateIfParentIn(ctx, newReport(t, app.ID, 1), report.CreatableStatuses())
	require.NoError(t, err)
	assert.False(t, ok, "pending parent must not accept reports")

	_, _, err = s.Applications().TransitionStatus(ctx, app.ID, application.StatusPending, application.StatusApproved, time.Now())
	require.NoError(t, err)

	ok, err = reports.CreateIfParentIn(ctx, newReport(t, app.ID, 1), report.CreatableStatuses())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = reports.CreateIfParentIn(ctx, newReport(t, app.ID, 1), report.CreatableStatuses())
	assert.True(t, shared.IsAlreadyExists(err))

	ok, err = reports.CreateIfParentIn(ctx, newReport(t, app.ID, 4), report.CreatableStatuses())
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := reports.ListByApplication(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 4, list[0].WeekNumber)
	assert.Equal(t, 1, list[1].WeekNumber)

	latest, err := reports.LatestWeek(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, latest)
}

func TestReportRepository_UpdateAndDelete(t *testing.T) {
	s, app := seed(t)
	ctx := context.Background()
	reports := s.Reports()

	_, _, err := s.Applications().TransitionStatus(ctx, app.ID, application.StatusPending, application.StatusApproved, time.Now())
	require.NoError(t, err)

	r1 := newReport(t, app.ID, 1)
	r2 := newReport(t, app.ID, 2)
	for _, r := range []*report.ProgressReport{r1, r2} {
		_, err := reports.CreateIfParentIn(ctx, r, report.CreatableStatuses())
		require.NoError(t, err)
	}

	moved := *r1
	moved.WeekNumber = 2
	_, err = reports.UpdateIfParentIn(ctx, &moved, report.EditableStatuses(false))
	assert.True(t, shared.IsAlreadyExists(err))

	moved.WeekNumber = 3
	moved.ReportText = "rewritten"
	ok, err := reports.UpdateIfParentIn(ctx, &moved, report.EditableStatuses(false))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := reports.GetByID(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.WeekNumber)
	assert.Equal(t, "rewritten", got.ReportText)

	_, _, err = s.Applications().TransitionStatus(ctx, app.ID, application.StatusApproved, application.StatusCompleted, time.Now())
	require.NoError(t, err)

	ok, err = reports.DeleteIfParentIn(ctx, r2.ID, report.EditableStatuses(false))
	require.NoError(t, err)
	assert.False(t, ok, "completed parent freezes reports")

	ok, err = reports.DeleteIfParentIn(ctx, r2.ID, report.EditableStatuses(true))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = reports.GetByID(ctx, r2.ID)
	assert.True(t, shared.IsNotFound(err))
}

func TestDirectory_GetUsersSkipsMissing(t *testing.T) {
	s := NewStore()
	s.Directory().PutUser(&program.User{ID: "u1", DisplayName: "Aigerim"})

	users, err := s.Directory().GetUsers(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, "Aigerim", users["u1"].DisplayName)

	_, err = s.Directory().GetProgram(context.Background(), "nope")
	assert.True(t, shared.IsValidation(err))
}
