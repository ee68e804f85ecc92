package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/identity"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/persistence/memory"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

var (
	artisan      = identity.Principal{UserID: "artisan-1", Role: identity.RoleArtisan}
	otherArtisan = identity.Principal{UserID: "artisan-2", Role: identity.RoleArtisan}
	applicantX   = identity.Principal{UserID: "applicant-x", Role: identity.RoleApplicant}
	applicantY   = identity.Principal{UserID: "applicant-y", Role: identity.RoleApplicant}
)

type fixture struct {
	store     *memory.Store
	publisher *recordingPublisher
	submit    *SubmitApplicationHandler
	decide    *DecideApplicationHandler
	reports   *ReportHandler
}

func newFixture(t *testing.T, policy ReportPolicy) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.Directory().PutProgram(&program.Program{ID: "program-p", ArtisanID: artisan.UserID, Title: "Felt making", IsOpen: true})
	store.Directory().PutProgram(&program.Program{ID: "program-closed", ArtisanID: artisan.UserID, IsOpen: false})

	pub := &recordingPublisher{}
	return &fixture{
		store:     store,
		publisher: pub,
		submit:    NewSubmitApplicationHandler(store.Applications(), store.Directory(), pub),
		decide:    NewDecideApplicationHandler(store.Applications(), store.Directory(), pub),
		reports:   NewReportHandler(store.Applications(), store.Reports(), pub, policy),
	}
}

func (f *fixture) submitted(t *testing.T) *application.Application {
	t.Helper()
	res, err := f.submit.Handle(context.Background(), SubmitApplicationCommand{
		Actor:     applicantX,
		ProgramID: "program-p",
		Message:   "I want to learn felt making",
	})
	require.NoError(t, err)
	return res.Application
}

func (f *fixture) approved(t *testing.T) *application.Application {
	t.Helper()
	app := f.submitted(t)
	_, err := f.decide.Handle(context.Background(), DecideApplicationCommand{
		Actor:         artisan,
		ApplicationID: app.ID,
		Decision:      application.DecisionApprove,
	})
	require.NoError(t, err)
	return app
}

func (f *fixture) createReport(actor identity.Principal, appID string, week int) (*ReportResult, error) {
	return f.reports.Create(context.Background(), CreateReportCommand{
		Actor:         actor,
		ApplicationID: appID,
		WeekNumber:    week,
		ReportText:    "finished the first mat",
		ImageURL:      "https://cdn.example/mat.jpg",
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT
// ══════════════════════════════════════════════════════════════════════════════

func TestSubmit_CreatesPendingWithVerbatimMessage(t *testing.T) {
	f := newFixture(t, ReportPolicy{})

	res, err := f.submit.Handle(context.Background(), SubmitApplicationCommand{
		Actor:      applicantX,
		ProgramID:  "program-p",
		Message:    "  Hello,\nI knit. ",
		Motivation: "family craft",
		CVURL:      "https://cdn.example/cv.pdf",
	})
	require.NoError(t, err)

	app := res.Application
	assert.Equal(t, application.StatusPending, app.Status)
	assert.Equal(t, "  Hello,\nI knit. ", app.Message)
	assert.Equal(t, applicantX.UserID, app.ApplicantID)
	assert.Equal(t, "https://cdn.example/cv.pdf", app.CVURL)

	stored, err := f.store.Applications().GetByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, app.Message, stored.Message)
	assert.Equal(t, []shared.EventType{shared.EventApplicationSubmitted}, f.publisher.types())
}

func TestSubmit_Failures(t *testing.T) {
	f := newFixture(t, ReportPolicy{})
	ctx := context.Background()

	tests := []struct {
		name  string
		cmd   SubmitApplicationCommand
		check func(error) bool
	}{
		{"empty message", SubmitApplicationCommand{Actor: applicantX, ProgramID: "program-p", Message: " "}, shared.IsValidation},
		{"unknown program", SubmitApplicationCommand{Actor: applicantX, ProgramID: "nope", Message: "m"}, shared.IsValidation},
		{"closed program", SubmitApplicationCommand{Actor: applicantX, ProgramID: "program-closed", Message: "m"}, shared.IsValidation},
		{"artisan submits", SubmitApplicationCommand{Actor: artisan, ProgramID: "program-p", Message: "m"}, shared.IsForbidden},
		{"anonymous", SubmitApplicationCommand{ProgramID: "program-p", Message: "m"}, shared.IsUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.submit.Handle(ctx, tt.cmd)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}

func TestSubmit_DuplicateRejected(t *testing.T) {
	f := newFixture(t, ReportPolicy{})
	f.submitted(t)

	_, err := f.submit.Handle(context.Background(), SubmitApplicationCommand{
		Actor:     applicantX,
		ProgramID: "program-p",
		Message:   "again",
	})
	assert.True(t, shared.IsAlreadyExists(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// DECIDE / COMPLETE
// ══════════════════════════════════════════════════════════════════════════════

func TestDecide_ApproveThenSecondDecisionFails(t *testing.T) {
	f := newFixture(t, ReportPolicy{})
	app := f.submitted(t)
	ctx := context.Background()

	res, err := f.decide.Handle(ctx, DecideApplicationCommand{Actor: artisan, ApplicationID: app.ID, Decision: application.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, application.StatusApproved, res.Application.Status)
	assert.NotNil(t, res.Application.DecidedAt)

	for _, d := range []application.Decision{application.DecisionApprove, application.DecisionReject} {
		_, err = f.decide.Handle(ctx, DecideApplicationCommand{Actor: artisan, ApplicationID: app.ID, Decision: d})
		assert.True(t, shared.IsInvalidState(err), d)
	}

	stored, err := f.store.Applications().GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusApproved, stored.Status)
}

func TestDecide_OnRejectedLeavesStatusUnchanged(t *testing.T) {
	f := newFixture(t, ReportPolicy{})
	app := f.submitted(t)
	ctx := context.Background()

	_, err := f.decide.Handle(ctx, DecideApplicationCommand{Actor: artisan, ApplicationID: app.ID, Decision: application.DecisionReject})
	require.NoError(t, err)

	_, err = f.decide.Handle(ctx, DecideApplicationCommand{Actor: artisan, ApplicationID: app.ID, Decision: application.DecisionApprove})
	assert.True(t, shared.IsInvalidState(err))

	stored, err := f.store.Applications().GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusRejected, stored.Status)
}

func TestDecide_OnlyOwningArtisan(t *testing.T) {
	f := newFixture(t, ReportPolicy{})
	app := f.submitted(t)

	for _, actor := range []identity.Principal{otherArtisan, applicantX, applicantY} {
		_, err := f.decide.Handle(context.Background(), DecideApplicationCommand{Actor: actor, ApplicationID: app.ID, Decision: application.DecisionApprove})
		assert.True(t, shared.IsForbidden(err), actor.UserID)
	}

	stored, err := f.store.Applications().GetByID(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusPending, stored.Status)
}

func TestDecide_NotFoundAndInvalidDecision(t *testing.T) {
	f := newFixture(t, ReportPolicy{})

	_, err := f.decide.Handle(context.Background(), DecideApplicationCommand{Actor: artisan, ApplicationID: uuid.NewString(), Decision: application.DecisionApprove})
	assert.True(t, shared.IsNotFound(err))

	_, err = f.decide.Handle(context.Background(), DecideApplicationCommand{Actor: artisan, ApplicationID: uuid.NewString(), Decision: "MAYBE"})
	assert.True(t, shared.IsValidation(err))
}

func TestDecide_ConcurrentExactlyOneWins(t *testing.T) {
	f := newFixture(t, ReportPolicy{})
	app := f.submitted(t)

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		start     = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			d := application.DecisionApprove
			if i%2 == 0 {
				d = application.DecisionReject
			}
			_, err := f.decide.Handle(context.Background(), DecideApplicationCommand{Actor: artisan, ApplicationID: app.ID, Decision: d})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if shared.IsInvalidState(err) {
				conflicts++
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
}

func TestComplete(t *testing.T) {
	f := newFixture(t, ReportPolicy{})
	ctx := context.Background()

	pending := f.submitted(t)
	_, err := f.decide.Complete(ctx, CompleteApplicationCommand{Actor: artisan, ApplicationID: pending.ID})
	assert.True(t, shared.IsInvalidState(err), "PENDING cannot jump to COMPLETED")

	_, err = f.decide.Handle(ctx, DecideApplicationCommand{Actor: artisan, ApplicationID: pending.ID, Decision: application.DecisionApprove})
	require.NoError(t, err)

	_, err = f.decide.Complete(ctx, CompleteApplicationCommand{Actor: otherArtisan, ApplicationID: pending.ID})
	assert.True(t, shared.IsForbidden(err))

	res, err := f.decide.Complete(ctx, CompleteApplicationCommand{Actor: artisan, ApplicationID: pending.ID})
	require.NoError(t, err)
	assert.Equal(t, application.StatusCompleted, res.Application.Status)

	_, err = f.decide.Handle(ctx, DecideApplicationCommand{Actor: artisan, ApplicationID: pending.ID, Decision: application.DecisionReject})
	assert.True(t, shared.IsInvalidState(err))

	assert.Equal(t, []shared.EventType{
		shared.EventApplicationSubmitted,
		shared.EventApplicationDecided,
		shared.EventApplicationCompleted,
	}, f.publisher.types())
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORTS
// ══════════════════════════════════════════════════════════════════════════════

func TestCreateReport_OnApproved(t *testing.T) {
	f := newFixture(t, ReportPolicy{})
	app := f.approved(t)

	res, err := f.createReport(applicantX, app.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.WeekNumber)
	assert.WithinDuration(t, time.Now(), res.Report.CreatedAt, time.Minute)

	list, err := f.store.Reports().ListByApplication(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].WeekNumber)
}

func TestCreateReport_FailsForEveryNonApprovedStatus(t *testing.T) {
	ctx := context.Background()

	setups := map[application.Status]func(f *fixture) *application.Application{
		application.StatusPending: func(f *fixture) *application.Application { return f.submitted(t) },
		application.StatusRejected: func(f *fixture) *application.Application {
			app := f.submitted(t)
			_, err := f.decide.Handle(ctx, DecideApplicationCommand{Actor: artisan, ApplicationID: app.ID, Decision: application.DecisionReject})
			require.NoError(t, err)
			return app
		},
		application.StatusCompleted: func(f *fixture) *application.Application {
			app := f.approved(t)
			_, err := f.decide.Complete(ctx, CompleteApplicationCommand{Actor: artisan, ApplicationID: app.ID})
			require.NoError(t, err)
			return app
		},
	}

	for status, setup := range setups {
		t.Run(status.String(), func(t *testing.T) {
			f := newFixture(t, ReportPolicy{EditableAfterCompletion: true})
			app := setup(f)

			_, err := f.createReport(applicantX, app.ID, 1)
			assert.True(t, shared.IsInvalidState(err))

			list, err := f.store.Reports().ListByApplication(ctx, app.ID)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestCreateReport_CrossApplicantForbidden(t *testing.T) {
	f := newFixture(t, ReportPolicy{})
	app := f.approved(t)

	_, err := f.createReport(applicantY, app.ID, 1)
	assert.True(t, shared.IsForbidden(err))

	_, err = f.createReport(artisan, app.ID, 1)
	assert.True(t, shared.IsForbidden(err))

	list, err := f.store.Reports().ListByApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateReport_ValidationAndDuplicateWeek(t *testing.T) {
	f := newFixture(t, ReportPolicy{})
	app := f.approved(t)
	ctx := context.Background()

	_, err := f.reports.Create(ctx, CreateReportCommand{Actor: applicantX, ApplicationID: app.ID, WeekNumber: 1, ReportText: "", ImageURL: "https://x"})
	assert.True(t, shared.IsValidation(err))

	_, err = f.reports.Create(ctx, CreateReportCommand{Actor: applicantX, ApplicationID: app.ID, WeekNumber: 1, ReportText: "t"})
	assert.True(t, shared.IsValidation(err))

	_, err = f.reports.Create(ctx, CreateReportCommand{Actor: applicantX, ApplicationID: app.ID, WeekNumber: 0, ReportText: "t", ImageURL: "https://x"})
	assert.True(t, shared.IsValidation(err))

	_, err = f.createReport(applicantX, app.ID, 2)
	require.NoError(t, err)
	_, err = f.createReport(applicantX, app.ID, 2)
	assert.True(t, shared.IsAlreadyExists(err))
}

func TestUpdateAndDeleteReport(t *testing.T) {
	f := newFixture(t, ReportPolicy{})
	app := f.approved(t)
	ctx := context.Background()

	created, err := f.createReport(applicantX, app.ID, 1)
	require.NoError(t, err)
	id := created.Report.ID

	_, err = f.reports.Update(ctx, UpdateReportCommand{Actor: applicantY, ReportID: id, WeekNumber: 1, ReportText: "hijack", ImageURL: "https://x"})
	assert.True(t, shared.IsForbidden(err))

	res, err := f.reports.Update(ctx, UpdateReportCommand{Actor: applicantX, ReportID: id, WeekNumber: 2, ReportText: "better text", ImageURL: "https://cdn/2.jpg"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Report.WeekNumber)

	stored, err := f.store.Reports().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "better text", stored.ReportText)

	err = f.reports.Delete(ctx, DeleteReportCommand{Actor: applicantY, ReportID: id})
	assert.True(t, shared.IsForbidden(err))

	require.NoError(t, f.reports.Delete(ctx, DeleteReportCommand{Actor: applicantX, ReportID: id}))
	_, err = f.store.Reports().GetByID(ctx, id)
	assert.True(t, shared.IsNotFound(err))

	err = f.reports.Delete(ctx, DeleteReportCommand{Actor: applicantX, ReportID: id})
	assert.True(t, shared.IsNotFound(err))
}

func TestReportsFrozenAfterCompletionByDefault(t *testing.T) {
	ctx := context.Background()

	for _, editable := range []bool{false, true} {
		f := newFixture(t, ReportPolicy{EditableAfterCompletion: editable})
		app := f.approved(t)
		created, err := f.createReport(applicantX, app.ID, 1)
		require.NoError(t, err)

		_, err = f.decide.Complete(ctx, CompleteApplicationCommand{Actor: artisan, ApplicationID: app.ID})
		require.NoError(t, err)

		_, err = f.reports.Update(ctx, UpdateReportCommand{Actor: applicantX, ReportID: created.Report.ID, WeekNumber: 1, ReportText: "late edit", ImageURL: "https://x"})
		if editable {
			assert.NoError(t, err)
		} else {
			assert.True(t, shared.IsInvalidState(err))
		}
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(shared.Event) error { return errors.New("bus closed") }

func TestSubmit_PublishFailureIsLoggedNotReturned(t *testing.T) {
	store := memory.NewStore()
	store.Directory().PutProgram(&program.Program{ID: "program-p", ArtisanID: artisan.UserID, IsOpen: true})
	h := NewSubmitApplicationHandler(store.Applications(), store.Directory(), failingPublisher{})

	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.New(logger.Options{Output: &buf, Level: logger.LevelWarn}))

	res, err := h.Handle(ctx, SubmitApplicationCommand{Actor: applicantX, ProgramID: "program-p", Message: "hello"})
	require.NoError(t, err, "a committed application must not fail on delivery")

	var entry logger.Entry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "event publish failed", entry.Message)
	assert.Equal(t, string(shared.EventApplicationSubmitted), entry.Fields["event_type"])
	assert.Equal(t, res.Application.ID, entry.Fields["aggregate_id"])
	assert.Equal(t, "bus closed", entry.Fields["error"])
}

func TestDecide_LogsOutcomeWithApplicationFields(t *testing.T) {
	f := newFixture(t, ReportPolicy{})
	app := f.submitted(t)

	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.New(logger.Options{Output: &buf, Level: logger.LevelInfo}))

	_, err := f.decide.Handle(ctx, DecideApplicationCommand{Actor: artisan, ApplicationID: app.ID, Decision: application.DecisionReject})
	require.NoError(t, err)

	var entry logger.Entry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "application decided", entry.Message)
	assert.Equal(t, app.ID, entry.Fields["application_id"])
	assert.Equal(t, "program-p", entry.Fields["program_id"])
	assert.Equal(t, "REJECTED", entry.Fields["status"])
}
