package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/authz"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/identity"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/report"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPORT COMMANDS
// Reports are created only under an APPROVED application by its applicant.
// Edits and deletes follow ReportPolicy. Every write is conditional on the
// parent status inside the repository.
// ══════════════════════════════════════════════════════════════════════════════

// ReportPolicy configures which parent statuses allow edits.
type ReportPolicy struct {
	// EditableAfterCompletion keeps reports mutable once the mentorship is COMPLETED.
	EditableAfterCompletion bool
}

// CreateReportCommand contains the data to create a progress report.
type CreateReportCommand struct {
	Actor         identity.Principal
	ApplicationID string
	WeekNumber    int
	ReportText    string
	ImageURL      string
	CorrelationID string
}

// Validate validates the command.
func (c CreateReportCommand) Validate() error {
	if err := c.Actor.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ApplicationID) == "" {
		return shared.NewDomainError("report", "Create", shared.ErrEmptyValue, "application_id is required")
	}
	return c.content().Validate()
}

func (c CreateReportCommand) content() report.Content {
	return report.Content{WeekNumber: c.WeekNumber, ReportText: c.ReportText, ImageURL: c.ImageURL}
}

// UpdateReportCommand contains the data to replace a report's content.
type UpdateReportCommand struct {
	Actor         identity.Principal
	ReportID      string
	WeekNumber    int
	ReportText    string
	ImageURL      string
	CorrelationID string
}

// Validate validates the command.
func (c UpdateReportCommand) Validate() error {
	if err := c.Actor.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ReportID) == "" {
		return shared.NewDomainError("report", "Update", shared.ErrEmptyValue, "report_id is required")
	}
	return c.content().Validate()
}

func (c UpdateReportCommand) content() report.Content {
	return report.Content{WeekNumber: c.WeekNumber, ReportText: c.ReportText, ImageURL: c.ImageURL}
}

// DeleteReportCommand identifies a report to delete.
type DeleteReportCommand struct {
	Actor         identity.Principal
	ReportID      string
	CorrelationID string
}

// Validate validates the command.
func (c DeleteReportCommand) Validate() error {
	if err := c.Actor.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ReportID) == "" {
		return shared.NewDomainError("report", "Delete", shared.ErrEmptyValue, "report_id is required")
	}
	return nil
}

// ReportResult contains the report after a write.
type ReportResult struct {
	Report *report.ProgressReport
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ReportHandler handles the progress report commands.
type ReportHandler struct {
	appRepo        application.Repository
	reportRepo     report.Repository
	eventPublisher shared.EventPublisher
	policy         ReportPolicy
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(
	appRepo application.Repository,
	reportRepo report.Repository,
	eventPublisher shared.EventPublisher,
	policy ReportPolicy,
) *ReportHandler {
	return &ReportHandler{
		appRepo:        appRepo,
		reportRepo:     reportRepo,
		eventPublisher: eventPublisher,
		policy:         policy,
	}
}

// Create executes the create report command.
func (h *ReportHandler) Create(ctx context.Context, cmd CreateReportCommand) (*ReportResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	app, err := h.appRepo.GetByID(ctx, cmd.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("create_report: %w", err)
	}
	if !authz.CanManageReport(cmd.Actor, app) {
		return nil, shared.ErrNotReportOwner
	}

	rep, err := report.NewProgressReport(uuid.NewString(), app.ID, cmd.content(), time.Now().UTC())
	if err != nil {
		return nil, err
	}

	// The status read above is advisory; the insert re-checks it atomically.
	ok, err := h.reportRepo.CreateIfParentIn(ctx, rep, report.CreatableStatuses())
	if err != nil {
		return nil, fmt.Errorf("create_report: %w", err)
	}
	if !ok {
		return nil, shared.ErrReportParentNotActive
	}

	logger.FromContext(ctx).Info("report created",
		logger.ApplicationID(app.ID), logger.ReportID(rep.ID), logger.Int("week", rep.WeekNumber))

	event := shared.NewReportEvent(shared.EventReportCreated, app.ID, rep.ID, app.ApplicantID, rep.WeekNumber)
	event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	publish(ctx, h.eventPublisher, event)

	return &ReportResult{Report: rep, Events: []shared.Event{event}}, nil
}

// Update executes the update report command.
func (h *ReportHandler) Update(ctx context.Context, cmd UpdateReportCommand) (*ReportResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	rep, app, err := h.loadOwned(ctx, cmd.Actor, cmd.ReportID)
	if err != nil {
		return nil, fmt.Errorf("update_report: %w", err)
	}

	rep.Apply(cmd.content(), time.Now().UTC())
	ok, err := h.reportRepo.UpdateIfParentIn(ctx, rep, report.EditableStatuses(h.policy.EditableAfterCompletion))
	if err != nil {
		return nil, fmt.Errorf("update_report: %w", err)
	}
	if !ok {
		return nil, shared.ErrReportFrozen
	}

	event := shared.NewReportEvent(shared.EventReportUpdated, app.ID, rep.ID, app.ApplicantID, rep.WeekNumber)
	event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	publish(ctx, h.eventPublisher, event)

	return &ReportResult{Report: rep, Events: []shared.Event{event}}, nil
}

// Delete executes the delete report command. Deletion is irreversible.
func (h *ReportHandler) Delete(ctx context.Context, cmd DeleteReportCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	rep, app, err := h.loadOwned(ctx, cmd.Actor, cmd.ReportID)
	if err != nil {
		return fmt.Errorf("delete_report: %w", err)
	}

	ok, err := h.reportRepo.DeleteIfParentIn(ctx, rep.ID, report.EditableStatuses(h.policy.EditableAfterCompletion))
	if err != nil {
		return fmt.Errorf("delete_report: %w", err)
	}
	if !ok {
		return shared.ErrReportFrozen
	}

	logger.FromContext(ctx).Info("report deleted", logger.ApplicationID(app.ID), logger.ReportID(rep.ID))

	event := shared.NewReportEvent(shared.EventReportDeleted, app.ID, rep.ID, app.ApplicantID, rep.WeekNumber)
	event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	publish(ctx, h.eventPublisher, event)
	return nil
}

// loadOwned loads the report and its parent and checks ownership.
func (h *ReportHandler) loadOwned(ctx context.Context, actor identity.Principal, reportID string) (*report.ProgressReport, *application.Application, error) {
	rep, err := h.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		return nil, nil, err
	}
	app, err := h.appRepo.GetByID(ctx, rep.ApplicationID)
	if err != nil {
		return nil, nil, err
	}
	if !authz.CanManageReport(actor, app) {
		return nil, nil, shared.ErrNotReportOwner
	}
	return rep, app, nil
}
