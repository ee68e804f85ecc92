// Package command contains write operations (CQRS - Commands).
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
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT APPLICATION COMMAND
// An applicant asks to join an open program. The application starts PENDING.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitApplicationCommand contains the data to submit an application.
type SubmitApplicationCommand struct {
	// Actor is the authenticated principal submitting the application.
	Actor identity.Principal

	// ProgramID is the target program.
	ProgramID string

	// Message is required free text, stored verbatim.
	Message string

	// Motivation is optional free text.
	Motivation string

	// CVURL is an optional link produced by the upload service.
	CVURL string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SubmitApplicationCommand) Validate() error {
	if err := c.Actor.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ProgramID) == "" {
		return shared.NewDomainError("application", "Submit", shared.ErrEmptyValue, "program_id is required")
	}
	if strings.TrimSpace(c.Message) == "" {
		return shared.ErrEmptyMessage
	}
	return nil
}

// SubmitApplicationResult contains the created application.
type SubmitApplicationResult struct {
	Application *application.Application
	Events      []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitApplicationHandler handles the SubmitApplicationCommand.
type SubmitApplicationHandler struct {
	appRepo        application.Repository
	directory      program.Directory
	eventPublisher shared.EventPublisher
}

// NewSubmitApplicationHandler creates a new SubmitApplicationHandler.
func NewSubmitApplicationHandler(
	appRepo application.Repository,
	directory program.Directory,
	eventPublisher shared.EventPublisher,
) *SubmitApplicationHandler {
	return &SubmitApplicationHandler{
		appRepo:        appRepo,
		directory:      directory,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the submit application command.
func (h *SubmitApplicationHandler) Handle(ctx context.Context, cmd SubmitApplicationCommand) (*SubmitApplicationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if !authz.CanSubmitApplication(cmd.Actor) {
		return nil, shared.ErrNotApplicant
	}

	prog, err := h.directory.GetProgram(ctx, cmd.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("submit_application: %w", err)
	}
	if !prog.AcceptsApplications() {
		return nil, shared.ErrProgramClosed
	}

	app, err := application.NewApplication(application.NewApplicationParams{
		ID:          uuid.NewString(),
		ApplicantID: cmd.Actor.UserID,
		ProgramID:   prog.ID,
		Message:     cmd.Message,
		Motivation:  cmd.Motivation,
		CVURL:       cmd.CVURL,
		Now:         time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if err := h.appRepo.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("submit_application: %w", err)
	}

	logger.FromContext(ctx).Info("application submitted",
		logger.ApplicationID(app.ID), logger.ProgramID(prog.ID), logger.ActorID(app.ApplicantID))

	event := shared.NewApplicationSubmittedEvent(app.ID, app.ApplicantID, prog.ID, prog.ArtisanID)
	event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	publish(ctx, h.eventPublisher, event)

	return &SubmitApplicationResult{
		Application: app,
		Events:      []shared.Event{event},
	}, nil
}

// publish sends events without failing the command: the write is already
// committed. A failed publish is logged with the request's logger.
func publish(ctx context.Context, p shared.EventPublisher, events ...shared.Event) {
	if p == nil {
		return
	}
	for _, e := range events {
		if err := p.Publish(e); err != nil {
			logger.FromContext(ctx).Warn("event publish failed",
				logger.EventType(string(e.EventType())),
				logger.String("aggregate_id", e.AggregateID()),
				logger.Err(err),
			)
		}
	}
}
