package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/authz"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/identity"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DECIDE APPLICATION COMMAND
// The artisan owning the program approves or rejects a PENDING application.
// The transition is a single conditional write; a second decision never
// overwrites the first.
// ══════════════════════════════════════════════════════════════════════════════

// DecideApplicationCommand contains the data to decide on an application.
type DecideApplicationCommand struct {
	Actor         identity.Principal
	ApplicationID string
	Decision      application.Decision
	CorrelationID string
}

// Validate validates the command.
func (c DecideApplicationCommand) Validate() error {
	if err := c.Actor.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ApplicationID) == "" {
		return shared.NewDomainError("application", "Decide", shared.ErrEmptyValue, "application_id is required")
	}
	if _, ok := c.Decision.Target(); !ok {
		return shared.ErrInvalidDecision
	}
	return nil
}

// TransitionResult contains the application after a status transition.
type TransitionResult struct {
	Application *application.Application
	Events      []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// DecideApplicationHandler handles DecideApplicationCommand and CompleteApplicationCommand.
type DecideApplicationHandler struct {
	appRepo        application.Repository
	directory      program.Directory
	eventPublisher shared.EventPublisher
}

// NewDecideApplicationHandler creates a new DecideApplicationHandler.
func NewDecideApplicationHandler(
	appRepo application.Repository,
	directory program.Directory,
	eventPublisher shared.EventPublisher,
) *DecideApplicationHandler {
	return &DecideApplicationHandler{
		appRepo:        appRepo,
		directory:      directory,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the decide application command.
func (h *DecideApplicationHandler) Handle(ctx context.Context, cmd DecideApplicationCommand) (*TransitionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	target, _ := cmd.Decision.Target()

	app, prog, err := h.loadOwned(ctx, cmd.Actor, cmd.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("decide_application: %w", err)
	}

	updated, ok, err := h.appRepo.TransitionStatus(ctx, app.ID, application.StatusPending, target, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("decide_application: %w", err)
	}
	if !ok {
		return nil, shared.WrapError("application", "Decide", shared.ErrInvalidState,
			"application is "+statusOf(updated, app).String(), shared.ErrApplicationNotPending)
	}

	logger.FromContext(ctx).Info("application decided",
		logger.ApplicationID(updated.ID), logger.ProgramID(prog.ID), logger.Status(updated.Status.String()))

	event := shared.NewApplicationDecidedEvent(updated.ID, prog.ArtisanID, updated.ApplicantID, prog.ID, updated.Status.String())
	event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	publish(ctx, h.eventPublisher, event)

	return &TransitionResult{Application: updated, Events: []shared.Event{event}}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE APPLICATION COMMAND
// The artisan concludes an APPROVED mentorship. COMPLETED is terminal.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteApplicationCommand contains the data to complete a mentorship.
type CompleteApplicationCommand struct {
	Actor         identity.Principal
	ApplicationID string
	CorrelationID string
}

// Validate validates the command.
func (c CompleteApplicationCommand) Validate() error {
	if err := c.Actor.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.ApplicationID) == "" {
		return shared.NewDomainError("application", "Complete", shared.ErrEmptyValue, "application_id is required")
	}
	return nil
}

// Complete executes the complete application command.
func (h *DecideApplicationHandler) Complete(ctx context.Context, cmd CompleteApplicationCommand) (*TransitionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	app, prog, err := h.loadOwned(ctx, cmd.Actor, cmd.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("complete_application: %w", err)
	}

	updated, ok, err := h.appRepo.TransitionStatus(ctx, app.ID, application.StatusApproved, application.StatusCompleted, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("complete_application: %w", err)
	}
	if !ok {
		return nil, shared.WrapError("application", "Complete", shared.ErrInvalidState,
			"application is "+statusOf(updated, app).String(), shared.ErrApplicationNotApproved)
	}

	logger.FromContext(ctx).Info("application completed",
		logger.ApplicationID(updated.ID), logger.ProgramID(prog.ID))

	event := shared.NewApplicationCompletedEvent(updated.ID, prog.ArtisanID, updated.ApplicantID, prog.ID)
	event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	publish(ctx, h.eventPublisher, event)

	return &TransitionResult{Application: updated, Events: []shared.Event{event}}, nil
}

// loadOwned loads fresh state and checks that the actor owns the program.
func (h *DecideApplicationHandler) loadOwned(ctx context.Context, actor identity.Principal, id string) (*application.Application, *program.Program, error) {
	app, err := h.appRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	prog, err := h.directory.GetProgram(ctx, app.ProgramID)
	if err != nil {
		if shared.IsStorage(err) {
			return nil, nil, err
		}
		return nil, nil, shared.ErrNotApplicationArtisan
	}

	if !authz.CanDecideApplication(actor, app, prog) {
		return nil, nil, shared.ErrNotApplicationArtisan
	}
	return app, prog, nil
}

func statusOf(current, loaded *application.Application) application.Status {
	if current != nil {
		return current.Status
	}
	return loaded.Status
}
