// Package application содержит доменную модель заявки на участие в программе.
// Статус заявки - единственный источник истины для всех последующих прав.
package application

import (
	"strings"
	"time"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет текущий статус заявки.
type Status string

const (
	// StatusPending - заявка подана и ждёт решения мастера.
	StatusPending Status = "PENDING"
	// StatusApproved - заявка принята, наставничество началось.
	StatusApproved Status = "APPROVED"
	// StatusRejected - заявка отклонена. Терминальный статус.
	StatusRejected Status = "REJECTED"
	// StatusCompleted - наставничество завершено. Терминальный статус.
	StatusCompleted Status = "COMPLETED"
)

// AllStatuses возвращает все статусы в порядке жизненного цикла.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusApproved, StatusRejected, StatusCompleted}
}

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted:
		return true
	default:
		return false
	}
}

// IsTerminal возвращает true, если из статуса нет переходов.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// String возвращает строковое представление статуса.
func (s Status) String() string {
	return string(s)
}

// ParseStatus разбирает статус без учёта регистра.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", shared.NewDomainError("application", "ParseStatus", shared.ErrInvalidInput, "unknown status "+v)
	}
	return s, nil
}

// Decision - решение мастера по заявке.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// ParseDecision разбирает решение без учёта регистра.
func ParseDecision(v string) (Decision, error) {
	d := Decision(strings.ToUpper(strings.TrimSpace(v)))
	if _, ok := d.Target(); !ok {
		return "", shared.ErrInvalidDecision
	}
	return d, nil
}

// Target возвращает статус, в который переводит решение.
func (d Decision) Target() (Status, bool) {
	switch d {
	case DecisionApprove:
		return StatusApproved, true
	case DecisionReject:
		return StatusRejected, true
	default:
		return "", false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// transitions - допустимые переходы. Других рёбер нет.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted},
}

// CanTransition проверяет, допустим ли переход from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RequiredSource возвращает единственный статус, из которого достижим target.
// Используется хранилищем для условной записи WHERE status = source.
func RequiredSource(target Status) (Status, bool) {
	for from, targets := range transitions {
		for _, t := range targets {
			if t == target {
				return from, true
			}
		}
	}
	return "", false
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// Application - заявка ученика на участие в программе.
type Application struct {
	ID          string
	ApplicantID string
	ProgramID   string
	Status      Status
	Message     string
	Motivation  string
	CVURL       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DecidedAt   *time.Time
	CompletedAt *time.Time
}

// NewApplicationParams - параметры для создания заявки.
type NewApplicationParams struct {
	ID          string
	ApplicantID string
	ProgramID   string
	Message     string
	Motivation  string
	CVURL       string
	Now         time.Time
}

// NewApplication создаёт заявку в статусе PENDING с валидацией.
func NewApplication(p NewApplicationParams) (*Application, error) {
	if err := shared.ValidateID("application", "id", p.ID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.ApplicantID) == "" {
		return nil, shared.NewDomainError("application", "Validate", shared.ErrEmptyValue, "applicant id is required")
	}
	if strings.TrimSpace(p.ProgramID) == "" {
		return nil, shared.NewDomainError("application", "Validate", shared.ErrEmptyValue, "program id is required")
	}
	if strings.TrimSpace(p.Message) == "" {
		return nil, shared.ErrEmptyMessage
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return &Application{
		ID:          p.ID,
		ApplicantID: p.ApplicantID,
		ProgramID:   p.ProgramID,
		Status:      StatusPending,
		Message:     p.Message,
		Motivation:  strings.TrimSpace(p.Motivation),
		CVURL:       strings.TrimSpace(p.CVURL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition применяет переход к сущности в памяти.
// Хранилище обязано выполнить ту же проверку атомарно, см. Repository.TransitionStatus.
func (a *Application) Transition(to Status, at time.Time) error {
	if !CanTransition(a.Status, to) {
		return shared.WrapError("application", "Transition", shared.ErrInvalidState,
			"cannot move from "+a.Status.String()+" to "+to.String(), shared.ErrStateTransition)
	}
	a.Status = to
	a.UpdatedAt = at
	switch to {
	case StatusApproved, StatusRejected:
		a.DecidedAt = &at
	case StatusCompleted:
		a.CompletedAt = &at
	}
	return nil
}

// IsActive возвращает true, пока по заявке можно создавать отчёты.
func (a *Application) IsActive() bool {
	return a.Status == StatusApproved
}

// Clone возвращает независимую копию заявки.
func (a *Application) Clone() *Application {
	c := *a
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		c.DecidedAt = &t
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
