package application

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранения заявок.
type Repository interface {
	// Create сохраняет новую заявку.
	// Возвращает ErrApplicationAlreadyExists, если ученик уже подал заявку в эту программу.
	Create(ctx context.Context, app *Application) error

	// GetByID возвращает заявку по ID, всегда свежее состояние.
	// Возвращает ErrApplicationNotFound, если заявка не найдена.
	GetByID(ctx context.Context, id string) (*Application, error)

	// TransitionStatus выполняет одну условную запись
	// UPDATE ... WHERE id = $1 AND status = from.
	// Возвращает обновлённую заявку и true, если строка изменена;
	// false без ошибки, если текущий статус не равен from.
	TransitionStatus(ctx context.Context, id string, from, to Status, at time.Time) (*Application, bool, error)

	// ListByArtisan возвращает заявки во все программы мастера, новые первыми.
	ListByArtisan(ctx context.Context, artisanID string, opts ListOptions) ([]*Application, error)

	// ListByApplicant возвращает заявки ученика, новые первыми.
	ListByApplicant(ctx context.Context, applicantID string, opts ListOptions) ([]*Application, error)

	// CountByStatusForArtisan группирует заявки мастера по статусу.
	CountByStatusForArtisan(ctx context.Context, artisanID string) (map[Status]int, error)
}

// ListOptions содержит необязательные фильтры списка.
// Пагинация не предусмотрена: возвращается весь набор.
type ListOptions struct {
	Status Status
}

// WithStatus ограничивает список одним статусом.
func (o ListOptions) WithStatus(s Status) ListOptions {
	o.Status = s
	return o
}

// Matches проверяет, проходит ли заявка фильтр.
func (o ListOptions) Matches(a *Application) bool {
	return o.Status == "" || a.Status == o.Status
}

// CountsCache кеширует агрегаты по статусам для мастера.
// Кеш не является источником истины: промах означает пересчёт из Repository.
type CountsCache interface {
	GetCounts(ctx context.Context, artisanID string) (map[Status]int, error)
	SetCounts(ctx context.Context, artisanID string, counts map[Status]int) error
	InvalidateCounts(ctx context.Context, artisanID string) error
}
