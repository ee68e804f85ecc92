package query

import (
	"context"
	"fmt"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/identity"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ARTISAN DASHBOARD QUERY
// Счётчики заявок мастера по статусам. Производное представление,
// никогда не используется для решений об авторизации.
// ══════════════════════════════════════════════════════════════════════════════

// ArtisanDashboardQuery содержит параметры запроса.
type ArtisanDashboardQuery struct {
	Actor identity.Principal

	// SkipCache - пересчитать из хранилища.
	SkipCache bool
}

// Validate проверяет корректность параметров запроса.
func (q ArtisanDashboardQuery) Validate() error {
	if err := q.Actor.Validate(); err != nil {
		return err
	}
	if !q.Actor.IsArtisan() {
		return shared.NewDomainError("application", "Dashboard", shared.ErrForbidden, "dashboard is available to artisans only")
	}
	return nil
}

// DashboardDTO - счётчики по статусам.
type DashboardDTO struct {
	Total     int  `json:"total"`
	Pending   int  `json:"pending"`
	Approved  int  `json:"approved"`
	Rejected  int  `json:"rejected"`
	Completed int  `json:"completed"`
	FromCache bool `json:"from_cache"`
}

// NewDashboardDTO строит DTO из сгруппированных счётчиков.
func NewDashboardDTO(counts map[application.Status]int) DashboardDTO {
	d := DashboardDTO{
		Pending:   counts[application.StatusPending],
		Approved:  counts[application.StatusApproved],
		Rejected:  counts[application.StatusRejected],
		Completed: counts[application.StatusCompleted],
	}
	d.Total = d.Pending + d.Approved + d.Rejected + d.Completed
	return d
}

// ArtisanDashboardHandler обрабатывает запрос счётчиков.
type ArtisanDashboardHandler struct {
	appRepo application.Repository
	cache   application.CountsCache
}

// NewArtisanDashboardHandler создаёт новый обработчик. cache может быть nil.
func NewArtisanDashboardHandler(appRepo application.Repository, cache application.CountsCache) *ArtisanDashboardHandler {
	return &ArtisanDashboardHandler{appRepo: appRepo, cache: cache}
}

// Handle выполняет запрос.
func (h *ArtisanDashboardHandler) Handle(ctx context.Context, q ArtisanDashboardQuery) (*DashboardDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil && !q.SkipCache {
		if counts, err := h.cache.GetCounts(ctx, q.Actor.UserID); err == nil {
			dto := NewDashboardDTO(counts)
			dto.FromCache = true
			return &dto, nil
		}
	}

	counts, err := h.appRepo.CountByStatusForArtisan(ctx, q.Actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("artisan_dashboard: %w", err)
	}

	if h.cache != nil {
		// Ошибка кеша не влияет на ответ.
		_ = h.cache.SetCounts(ctx, q.Actor.UserID, counts)
	}

	dto := NewDashboardDTO(counts)
	return &dto, nil
}

// InvalidateOn возвращает обработчик событий, сбрасывающий кеш мастера
// при любом изменении его заявок.
func (h *ArtisanDashboardHandler) InvalidateOn() shared.EventHandler {
	return func(event shared.Event) error {
		if h.cache == nil {
			return nil
		}
		artisanID, _ := event.Payload()["artisan_id"].(string)
		if artisanID == "" {
			return nil
		}
		return h.cache.InvalidateCounts(context.Background(), artisanID)
	}
}
