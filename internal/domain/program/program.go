// Package program содержит справочник программ наставничества.
// Для ядра это внешний участник: только чтение.
package program

import (
	"context"
	"time"
)

// Program - программа обучения, принадлежащая одному мастеру.
type Program struct {
	ID            string
	ArtisanID     string
	Title         string
	IsOpen        bool
	DurationWeeks int // 0 - использовать значение по умолчанию из конфигурации
	CreatedAt     time.Time
}

// AcceptsApplications возвращает true, если программа открыта для новых заявок.
func (p *Program) AcceptsApplications() bool {
	return p != nil && p.IsOpen
}

// IsOwnedBy проверяет, что программой владеет указанный мастер.
func (p *Program) IsOwnedBy(artisanID string) bool {
	return p != nil && artisanID != "" && p.ArtisanID == artisanID
}

// User - профиль пользователя для обогащения карточки заявки.
type User struct {
	ID          string
	Role        string
	DisplayName string
}

// Directory определяет контракт чтения программ и профилей.
type Directory interface {
	// GetProgram возвращает программу по ID.
	// Возвращает shared.ErrProgramNotFound, если программа не найдена.
	GetProgram(ctx context.Context, id string) (*Program, error)

	// GetUsers возвращает профили по списку ID. Отсутствующие ID пропускаются.
	GetUsers(ctx context.Context, ids []string) (map[string]*User, error)
}
