// Package identity описывает действующего участника (principal) запроса.
// Сессии выпускаются внешним провайдером, здесь только контракт разрешения токена.
package identity

import (
	"context"
	"strings"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Role определяет роль пользователя на площадке.
type Role string

const (
	// RoleArtisan - мастер, владеет программами и принимает решения по заявкам.
	RoleArtisan Role = "ARTISAN"
	// RoleApplicant - ученик, подаёт заявки и пишет еженедельные отчёты.
	RoleApplicant Role = "APPLICANT"
)

// IsValid проверяет, что роль корректна.
func (r Role) IsValid() bool {
	switch r {
	case RoleArtisan, RoleApplicant:
		return true
	default:
		return false
	}
}

// ParseRole разбирает роль без учёта регистра.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", shared.NewDomainError("identity", "ParseRole", shared.ErrInvalidInput, "unknown role "+s)
	}
	return r, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PRINCIPAL
// ══════════════════════════════════════════════════════════════════════════════

// Principal - действующий участник операции.
// Передаётся явно в каждую операцию ядра, ядро не читает сессию само.
type Principal struct {
	UserID string
	Role   Role
}

// IsArtisan возвращает true, если участник - мастер.
func (p Principal) IsArtisan() bool {
	return p.Role == RoleArtisan
}

// IsApplicant возвращает true, если участник - ученик.
func (p Principal) IsApplicant() bool {
	return p.Role == RoleApplicant
}

// Validate проверяет, что участник определён.
func (p Principal) Validate() error {
	if strings.TrimSpace(p.UserID) == "" || !p.Role.IsValid() {
		return shared.NewDomainError("identity", "Validate", shared.ErrUnauthorized, "actor is not authenticated")
	}
	return nil
}

// Resolver превращает непрозрачный токен сессии в Principal.
// Ошибка разрешения всегда имеет вид shared.ErrUnauthorized.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Principal, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Context helpers
// ─────────────────────────────────────────────────────────────────────────────

type principalKey struct{}

// WithPrincipal кладёт участника в контекст транспортного слоя.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext достаёт участника из контекста.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
