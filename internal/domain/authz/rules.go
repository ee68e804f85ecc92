// Package authz содержит правила авторизации ядра.
// Все функции - чистые предикаты без побочных эффектов.
// Вызывающий обязан передавать только что загруженное состояние сущностей.
package authz

import (
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/application"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/identity"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/program"
)

// CanSubmitApplication - подавать заявки может только ученик.
func CanSubmitApplication(actor identity.Principal) bool {
	return actor.IsApplicant() && actor.UserID != ""
}

// CanDecideApplication - решение принимает только мастер, владеющий программой заявки.
func CanDecideApplication(actor identity.Principal, app *application.Application, prog *program.Program) bool {
	if app == nil || prog == nil || app.ProgramID != prog.ID {
		return false
	}
	return actor.IsArtisan() && prog.IsOwnedBy(actor.UserID)
}

// CanManageReport - отчётами управляет только ученик, подавший заявку.
func CanManageReport(actor identity.Principal, app *application.Application) bool {
	if app == nil || actor.UserID == "" {
		return false
	}
	return actor.IsApplicant() && actor.UserID == app.ApplicantID
}

// CanViewApplication - заявку видит её автор или мастер программы.
func CanViewApplication(actor identity.Principal, app *application.Application, prog *program.Program) bool {
	if app == nil || actor.UserID == "" {
		return false
	}
	if actor.IsApplicant() && actor.UserID == app.ApplicantID {
		return true
	}
	return CanDecideApplication(actor, app, prog)
}
