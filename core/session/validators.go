package session

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

var (
	portalRoleTag  = "portalrole"
	portalRoleText = "invalid role"
)

// RegisterValidators registers session-specific validators.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(portalRoleTag, portalRoleValidation)
	core.RegisterCustomTranslation(validate, translator, portalRoleTag, portalRoleText)
}

// portalRoleValidation checks that the provided role is a known portal role.
func portalRoleValidation(fl validator.FieldLevel) bool {
	return IsValidRole(fl.Field().String())
}
