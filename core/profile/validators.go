package profile

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/freetutor/freetutor/core"
)

var (
	gradeLevelTag  = "gradelevel"
	gradeLevelText = "must be a valid grade level"

	educationLevelTag  = "educationlevel"
	educationLevelText = "must be a valid education level"

	examTypeTag  = "examtype"
	examTypeText = "must be a valid exam type"

	profileTypeTag  = "profiletype"
	profileTypeText = "must be either student or tutor"
)

// RegisterValidators registers the profile package's custom validators on the
// app validator instance.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			panic(err)
		}
	}

	mustRegister(gradeLevelTag, oneOfValidation(GradeLevels))
	mustRegister(educationLevelTag, oneOfValidation(EducationLevels))
	mustRegister(examTypeTag, oneOfValidation(ExamTypes))
	mustRegister(profileTypeTag, func(fl validator.FieldLevel) bool {
		return Type(fl.Field().String()).Valid()
	})

	core.RegisterCustomTranslation(validate, translator, gradeLevelTag, gradeLevelText)
	core.RegisterCustomTranslation(validate, translator, educationLevelTag, educationLevelText)
	core.RegisterCustomTranslation(validate, translator, examTypeTag, examTypeText)
	core.RegisterCustomTranslation(validate, translator, profileTypeTag, profileTypeText)
}

func oneOfValidation(catalogue []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		val := fl.Field().String()
		for _, entry := range catalogue {
			if val == entry {
				return true
			}
		}
		return false
	}
}
