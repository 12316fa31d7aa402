package service

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Validator checks ledger inputs against their struct tags and renders
// failures as FieldErrors with JSON field names.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

var defaultValidator = NewValidator()

// fieldTexts replace the default English messages, which repeat the field
// name, with short texts that read well next to it.
var fieldTexts = map[string]string{
	"required": "this field is required",
	"gt":       "must be greater than {0}",
	"gte":      "must be {0} or greater",
	"lte":      "must be {0} or less",
	"min":      "must contain at least {0} entry",
	"max":      "must be at most {0} characters long",
}

// NewValidator instantiates the validator for use.
func NewValidator() *Validator {
	locale := en.New()
	translator, _ := ut.New(locale, locale).GetTranslator("en")
	validate := validator.New()
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	for tag, text := range fieldTexts {
		registerTranslation(validate, translator, tag, text)
	}
	return &Validator{validate: validate, translator: translator}
}

func registerTranslation(validate *validator.Validate, translator ut.Translator, tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Param())
			return s
		},
	)
}

// Struct validates v and returns a *ValidationError on failure.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Err: err}
	}
	flds := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		flds = append(flds, FieldError{Field: fieldPath(fe.Namespace()), Message: fe.Translate(v.translator)})
	}
	return NewValidationError(flds...)
}

// fieldPath drops the leading struct name from a validator namespace:
// "BatchExitInput.volunteers[0].name" becomes "volunteers[0].name".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
