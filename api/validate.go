package api

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/ja"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	ja_translations "github.com/go-playground/validator/v10/translations/ja"

	"github.com/mizuki-commits/dashboard-template/domain"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	notBlankTag   = "notblank"
	remindDaysTag = "remind_days"
	dateTag       = "date_ymd"
)

func init() {
	validate = validator.New()

	jaLocale := ja.New()
	uni := ut.New(jaLocale, jaLocale)
	translator, _ = uni.GetTranslator("ja")
	_ = ja_translations.RegisterDefaultTranslations(validate, translator)

	// Report JSON field names instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlank)
	_ = validate.RegisterValidation(remindDaysTag, validRemindDays)
	_ = validate.RegisterValidation(dateTag, validDate)
	registerCustomTranslations(notBlankTag, remindDaysTag, dateTag)
}

// registerCustomTranslations adds messages for the custom tags. The default
// translations are already registered, so a noop register func is passed.
func registerCustomTranslations(tags ...string) {
	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range tags {
		_ = validate.RegisterTranslation(tag, translator, registerFn, translateCustom)
	}
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return fe.Field() + "は空にできません"
	case remindDaysTag:
		return fe.Field() + "は1, 2, 3, 5, 7のいずれかです"
	case dateTag:
		return fe.Field() + "はYYYY-MM-DD形式で指定してください"
	}
	return ""
}

func notBlank(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case string:
		return strings.TrimSpace(v) != ""
	case *string:
		return v == nil || strings.TrimSpace(*v) != ""
	}
	return false
}

// validRemindDays accepts zero (no remind) or one of the offered offsets.
func validRemindDays(fl validator.FieldLevel) bool {
	days := int(fl.Field().Int())
	return days == 0 || domain.ValidRemindDays(days)
}

// validDate accepts an empty value or anything starting with a calendar date.
func validDate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, ok := domain.ParseDate(s)
	return ok
}

// Validator plugs the shared validator into echo.
type Validator struct{}

func (Validator) Validate(i any) error {
	return validate.Struct(i)
}
