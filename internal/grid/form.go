package grid

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("safetext", safeText); err != nil {
		panic(err)
	}
	return v
}

// safeText rejects text the database cannot store: invalid UTF-8 and NUL.
func safeText(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}

// NoteForm is the input of a note insert.
type NoteForm struct {
	Title    string `json:"title,omitempty" form:"title" validate:"safetext,max=255"`
	Contents string `json:"contents" form:"contents" validate:"required,safetext,max=65535"`
}

func (f *NoteForm) Normalize() {
	f.Title = strings.TrimSpace(f.Title)
	f.Contents = strings.TrimSpace(f.Contents)
}

// Ok validates the form and returns per-field messages keyed by json name.
func (f *NoteForm) Ok() (map[string]string, bool) {
	errs := validate.Struct(f)
	if errs == nil {
		return map[string]string{}, true
	}
	messages := map[string]string{}
	validationErrors, ok := errs.(validator.ValidationErrors)
	if !ok {
		messages["form"] = errs.Error()
		return messages, false
	}
	for _, err := range validationErrors {
		messages[err.Field()] = describe(err)
	}
	return messages, false
}

func describe(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "safetext":
		return "invalid characters"
	case "max":
		return fmt.Sprintf("must be at most %s characters", err.Param())
	default:
		return fmt.Sprintf("failed %q validation", err.Tag())
	}
}
