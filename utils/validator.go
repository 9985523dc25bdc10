package utils

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/badoux/checkmail"
	"github.com/go-playground/validator/v10"

	"taskflow/models"
)

var validate = newValidator()

// FieldError points a validation failure at one input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is returned by ValidateStruct when the input is rejected.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, fe := range v {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, ", ")
}

func newValidator() *validator.Validate {
	v := validator.New()

	// Report the json name so details match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return strings.ToLower(f.Name)
		}
		return name
	})

	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return IsStrongPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("mailaddr", func(fl validator.FieldLevel) bool {
		return checkmail.ValidateFormat(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("taskpriority", func(fl validator.FieldLevel) bool {
		return models.TaskPriority(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("taskstatus", func(fl validator.FieldLevel) bool {
		return models.TaskStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("projectstatus", func(fl validator.FieldLevel) bool {
		return models.ProjectStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return models.Role(fl.Field().String()).Valid()
	})
	return v
}

// IsStrongPassword requires at least 8 characters with an upper case letter,
// a lower case letter and a digit.
func IsStrongPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// ValidateStruct checks s against its validate tags and returns
// ValidationErrors naming every rejected field.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		param := fe.Param()

		var msg string
		switch fe.Tag() {
		case "required":
			msg = field + " is required"
		case "min":
			if fe.Kind() == reflect.String {
				msg = field + " must be at least " + param + " characters"
			} else {
				msg = field + " must be at least " + param
			}
		case "max":
			if fe.Kind() == reflect.String {
				msg = field + " must be at most " + param + " characters"
			} else {
				msg = field + " must be at most " + param
			}
		case "mailaddr", "email":
			msg = field + " must be a valid email"
		case "strongpassword":
			msg = field + " must be at least 8 characters and contain an uppercase letter, a lowercase letter and a digit"
		case "taskpriority":
			msg = field + " must be high, medium or low"
		case "taskstatus":
			msg = field + " must be planned, in_progress or done"
		case "projectstatus":
			msg = field + " must be active or archived"
		case "role":
			msg = field + " must be admin, project_manager or user"
		case "datetime":
			msg = field + " must be a date in YYYY-MM-DD format"
		default:
			msg = field + " is invalid"
		}
		out = append(out, FieldError{Field: field, Message: msg})
	}
	return out
}
