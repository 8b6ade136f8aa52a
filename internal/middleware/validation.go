package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-api/internal/model"
)

var customValidators = map[string]validator.Func{
	"visit_stage": func(fl validator.FieldLevel) bool {
		return model.Stage(fl.Field().String()).Valid()
	},
	"lab_status": func(fl validator.FieldLevel) bool {
		return model.LabTestStatus(fl.Field().String()).Valid()
	},
	"user_role": func(fl validator.FieldLevel) bool {
		return model.Role(fl.Field().String()).Valid()
	},
	"appointment_status": func(fl validator.FieldLevel) bool {
		return model.AppointmentStatus(fl.Field().String()).Valid()
	},
}

var errorMessages = map[string]string{
	"required":    "is required",
	"email":       "must be a valid email address",
	"min":         "is too short or too small",
	"max":         "is too long or too large",
	"oneof":       "has an unsupported value",
	"visit_stage": "must be a valid visit stage",
	"lab_status":  "must be a valid lab test status",
	"user_role":   "must be a valid role",

	"appointment_status": "must be a valid appointment status",
}

var registerOnce sync.Once

// RegisterValidators installs the domain validators on gin's binding engine
// and reports fields by their json names. Safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("unexpected binding validator engine")
			return
		}
		for tag, fn := range customValidators {
			if err = v.RegisterValidation(tag, fn); err != nil {
				return
			}
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})
	})
	return err
}

// ValidationMessage turns a binding error into a single readable message.
func ValidationMessage(err error) string {
	var nullErr *model.NullFieldError
	if errors.As(err, &nullErr) {
		return nullErr.Error()
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msg, ok := errorMessages[e.Tag()]
		if !ok {
			msg = "is invalid"
		}
		msgs = append(msgs, fmt.Sprintf("%s %s", e.Field(), msg))
	}
	return strings.Join(msgs, "; ")
}
