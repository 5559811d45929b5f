package validator

import (
	"errors"
	"fleetrent/pkg/clock"
	"fleetrent/pkg/logger"
	"fleetrent/pkg/model"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	registrationRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 -]{1,19}$`)
	emailRegex        = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Details renders the errors for an API response.
func (v ValidationErrors) Details() map[string]any {
	fields := make(map[string]any, len(v))
	for _, err := range v {
		fields[err.Field] = err.Message
	}
	return map[string]any{"fields": fields}
}

// Validator checks request shape only. Rules that need the ledger or the
// clock live in the services.
type Validator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func New(log *logger.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("civildate", validateCivilDate); err != nil {
		log.Fatal("Failed to register 'civildate' validator", "error", err)
	}
	if err := v.RegisterValidation("registration", validateRegistration); err != nil {
		log.Fatal("Failed to register 'registration' validator", "error", err)
	}
	if err := v.RegisterValidation("email_address", validateEmail); err != nil {
		log.Fatal("Failed to register 'email_address' validator", "error", err)
	}

	return &Validator{
		validate: v,
		logger:   log,
	}
}

func validateCivilDate(fl validator.FieldLevel) bool {
	_, err := clock.ParseDate(fl.Field().String())
	return err == nil
}

func validateRegistration(fl validator.FieldLevel) bool {
	return registrationRegex.MatchString(fl.Field().String())
}

func validateEmail(fl validator.FieldLevel) bool {
	return emailRegex.MatchString(fl.Field().String())
}

func (v *Validator) ValidateCreateBooking(req *model.CreateBookingRequest) error {
	return v.Struct(req)
}

func (v *Validator) ValidateVehicleCreate(req *model.VehicleCreate) error {
	return v.Struct(req)
}

func (v *Validator) ValidateVehicleUpdate(req *model.VehicleUpdate) error {
	if req.IsEmpty() {
		return ValidationErrors{{Field: "body", Message: "at least one field must be provided"}}
	}
	return v.Struct(req)
}

func (v *Validator) ValidateUserCreate(req *model.UserCreate) error {
	return v.Struct(req)
}

func (v *Validator) ValidateUserUpdate(req *model.UserUpdate) error {
	if req.IsEmpty() {
		return ValidationErrors{{Field: "body", Message: "at least one field must be provided"}}
	}
	return v.Struct(req)
}

func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s characters", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid ID", err.Field())
		case "civildate":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		case "registration":
			message = fmt.Sprintf("%s must be 2-20 letters, digits, spaces or dashes", err.Field())
		case "email_address":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
