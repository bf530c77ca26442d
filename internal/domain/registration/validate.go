package registration

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"github.com/okian/judgeboard/internal/domain/model"
)

// Password limits in bytes; bcrypt ignores anything past 72.
const (
	MinPasswordBytes = 8
	MaxPasswordBytes = 72
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	phonePattern    = regexp.MustCompile(`^\(?[0-9]{3}\)?[-. ]?[0-9]{3}[-. ]?[0-9]{4}$`)
)

// input is the validated shape of a registration.
type input struct {
	Username         string   `json:"username" validate:"required,min=3,max=50,username"`
	DisplayName      string   `json:"display_name" validate:"required,min=2,max=100"`
	FirstName        string   `json:"first_name" validate:"required,max=100"`
	LastName         string   `json:"last_name" validate:"required,max=100"`
	Email            string   `json:"email" validate:"required,max=255,email"`
	Phone            string   `json:"phone" validate:"required,phone"`
	City             string   `json:"city" validate:"max=100"`
	State            string   `json:"state" validate:"max=50"`
	ZipCode          string   `json:"zip_code" validate:"max=20"`
	BarNumber        string   `json:"bar_number" validate:"required,max=50"`
	LicenseState     string   `json:"license_state" validate:"required,max=50"`
	YearsExperience  *int     `json:"years_experience" validate:"omitempty,min=0,max=80"`
	EmergencyContact string   `json:"emergency_contact" validate:"max=100"`
	EmergencyPhone   string   `json:"emergency_phone" validate:"omitempty,phone"`
	Password         string   `json:"password" validate:"required,password"`
	Specializations  []string `json:"specializations" validate:"max=20,dive,max=100"`
	CourtAssignments []string `json:"court_assignments" validate:"max=20,dive,max=100"`
}

func newValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("register username validator: %w", err)
	}
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("register phone validator: %w", err)
	}
	if err := v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		n := len(fl.Field().String())
		return n >= MinPasswordBytes && n <= MaxPasswordBytes
	}); err != nil {
		return nil, fmt.Errorf("register password validator: %w", err)
	}
	return v, nil
}

// toValidationError turns validator output into one error listing every field.
func toValidationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	out := &model.ValidationError{}
	for _, fe := range ves {
		out.Add(fe.Field(), message(fe))
	}
	return out.OrNil()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "username":
		return "may only contain letters, numbers and underscores"
	case "phone":
		return "must be a valid phone number"
	case "password":
		return fmt.Sprintf("must be between %d and %d bytes", MinPasswordBytes, MaxPasswordBytes)
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		switch fe.Kind() {
		case reflect.String:
			return fmt.Sprintf("must be %s %s characters", bound, fe.Param())
		case reflect.Slice:
			return fmt.Sprintf("must have %s %s entries", bound, fe.Param())
		default:
			return fmt.Sprintf("must be %s %s", bound, fe.Param())
		}
	default:
		return "is invalid"
	}
}

// normalizeTags trims entries, drops empties and removes case-insensitive
// duplicates, keeping the first spelling.
func normalizeTags(tags []string) []string {
	fold := cases.Fold()
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := fold.String(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func normalizeProfile(p model.JudgeProfile) model.JudgeProfile {
	p.Username = strings.TrimSpace(p.Username)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Phone = strings.TrimSpace(p.Phone)
	p.Address = strings.TrimSpace(p.Address)
	p.City = strings.TrimSpace(p.City)
	p.State = strings.TrimSpace(p.State)
	p.ZipCode = strings.TrimSpace(p.ZipCode)
	p.BarNumber = strings.TrimSpace(p.BarNumber)
	p.LicenseState = strings.TrimSpace(p.LicenseState)
	p.EmergencyContact = strings.TrimSpace(p.EmergencyContact)
	p.EmergencyPhone = strings.TrimSpace(p.EmergencyPhone)
	p.Notes = strings.TrimSpace(p.Notes)
	return p
}
