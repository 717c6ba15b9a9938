package changeset

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
)

// ValidationError lists every rule a changeset breaks.
type ValidationError struct {
	ID       string
	Messages []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("changeset %s is invalid: %s", e.ID, strings.Join(e.Messages, "; "))
}

// Is reports the error as a validation failure.
func (e *ValidationError) Is(target error) bool {
	return target == clierrors.ErrValidation
}

// Validate checks shape rules and, when availableEnvs is non-empty, that every
// release names a known environment. All violations are reported together.
func Validate(c *Changeset, availableEnvs []string) error {
	var msgs []string
	msgs = append(msgs, structMessages(c)...)

	for _, env := range c.Releases {
		if len(availableEnvs) > 0 && strings.TrimSpace(env) != "" && !slices.Contains(availableEnvs, env) {
			msgs = append(msgs, fmt.Sprintf("releases: unknown environment %q (available: %s)",
				env, strings.Join(availableEnvs, ", ")))
		}
	}

	for i, p := range c.Packages {
		prefix := fmt.Sprintf("packages[%d]", i)
		if p.Name != "" {
			prefix = fmt.Sprintf("packages[%s]", p.Name)
		}
		if p.CurrentVersion.Equal(p.NextVersion) {
			msgs = append(msgs, fmt.Sprintf("%s: current_version and next_version are both %s", prefix, p.CurrentVersion))
		}
		msgs = append(msgs, reasonMessages(prefix, p.Reason)...)
	}

	if c.ReleaseInfo != nil {
		for env := range c.ReleaseInfo.EnvironmentsReleased {
			if !slices.Contains(c.Releases, env) {
				msgs = append(msgs, fmt.Sprintf("release_info: environment %q was released but is not listed in releases", env))
			}
		}
	}

	if len(msgs) == 0 {
		return nil
	}
	slices.Sort(msgs)
	return &ValidationError{ID: c.ID(), Messages: slices.Compact(msgs)}
}

func reasonMessages(prefix string, r Reason) []string {
	var msgs []string
	switch r.Type {
	case DirectChanges:
		if len(r.Commits) == 0 {
			msgs = append(msgs, prefix+": reason.commits must not be empty")
		}
		for j, commit := range r.Commits {
			if strings.TrimSpace(commit) == "" {
				msgs = append(msgs, fmt.Sprintf("%s: reason.commits[%d] is blank", prefix, j))
			}
		}
	case DependencyUpdate, DevDependencyUpdate:
		if strings.TrimSpace(r.Dependency) == "" {
			msgs = append(msgs, prefix+": reason.dependency is blank")
		}
		if r.OldVersion == r.NewVersion {
			msgs = append(msgs, fmt.Sprintf("%s: reason old_version and new_version are both %q", prefix, r.OldVersion))
		}
	default:
		msgs = append(msgs, fmt.Sprintf("%s: reason.type %q is not supported", prefix, r.Type))
	}
	return msgs
}

// structMessages runs the struct tag rules.
func structMessages(c *Changeset) []string {
	validate := validator.New()
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		field := strings.TrimPrefix(fieldErr.Namespace(), "Changeset.")
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, formatValidationError(fieldErr)))
	}
	return msgs
}

// formatValidationError formats a validation error for a specific field.
func formatValidationError(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "notblank":
		return "must not be blank"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fieldErr.Param())
	case "unique":
		if fieldErr.Param() != "" {
			return fmt.Sprintf("contains duplicate %s values", strings.ToLower(fieldErr.Param()))
		}
		return "contains duplicates"
	default:
		return fmt.Sprintf("failed validation: %s", fieldErr.Tag())
	}
}
