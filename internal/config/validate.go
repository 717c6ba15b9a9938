package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ValidationError locates a configuration problem. Field is the dotted key
// path (changelog.repo_url); Line and Column are set for syntax errors.
type ValidationError struct {
	FilePath string
	Line     int
	Column   int
	Field    string
	Message  string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	case e.Field != "":
		return fmt.Sprintf("%s: %s %s", e.FilePath, e.Field, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
	}
}

// Is reports configuration problems as validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == clierrors.ErrValidation
}

// ValidateYAMLSyntax parses the file at filePath. A missing or blank file is
// valid and leaves the defaults in place.
func ValidateYAMLSyntax(filePath string) error {
	data, err := os.ReadFile(filePath)
	switch {
	case os.IsNotExist(err):
		return nil
	case os.IsPermission(err):
		return &ValidationError{FilePath: filePath, Message: "permission denied"}
	case err != nil:
		return &ValidationError{FilePath: filePath, Message: err.Error()}
	}
	return ValidateYAMLSyntaxFromBytes(data, filePath)
}

// yamlLine matches the position yaml.v3 embeds in its messages.
var yamlLine = regexp.MustCompile(`^yaml: line (\d+):(?: column (\d+):)? `)

// ValidateYAMLSyntaxFromBytes parses data as YAML; filePath only labels the error.
func ValidateYAMLSyntaxFromBytes(data []byte, filePath string) error {
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	var node yaml.Node
	err := yaml.Unmarshal(data, &node)
	if err == nil {
		return nil
	}

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		return &ValidationError{FilePath: filePath, Message: strings.Join(typeErr.Errors, "; ")}
	}
	msg := err.Error()
	verr := &ValidationError{FilePath: filePath, Message: strings.TrimPrefix(msg, "yaml: ")}
	if m := yamlLine.FindStringSubmatch(msg); m != nil {
		verr.Line, _ = strconv.Atoi(m[1])
		verr.Column = 1
		if m[2] != "" {
			verr.Column, _ = strconv.Atoi(m[2])
		}
		verr.Message = msg[len(m[0]):]
	}
	return verr
}

// ValidateConfigValues checks the merged configuration: struct tag rules
// first, then the cross-field rules. The first problem found is returned.
func ValidateConfigValues(cfg *Configuration, filePath string) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("koanf"), ",")
		if name == "" {
			return field.Name
		}
		return name
	})

	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return &ValidationError{FilePath: filePath, Message: err.Error()}
		}
		fe := fieldErrs[0]
		return &ValidationError{
			FilePath: filePath,
			Field:    keyPath(fe.Namespace()),
			Message:  describeRule(fe),
		}
	}

	for _, env := range cfg.DefaultReleases {
		if !slices.Contains(cfg.Environments, env) {
			return &ValidationError{
				FilePath: filePath,
				Field:    "default_releases",
				Message:  fmt.Sprintf("names %q which is not listed in environments", env),
			}
		}
	}
	if _, err := cfg.BumpTable(); err != nil {
		return &ValidationError{FilePath: filePath, Field: "commit_types", Message: err.Error()}
	}
	return nil
}

// keyPath turns a validator namespace (Configuration.changelog.repo_url, or
// Configuration.environments[1]) into a dotted config key.
func keyPath(namespace string) string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		rest = namespace
	}
	if i := strings.IndexByte(rest, '['); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("needs at least %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return "must be a valid URL"
	case "unique":
		return "must not contain duplicates"
	default:
		return fmt.Sprintf("fails rule %q", fe.Tag())
	}
}
