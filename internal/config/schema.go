package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ConfigValueType defines the expected type for a configuration value.
type ConfigValueType int

const (
	TypeBool ConfigValueType = iota
	TypeInt
	TypeDuration
	TypeString
	TypeEnum
	TypeList
)

// String returns the string representation of ConfigValueType.
func (t ConfigValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeDuration:
		return "duration"
	case TypeString:
		return "string"
	case TypeEnum:
		return "enum"
	case TypeList:
		return "list"
	default:
		return "unknown"
	}
}

// ConfigKeySchema defines a known configuration key with its expected type and validation rules.
type ConfigKeySchema struct {
	Path          string          // Dotted key path (e.g., "changelog.enabled")
	Type          ConfigValueType // Expected value type for validation
	AllowedValues []string        // Valid values for enum types (empty for non-enums)
	Description   string          // Human-readable description for help text
	Default       interface{}     // Default value
}

// KnownKeys is the registry of all known configuration keys with their schemas.
var KnownKeys = map[string]ConfigKeySchema{
	"workspaces": {
		Path:        "workspaces",
		Type:        TypeList,
		Description: "Workspace globs overriding the root package.json workspaces field",
		Default:     []string{},
	},
	"strategy": {
		Path:          "strategy",
		Type:          TypeEnum,
		AllowedValues: []string{"independent", "unified"},
		Description:   "Versioning strategy",
		Default:       "independent",
	},
	"propagation": {
		Path:          "propagation",
		Type:          TypeEnum,
		AllowedValues: []string{"minor-on-incompatible", "patch-only", "strict-breaking", "cascade"},
		Description:   "Bump given to dependents of bumped packages",
		Default:       "minor-on-incompatible",
	},
	"environments": {
		Path:        "environments",
		Type:        TypeList,
		Description: "Known release environments",
		Default:     []string{"dev", "staging", "production"},
	},
	"default_releases": {
		Path:        "default_releases",
		Type:        TypeList,
		Description: "Environments recorded on new changesets",
		Default:     []string{"dev"},
	},
	"max_concurrent_reads": {
		Path:        "max_concurrent_reads",
		Type:        TypeInt,
		Description: "Bound on concurrent manifest reads and changelog writes (1-256)",
		Default:     16,
	},
	"api_boundaries": {
		Path:        "api_boundaries",
		Type:        TypeList,
		Description: "Packages whose public API changes need review in every dependent",
		Default:     []string{},
	},
	"base_branch": {
		Path:        "base_branch",
		Type:        TypeString,
		Description: "Base branch used when drafting changesets from history",
		Default:     "main",
	},
	"changelog.enabled": {
		Path:        "changelog.enabled",
		Type:        TypeBool,
		Description: "Write CHANGELOG.md for every bumped package on apply",
		Default:     true,
	},
	"changelog.repo_url": {
		Path:        "changelog.repo_url",
		Type:        TypeString,
		Description: "Repository URL used for commit and issue links",
		Default:     "",
	},
	"changelog.commit_links": {
		Path:        "changelog.commit_links",
		Type:        TypeBool,
		Description: "Link commit hashes in changelog entries",
		Default:     true,
	},
	"changelog.issue_links": {
		Path:        "changelog.issue_links",
		Type:        TypeBool,
		Description: "Link issue references in changelog entries",
		Default:     true,
	},
	"changelog.authors": {
		Path:        "changelog.authors",
		Type:        TypeBool,
		Description: "Attribute changelog entries to their authors",
		Default:     false,
	},
	"backups.keep_after_success": {
		Path:        "backups.keep_after_success",
		Type:        TypeBool,
		Description: "Keep manifest backups after a successful apply",
		Default:     false,
	},
	"backups.max_backups": {
		Path:        "backups.max_backups",
		Type:        TypeInt,
		Description: "Number of backups retained before the oldest are pruned",
		Default:     10,
	},
	"watch.debounce": {
		Path:        "watch.debounce",
		Type:        TypeDuration,
		Description: "Quiet period before status --watch recomputes (e.g., 100ms, 1s)",
		Default:     "100ms",
	},
	"metrics_file": {
		Path:        "metrics_file",
		Type:        TypeString,
		Description: "Prometheus textfile receiving apply metrics (empty = disabled)",
		Default:     "",
	},
	"verbose": {
		Path:        "verbose",
		Type:        TypeBool,
		Description: "Enable debug logging",
		Default:     false,
	},
}

// SortedKeys returns the registry keys in lexical order.
func SortedKeys() []string {
	keys := make([]string, 0, len(KnownKeys))
	for k := range KnownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ErrUnknownKey is returned when trying to access an unknown configuration key.
type ErrUnknownKey struct {
	Key string
}

func (e ErrUnknownKey) Error() string {
	return "unknown configuration key: " + e.Key
}

// GetKeySchema returns the schema for a known configuration key.
// Returns ErrUnknownKey if the key is not in the registry.
func GetKeySchema(path string) (ConfigKeySchema, error) {
	schema, ok := KnownKeys[path]
	if !ok {
		return ConfigKeySchema{}, ErrUnknownKey{Key: path}
	}
	return schema, nil
}

// ParsedValue represents a configuration value after type inference and validation.
type ParsedValue struct {
	Raw    string      // Original string input from user
	Parsed interface{} // Value converted to correct type
	Type   ConfigValueType
}

// ValidateValue validates a value against the schema for a given key.
// Returns the parsed value or an error with details about what's wrong.
func ValidateValue(key, value string) (ParsedValue, error) {
	schema, err := GetKeySchema(key)
	if err != nil {
		return ParsedValue{}, err
	}
	return validateAgainstSchema(schema, value)
}

// validateAgainstSchema validates a value against a specific schema.
func validateAgainstSchema(schema ConfigKeySchema, value string) (ParsedValue, error) {
	switch schema.Type {
	case TypeBool:
		return parseBoolValue(value)
	case TypeInt:
		return parseIntValue(value)
	case TypeDuration:
		return parseDurationValue(value)
	case TypeEnum:
		return parseEnumValue(schema, value)
	case TypeString:
		return ParsedValue{Raw: value, Parsed: value, Type: TypeString}, nil
	case TypeList:
		return parseListValue(value)
	default:
		return ParsedValue{}, fmt.Errorf("unsupported type: %v", schema.Type)
	}
}

// parseBoolValue parses and validates a boolean value.
func parseBoolValue(value string) (ParsedValue, error) {
	switch strings.ToLower(value) {
	case "true":
		return ParsedValue{Raw: value, Parsed: true, Type: TypeBool}, nil
	case "false":
		return ParsedValue{Raw: value, Parsed: false, Type: TypeBool}, nil
	default:
		return ParsedValue{}, fmt.Errorf("invalid boolean: %q (expected true or false)", value)
	}
}

// parseIntValue parses and validates an integer value.
func parseIntValue(value string) (ParsedValue, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return ParsedValue{}, fmt.Errorf("invalid integer: %q", value)
	}
	return ParsedValue{Raw: value, Parsed: n, Type: TypeInt}, nil
}

// parseDurationValue parses and validates a duration value.
func parseDurationValue(value string) (ParsedValue, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return ParsedValue{}, fmt.Errorf("invalid duration: %q (examples: 5m, 1h30m, 10s)", value)
	}
	return ParsedValue{Raw: value, Parsed: d.String(), Type: TypeDuration}, nil
}

// parseEnumValue validates a value against allowed enum options.
func parseEnumValue(schema ConfigKeySchema, value string) (ParsedValue, error) {
	for _, allowed := range schema.AllowedValues {
		if value == allowed {
			return ParsedValue{Raw: value, Parsed: value, Type: TypeEnum}, nil
		}
	}
	return ParsedValue{}, fmt.Errorf(
		"invalid value: %q (valid options: %s)",
		value,
		strings.Join(schema.AllowedValues, ", "),
	)
}

// parseListValue splits a comma-separated list, dropping blanks.
func parseListValue(value string) (ParsedValue, error) {
	items := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return ParsedValue{Raw: value, Parsed: items, Type: TypeList}, nil
}
