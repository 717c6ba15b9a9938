package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ariel-frischer/bumpkit/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// ErrEmptyKeyPath is returned for an empty dotted key.
var ErrEmptyKeyPath = errors.New("empty configuration key path")

// ParseKeyPath splits a dotted key such as "changelog.enabled".
func ParseKeyPath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyKeyPath
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid key path %q: empty segment", path)
		}
	}
	return parts, nil
}

// SetNestedValue sets keyPath to value inside the document rooted at root,
// creating intermediate mappings. Existing keys keep their position and comments.
func SetNestedValue(root *yaml.Node, keyPath []string, value interface{}) error {
	if len(keyPath) == 0 {
		return ErrEmptyKeyPath
	}

	if root.Kind == 0 {
		root.Kind = yaml.DocumentNode
	}
	if root.Kind != yaml.DocumentNode {
		return fmt.Errorf("expected YAML document, got node kind %d", root.Kind)
	}
	if len(root.Content) == 0 {
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"})
	}

	var encoded yaml.Node
	if err := encoded.Encode(value); err != nil {
		return fmt.Errorf("encoding value for %s: %w", strings.Join(keyPath, "."), err)
	}

	current := root.Content[0]
	for i, key := range keyPath {
		if current.Kind != yaml.MappingNode {
			return fmt.Errorf("%s is not a mapping", strings.Join(keyPath[:i], "."))
		}
		last := i == len(keyPath)-1
		child := mappingValue(current, key)
		switch {
		case child == nil && last:
			current.Content = append(current.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, &encoded)
		case child == nil:
			next := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			current.Content = append(current.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, next)
			current = next
		case last:
			encoded.HeadComment = child.HeadComment
			encoded.LineComment = child.LineComment
			encoded.FootComment = child.FootComment
			*child = encoded
		default:
			current = child
		}
	}
	return nil
}

// GetNestedValue returns the node at keyPath, or nil when any segment is missing.
func GetNestedValue(root *yaml.Node, keyPath []string) *yaml.Node {
	if len(keyPath) == 0 || root == nil {
		return nil
	}
	current := root
	if current.Kind == yaml.DocumentNode {
		if len(current.Content) == 0 {
			return nil
		}
		current = current.Content[0]
	}
	for _, key := range keyPath {
		if current.Kind != yaml.MappingNode {
			return nil
		}
		current = mappingValue(current, key)
		if current == nil {
			return nil
		}
	}
	return current
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// SetConfigValue validates value against the schema of key and writes it to
// the YAML file at configPath, creating the file and its directory if needed.
func SetConfigValue(configPath, key, value string) error {
	keyPath, err := ParseKeyPath(key)
	if err != nil {
		return err
	}
	parsed, err := ValidateValue(key, value)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}

	var root yaml.Node
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := ValidateYAMLSyntaxFromBytes(data, configPath); err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("parsing %s: %w", configPath, err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("reading %s: %w", configPath, err)
	}

	if err := SetNestedValue(&root, keyPath, parsed.Parsed); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}

	out, err := yaml.Marshal(&root)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", configPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return fsutil.AtomicWriteFile(configPath, out, fsutil.FileMode(configPath, 0o644))
}
