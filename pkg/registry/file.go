// pkg/registry/file.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ReadFile parses the catalogue file at path without applying defaults.
func ReadFile(path string) (*TemplateRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file TemplateRegistry
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse template registry %s: %w", path, err)
	}
	return &file, nil
}

// WriteFile saves reg to path, creating parent directories.
func WriteFile(path string, reg *TemplateRegistry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}
