package themes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// themeFile is the on-disk shape of a theme definition, accepted as either
// JSON or YAML.
type themeFile struct {
	Name        string  `json:"name" yaml:"name"`
	DisplayName string  `json:"display_name" yaml:"display_name"`
	Description string  `json:"description" yaml:"description"`
	Version     string  `json:"version" yaml:"version"`
	CSSVars     CSSVars `json:"css_vars" yaml:"css_vars"`
}

// ImportDir loads every .json/.yaml/.yml theme definition in dir into the
// store as a system theme. Existing themes with the same name are updated
// in place. It returns the number of themes imported.
func (s *Store) ImportDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		theme, err := readThemeFile(path, ext)
		if err != nil {
			return imported, fmt.Errorf("importing %s: %w", entry.Name(), err)
		}
		if err = s.upsertSystemTheme(ctx, theme); err != nil {
			return imported, fmt.Errorf("importing %s: %w", entry.Name(), err)
		}
		imported++
	}
	return imported, nil
}

func readThemeFile(path, ext string) (*Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file themeFile
	if ext == ".json" {
		err = json.Unmarshal(data, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, err
	}

	if file.Name == "" {
		// Fall back to the filename, normalized to the name charset.
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		file.Name = strings.ToLower(strings.ReplaceAll(base, "_", "-"))
	}
	if file.DisplayName == "" {
		file.DisplayName = file.Name
	}

	return &Theme{
		Name:        file.Name,
		DisplayName: file.DisplayName,
		Description: file.Description,
		Version:     file.Version,
		CSSVars:     file.CSSVars,
		IsSystem:    true,
		IsActive:    true,
	}, nil
}

func (s *Store) upsertSystemTheme(ctx context.Context, t *Theme) error {
	err := s.Create(ctx, t)
	if !errors.Is(err, ErrNameTaken) {
		return err
	}
	return s.Update(ctx, t)
}
