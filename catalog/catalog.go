// Package catalog ships the default achievement catalog. It is the seed
// content written to the database by `engine seed` and the source used
// directly when the engine runs with ENGINE_CATALOG_SOURCE=file.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lexprep/achievement-engine/internal/domain/achievement"
)

//go:embed achievements.json
var defaultCatalog []byte

// Default returns the embedded definitions.
func Default() ([]achievement.Definition, error) {
	return Parse(defaultCatalog)
}

// Parse decodes a JSON array of definitions. Conditions stay raw; they are
// validated when the registry is built.
func Parse(data []byte) ([]achievement.Definition, error) {
	var defs []achievement.Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return defs, nil
}

// FileSource loads definitions from a JSON file, or from the embedded
// catalog when Path is empty. It implements achievement.CatalogSource.
type FileSource struct {
	Path string
}

// LoadDefinitions implements achievement.CatalogSource.
func (s FileSource) LoadDefinitions(_ context.Context) ([]achievement.Definition, error) {
	if s.Path == "" {
		return Default()
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", s.Path, err)
	}
	return Parse(data)
}
