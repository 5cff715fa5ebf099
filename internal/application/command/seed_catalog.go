package command

import (
	"context"

	"github.com/lexprep/achievement-engine/internal/domain/achievement"
	"github.com/lexprep/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEED CATALOG COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// SeedCatalogHandler copies definitions from a source into the catalog
// store, refusing to write a catalog that would not load.
type SeedCatalogHandler struct {
	source achievement.CatalogSource
	writer achievement.CatalogWriter
	limits achievement.Limits
	log    *logger.Logger
}

// NewSeedCatalogHandler creates a SeedCatalogHandler.
func NewSeedCatalogHandler(source achievement.CatalogSource, writer achievement.CatalogWriter, limits achievement.Limits, log *logger.Logger) *SeedCatalogHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SeedCatalogHandler{source: source, writer: writer, limits: limits, log: log.With(logger.Component("seed_catalog"))}
}

// Handle seeds the catalog and returns the number of definitions written.
func (h *SeedCatalogHandler) Handle(ctx context.Context) (int, error) {
	defs, err := h.source.LoadDefinitions(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := achievement.NewRegistry(defs, h.limits); err != nil {
		return 0, err
	}
	if err := h.writer.UpsertDefinitions(ctx, defs); err != nil {
		return 0, err
	}
	h.log.Info("catalog seeded", logger.Int("definitions", len(defs)))
	return len(defs), nil
}
