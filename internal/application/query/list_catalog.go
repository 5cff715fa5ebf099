// Package query contains read operations. Queries never modify state.
package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lexprep/achievement-engine/internal/domain/achievement"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST CATALOG QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListCatalogQuery filters the catalog. An empty Type returns everything.
type ListCatalogQuery struct {
	Type string
}

// Validate checks the query.
func (q ListCatalogQuery) Validate() error {
	if q.Type != "" && !achievement.Type(q.Type).IsValid() {
		return shared.NewDomainError("query", "ListCatalog", shared.ErrInvalidInput,
			fmt.Sprintf("unknown achievement type %q", q.Type))
	}
	return nil
}

// AchievementDTO is the read model of a catalog entry.
type AchievementDTO struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Icon        string          `json:"icon,omitempty"`
	Type        string          `json:"type"`
	Points      int             `json:"points"`
	Condition   json.RawMessage `json:"condition"`
}

// ListCatalogResult is the catalog in load order.
type ListCatalogResult struct {
	Achievements []AchievementDTO `json:"achievements"`
	Total        int              `json:"total"`
}

// ListCatalogHandler serves the catalog from the loaded registry.
type ListCatalogHandler struct {
	registry *achievement.Registry
}

// NewListCatalogHandler creates a ListCatalogHandler.
func NewListCatalogHandler(registry *achievement.Registry) *ListCatalogHandler {
	return &ListCatalogHandler{registry: registry}
}

// Handle executes the query.
func (h *ListCatalogHandler) Handle(_ context.Context, q ListCatalogQuery) (*ListCatalogResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	all := h.registry.All()
	out := make([]AchievementDTO, 0, len(all))
	for _, a := range all {
		if q.Type != "" && a.Type != achievement.Type(q.Type) {
			continue
		}
		out = append(out, toDTO(a))
	}
	return &ListCatalogResult{Achievements: out, Total: len(out)}, nil
}

func toDTO(a achievement.Achievement) AchievementDTO {
	return AchievementDTO{
		ID:          a.ID.String(),
		Title:       a.Title,
		Description: a.Description,
		Icon:        a.Icon,
		Type:        a.Type.String(),
		Points:      a.Points,
		Condition:   a.RawCondition,
	}
}
