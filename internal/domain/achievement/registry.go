package achievement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Registry is the immutable, validated achievement catalog. It is built once
// at startup and safe for concurrent reads.
type Registry struct {
	all    []Achievement
	byID   map[shared.AchievementID]int
	byKind map[activity.Kind][]Achievement
}

// NewRegistry validates every definition and indexes the catalog by the event
// kinds that can affect each entry. Any invalid definition fails the whole
// load with an error of kind shared.ErrRegistryLoad listing every problem.
func NewRegistry(defs []Definition, limits Limits) (*Registry, error) {
	if len(defs) == 0 {
		return nil, shared.ErrEmptyCatalog
	}
	if limits.MaxPacingWindow <= 0 {
		limits = DefaultLimits()
	}

	r := &Registry{
		all:    make([]Achievement, 0, len(defs)),
		byID:   make(map[shared.AchievementID]int, len(defs)),
		byKind: make(map[activity.Kind][]Achievement),
	}

	var errs []error
	for i, def := range defs {
		a, err := compile(def, limits)
		if err != nil {
			errs = append(errs, fmt.Errorf("definition %d (%q): %w", i, def.ID, err))
			continue
		}
		if _, dup := r.byID[a.ID]; dup {
			errs = append(errs, fmt.Errorf("definition %d: duplicate id %q", i, a.ID))
			continue
		}
		r.byID[a.ID] = len(r.all)
		r.all = append(r.all, a)
	}
	if len(errs) > 0 {
		return nil, shared.WrapError("achievement", "NewRegistry", shared.ErrRegistryLoad,
			fmt.Sprintf("%d invalid achievement definition(s)", len(errs)), errors.Join(errs...))
	}

	for _, kind := range activity.KnownKinds {
		for _, a := range r.all {
			if a.Type.AffectedBy(kind) {
				r.byKind[kind] = append(r.byKind[kind], a)
			}
		}
	}
	return r, nil
}

func compile(def Definition, limits Limits) (Achievement, error) {
	id, err := shared.NewAchievementID(def.ID)
	if err != nil {
		return Achievement{}, err
	}
	title := strings.TrimSpace(def.Title)
	if title == "" {
		return Achievement{}, shared.NewDomainError("achievement", "NewRegistry", shared.ErrEmptyValue, "title is required")
	}
	if !def.Type.IsValid() {
		return Achievement{}, shared.ErrUnknownAchievementType
	}
	if def.Points < 0 {
		return Achievement{}, shared.NewDomainError("achievement", "NewRegistry", shared.ErrValueOutOfRange, "points must not be negative")
	}
	cond, err := ParseCondition(def.Type, def.Condition, limits)
	if err != nil {
		return Achievement{}, err
	}
	return Achievement{
		ID:           id,
		Title:        title,
		Description:  def.Description,
		Icon:         def.Icon,
		Type:         def.Type,
		Points:       def.Points,
		Condition:    cond,
		RawCondition: append([]byte(nil), def.Condition...),
	}, nil
}

// Candidates returns the achievements whose type can be affected by kind,
// in catalog order. The returned slice must not be modified.
func (r *Registry) Candidates(kind activity.Kind) []Achievement {
	return r.byKind[kind]
}

// All returns every achievement in catalog order.
func (r *Registry) All() []Achievement {
	out := make([]Achievement, len(r.all))
	copy(out, r.all)
	return out
}

// Get returns the achievement with id.
func (r *Registry) Get(id shared.AchievementID) (Achievement, error) {
	i, ok := r.byID[id]
	if !ok {
		return Achievement{}, shared.ErrAchievementNotFound
	}
	return r.all[i], nil
}

// Len returns the number of achievements in the catalog.
func (r *Registry) Len() int {
	return len(r.all)
}
