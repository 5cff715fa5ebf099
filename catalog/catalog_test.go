package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexprep/achievement-engine/internal/domain/achievement"
)

func TestDefaultCatalogBuildsRegistry(t *testing.T) {
	defs, err := FileSource{}.LoadDefinitions(context.Background())
	require.NoError(t, err)

	reg, err := achievement.NewRegistry(defs, achievement.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, len(defs), reg.Len())

	types := make(map[achievement.Type]bool)
	for _, a := range reg.All() {
		types[a.Type] = true
	}
	for _, typ := range achievement.AllTypes {
		assert.True(t, types[typ], "catalog has no %s achievement", typ)
	}
}

func TestParse_RejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{"id":`))
	assert.Error(t, err)
}
