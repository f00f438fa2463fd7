package subgraphs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/schema"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"inventory", "market"}, Names())
}

func TestGet_Unknown(t *testing.T) {
	_, err := Get("billing")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestBuild_All(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			svc, err := Build(name)
			require.NoError(t, err)
			assert.Equal(t, name, svc.Name)
			assert.NoError(t, svc.Verify())
		})
	}
}

func TestSubgraphs_Compose(t *testing.T) {
	var docs []*schema.Document
	for _, name := range Names() {
		svc, err := Build(name)
		require.NoError(t, err)
		doc, err := schema.Compose(name, svc.Registry)
		require.NoError(t, err)
		docs = append(docs, doc)
	}

	super, err := schema.Merge(docs...)
	require.NoError(t, err)

	market, ok := super.Type("Market")
	require.True(t, ok)
	name, ok := market.Field("name")
	require.True(t, ok)
	assert.Equal(t, []string{"market"}, name.Owners)
	assert.Equal(t, []string{"inventory"}, name.ExternalIn)

	item, ok := super.Type("MarketHashName")
	require.True(t, ok)
	value, ok := item.Field("value")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"inventory", "market"}, value.Owners)
}
