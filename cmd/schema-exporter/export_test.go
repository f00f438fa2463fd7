package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/fedgraph/schema"
)

// TestExport runs the complete export pipeline
func TestExport(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "schemas")

	result, err := export(Options{
		OutDir:     outDir,
		Services:   []string{"market", "inventory"},
		Format:     formatBoth,
		Supergraph: "supergraph.graphql",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"market", "inventory"}, result.Services)
	assert.Len(t, result.Files, 7)
	assert.GreaterOrEqual(t, result.Types, 2)

	for _, name := range []string{"market", "inventory"} {
		sdl, err := os.ReadFile(filepath.Join(outDir, "schema_"+name+".graphql"))
		require.NoError(t, err)
		assert.Contains(t, string(sdl), "@key")
	}

	super, err := os.ReadFile(filepath.Join(outDir, "supergraph.graphql"))
	require.NoError(t, err)
	assert.Contains(t, string(super), "type Market")
	assert.NotContains(t, string(super), "@external", "supergraph carries no federation annotations")
}

func TestExport_ManifestsMatchSchema(t *testing.T) {
	outDir := t.TempDir()
	_, err := export(Options{OutDir: outDir, Services: []string{"inventory"}, Format: formatBoth})
	require.NoError(t, err)

	schemaPath, err := filepath.Abs(filepath.Join("..", "..", "schema", "manifest.schema.json"))
	require.NoError(t, err)

	jsonPath := filepath.Join(outDir, "manifest_inventory.json")
	res, err := gojsonschema.Validate(
		gojsonschema.NewReferenceLoader("file://"+schemaPath),
		gojsonschema.NewReferenceLoader("file://"+jsonPath),
	)
	require.NoError(t, err)
	assert.True(t, res.Valid(), "%v", res.Errors())

	data, err := os.ReadFile(filepath.Join(outDir, "manifest_inventory.yaml"))
	require.NoError(t, err)
	var m schema.Manifest
	require.NoError(t, yaml.Unmarshal(data, &m))
	assert.Equal(t, "inventory", m.Service)
	assert.NotEmpty(t, m.Types)

	_, err = os.Stat(filepath.Join(outDir, "supergraph.graphql"))
	assert.True(t, os.IsNotExist(err), "empty supergraph name skips the file")
}

func TestExport_Formats(t *testing.T) {
	outDir := t.TempDir()
	result, err := export(Options{OutDir: outDir, Services: []string{"market"}, Format: formatJSON})
	require.NoError(t, err)

	for _, f := range result.Files {
		assert.False(t, strings.HasSuffix(f, ".yaml"), f)
	}
}

func TestExport_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"unknown format", Options{Services: []string{"market"}, Format: "xml"}},
		{"no services", Options{Format: formatJSON}},
		{"unknown service", Options{Services: []string{"billing"}, Format: formatJSON}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.OutDir = t.TempDir()
			_, err := export(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"market", "inventory"}, splitList(" market, ,inventory "))
	assert.Nil(t, splitList(""))
}
