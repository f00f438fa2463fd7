package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/c360/fedgraph/schema"
	"github.com/c360/fedgraph/subgraphs"
)

// Manifest formats
const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatBoth = "both"
)

// Options controls an export run
type Options struct {
	OutDir   string
	Services []string
	Format   string
	// Supergraph is the merged SDL file name; empty skips writing it.
	// Merge always runs.
	Supergraph string
}

// Result lists what an export run produced
type Result struct {
	Services []string
	Files    []string
	Types    int
}

// export composes each subgraph, writes its SDL and validated manifest,
// then merges all documents. A composition conflict fails the run after
// the per-subgraph files are written.
func export(opts Options) (*Result, error) {
	switch opts.Format {
	case formatJSON, formatYAML, formatBoth:
	default:
		return nil, fmt.Errorf("unknown manifest format %q", opts.Format)
	}
	if len(opts.Services) == 0 {
		return nil, fmt.Errorf("no services to export")
	}

	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &Result{}
	docs := make([]*schema.Document, 0, len(opts.Services))
	for _, name := range opts.Services {
		doc, err := compose(name)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		result.Services = append(result.Services, name)

		path, err := doc.WriteFile(opts.OutDir)
		if err != nil {
			return nil, fmt.Errorf("failed to write SDL for %s: %w", name, err)
		}
		result.Files = append(result.Files, path)

		files, err := writeManifest(opts.OutDir, opts.Format, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to write manifest for %s: %w", name, err)
		}
		result.Files = append(result.Files, files...)
	}

	merged, err := schema.Merge(docs...)
	if err != nil {
		return nil, fmt.Errorf("subgraphs do not compose: %w", err)
	}
	result.Types = len(merged.Types)

	if opts.Supergraph != "" {
		path := filepath.Join(opts.OutDir, opts.Supergraph)
		if err := os.WriteFile(path, []byte(merged.SDL()), 0644); err != nil {
			return nil, fmt.Errorf("failed to write supergraph: %w", err)
		}
		result.Files = append(result.Files, path)
	}
	return result, nil
}

func compose(name string) (*schema.Document, error) {
	def, err := subgraphs.Get(name)
	if err != nil {
		return nil, err
	}
	reg, err := def.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to build registry for %s: %w", name, err)
	}
	return schema.Compose(def.Name, reg)
}

// writeManifest writes manifest_<service>.{json,yaml} after validating the
// manifest against its JSON Schema.
func writeManifest(dir, format string, doc *schema.Document) ([]string, error) {
	m := schema.NewManifest(doc)
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var files []string
	if format == formatJSON || format == formatBoth {
		data, err := m.JSON()
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("manifest_%s.json", doc.Service))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write file: %w", err)
		}
		files = append(files, path)
	}
	if format == formatYAML || format == formatBoth {
		data, err := m.YAML()
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("manifest_%s.yaml", doc.Service))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write file: %w", err)
		}
		files = append(files, path)
	}
	return files, nil
}
