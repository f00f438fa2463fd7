// Package main exports the SDL and manifest of every subgraph and checks
// that they compose into one graph.
package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/c360/fedgraph/subgraphs"
)

func main() {
	// Parse command-line flags
	outDir := flag.String("out", "./schemas", "Output directory for SDL and manifests")
	services := flag.String("services", strings.Join(subgraphs.Names(), ","), "Comma-separated subgraphs to export")
	format := flag.String("format", formatBoth, "Manifest format: json, yaml, both")
	supergraph := flag.String("supergraph", "supergraph.graphql", "Merged SDL file name inside -out (empty to skip)")
	flag.Parse()

	log.Printf("Schema Exporter")
	log.Printf("  Services: %s", *services)
	log.Printf("  Output dir: %s", *outDir)

	result, err := export(Options{
		OutDir:     *outDir,
		Services:   splitList(*services),
		Format:     *format,
		Supergraph: *supergraph,
	})
	if err != nil {
		log.Printf("Export failed: %v", err)
		os.Exit(1)
	}

	for _, path := range result.Files {
		log.Printf("  ✓ Generated: %s", path)
	}
	log.Printf("✅ Schema export complete: %d types across %d subgraphs", result.Types, len(result.Services))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
