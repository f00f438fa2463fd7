package schema

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/registry"
)

// Document is the composed schema of one subgraph. It is immutable.
type Document struct {
	// Service is the subgraph name.
	Service string
	// SDL is the subgraph SDL with federation annotations.
	SDL string
	// ExecutableSDL is SDL plus the federation prelude and synthetic fields.
	ExecutableSDL string

	types   []registry.EntityType
	queries []registry.QueryField
	keys    map[string][]string
	schema  *ast.Schema
}

// Schema returns the loaded executable schema. Callers must not modify it.
func (d *Document) Schema() *ast.Schema {
	return d.schema
}

// Types returns the entity types rendered into the document.
func (d *Document) Types() []registry.EntityType {
	return slices.Clone(d.types)
}

// Queries returns the root query fields rendered into the document.
func (d *Document) Queries() []registry.QueryField {
	return slices.Clone(d.queries)
}

// Keys returns, per type, the key fields advertised in the SDL.
func (d *Document) Keys() map[string][]string {
	out := make(map[string][]string, len(d.keys))
	for name, fields := range d.keys {
		out[name] = slices.Clone(fields)
	}
	return out
}

// FileName is the name WriteFile uses for this document.
func (d *Document) FileName() string {
	return fmt.Sprintf("schema_%s.graphql", d.Service)
}

// WriteFile writes the SDL to dir/schema_<service>.graphql and returns the
// path. The file is replaced atomically.
func (d *Document) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.WrapTransient(err, "Document", "WriteFile", "create output directory")
	}

	tmp, err := os.CreateTemp(dir, ".schema-*.graphql")
	if err != nil {
		return "", errors.WrapTransient(err, "Document", "WriteFile", "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(d.SDL); err != nil {
		tmp.Close()
		return "", errors.WrapTransient(err, "Document", "WriteFile", "write SDL")
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return "", errors.WrapTransient(err, "Document", "WriteFile", "chmod")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.WrapTransient(err, "Document", "WriteFile", "close temp file")
	}

	path := filepath.Join(dir, d.FileName())
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.WrapTransient(err, "Document", "WriteFile", "rename into place")
	}
	return path, nil
}

// parseKeys reads the @key directives back out of a rendered SDL.
func parseKeys(sdl string) (map[string][]string, error) {
	doc, err := parser.ParseSchema(&ast.Source{Input: sdl})
	if err != nil {
		return nil, err
	}
	keys := make(map[string][]string)
	for _, def := range doc.Definitions {
		if def.Kind != ast.Object {
			continue
		}
		if fields, ok := keyOf(def); ok {
			keys[def.Name] = fields
		}
	}
	return keys, nil
}

func keyOf(def *ast.Definition) ([]string, bool) {
	d := def.Directives.ForName(DirectiveKey)
	if d == nil {
		return nil, false
	}
	arg := d.Arguments.ForName("fields")
	if arg == nil || arg.Value == nil {
		return nil, false
	}
	return strings.Fields(arg.Value.Raw), true
}

// KeyAccepter reports which key field sets a resolver accepts per type.
type KeyAccepter interface {
	AcceptedKeys() map[string][]string
}

// VerifyKeys fails if the keys advertised by doc differ from the keys the
// accepter resolves. A mismatch is fatal; the service must not start.
func VerifyKeys(doc *Document, accepter KeyAccepter) error {
	advertised := doc.keys
	accepted := accepter.AcceptedKeys()

	names := slices.Sorted(maps.Keys(advertised))
	var extra []string
	for name := range accepted {
		if _, ok := advertised[name]; !ok {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	names = append(names, extra...)

	var problems []string
	for _, name := range names {
		adv, inDoc := advertised[name]
		acc, inResolver := accepted[name]
		switch {
		case !inResolver:
			problems = append(problems, fmt.Sprintf("%s advertises @key(fields: %q) but is not resolvable", name, strings.Join(adv, " ")))
		case !inDoc:
			problems = append(problems, fmt.Sprintf("%s is resolvable but advertises no key", name))
		case !slices.Equal(adv, acc):
			problems = append(problems, fmt.Sprintf("%s advertises %q but resolves %q", name, strings.Join(adv, " "), strings.Join(acc, " ")))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.WrapFatal(fmt.Errorf("%w: %s", errors.ErrKeyMismatch, strings.Join(problems, "; ")),
		"Composer", "VerifyKeys", "key consistency check")
}
