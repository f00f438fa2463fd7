package schema

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/c360/fedgraph/errors"
)

// Conflict is one composition problem found by Merge.
type Conflict struct {
	Type   string
	Field  string
	Reason string
}

func (c Conflict) String() string {
	if c.Field == "" {
		return fmt.Sprintf("%s: %s", c.Type, c.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", c.Type, c.Field, c.Reason)
}

// CompositionError lists every conflict found while merging subgraphs.
type CompositionError struct {
	Conflicts []Conflict
}

func (e *CompositionError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return fmt.Sprintf("composition failed with %d conflict(s): %s", len(e.Conflicts), strings.Join(parts, "; "))
}

// SuperField is a field of the merged graph.
type SuperField struct {
	Name string
	Type string
	// Owners are the services that resolve the field.
	Owners []string
	// ExternalIn are the services that declare the field @external.
	ExternalIn []string

	typ *ast.Type
}

// SuperType is an entity type of the merged graph.
type SuperType struct {
	Name      string
	KeyFields []string
	Services  []string
	Fields    []SuperField
}

// Field returns the merged field called name.
func (t SuperType) Field(name string) (SuperField, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return SuperField{}, false
}

// Supergraph is the union of several subgraph schemas.
type Supergraph struct {
	Types   []SuperType
	Queries []SuperField
}

// Type returns the merged type called name.
func (s *Supergraph) Type(name string) (SuperType, bool) {
	for _, t := range s.Types {
		if t.Name == name {
			return t, true
		}
	}
	return SuperType{}, false
}

// SDL renders the merged graph without federation annotations.
func (s *Supergraph) SDL() string {
	doc := &ast.SchemaDocument{}
	for _, t := range s.Types {
		def := &ast.Definition{Kind: ast.Object, Name: t.Name}
		for _, f := range t.Fields {
			def.Fields = append(def.Fields, &ast.FieldDefinition{Name: f.Name, Type: f.typ})
		}
		doc.Definitions = append(doc.Definitions, def)
	}
	if len(s.Queries) > 0 {
		query := &ast.Definition{Kind: ast.Object, Name: "Query"}
		for _, q := range s.Queries {
			query.Fields = append(query.Fields, &ast.FieldDefinition{Name: q.Name, Type: q.typ})
		}
		doc.Definitions = append(doc.Definitions, query)
	}
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	return buf.String()
}

type mergedField struct {
	field     SuperField
	shareable map[string]bool
}

type mergedType struct {
	name     string
	key      []string
	keyFrom  string
	services []string
	order    []string
	fields   map[string]*mergedField
}

// Merge parses the SDL of every document and unions their types. It returns
// a CompositionError if two services own the same non-shareable field,
// disagree on a field type or an entity key, or if an @external field has no
// owner.
func Merge(docs ...*Document) (*Supergraph, error) {
	var (
		conflicts []Conflict
		order     []string
		types     = make(map[string]*mergedType)
		queries   []SuperField
		queryIdx  = make(map[string]int)
	)

	for _, doc := range docs {
		parsed, err := parser.ParseSchema(&ast.Source{Name: doc.FileName(), Input: doc.SDL})
		if err != nil {
			return nil, errors.WrapInvalid(err, "Composer", "Merge", "parse "+doc.Service)
		}

		for _, def := range parsed.Definitions {
			if def.Kind != ast.Object {
				continue
			}
			if def.Name == "Query" {
				for _, f := range def.Fields {
					if i, dup := queryIdx[f.Name]; dup {
						conflicts = append(conflicts, Conflict{Type: "Query", Field: f.Name,
							Reason: fmt.Sprintf("root field declared by %s and %s", queries[i].Owners[0], doc.Service)})
						continue
					}
					queryIdx[f.Name] = len(queries)
					queries = append(queries, SuperField{Name: f.Name, Type: f.Type.String(), Owners: []string{doc.Service}, typ: f.Type})
				}
				continue
			}

			key, _ := keyOf(def)
			mt, seen := types[def.Name]
			if !seen {
				mt = &mergedType{name: def.Name, key: key, keyFrom: doc.Service, fields: make(map[string]*mergedField)}
				types[def.Name] = mt
				order = append(order, def.Name)
			} else if !slices.Equal(mt.key, key) {
				conflicts = append(conflicts, Conflict{Type: def.Name, Reason: fmt.Sprintf(
					"key %q in %s differs from %q in %s",
					strings.Join(key, " "), doc.Service, strings.Join(mt.key, " "), mt.keyFrom)})
			}
			mt.services = append(mt.services, doc.Service)

			for _, f := range def.Fields {
				mf, ok := mt.fields[f.Name]
				if !ok {
					mf = &mergedField{
						field:     SuperField{Name: f.Name, Type: f.Type.String(), typ: f.Type},
						shareable: make(map[string]bool),
					}
					mt.fields[f.Name] = mf
					mt.order = append(mt.order, f.Name)
				} else if mf.field.Type != f.Type.String() {
					conflicts = append(conflicts, Conflict{Type: def.Name, Field: f.Name, Reason: fmt.Sprintf(
						"type %s in %s differs from %s", f.Type.String(), doc.Service, mf.field.Type)})
				}

				if f.Directives.ForName(DirectiveExternal) != nil {
					mf.field.ExternalIn = append(mf.field.ExternalIn, doc.Service)
					continue
				}
				mf.field.Owners = append(mf.field.Owners, doc.Service)
				mf.shareable[doc.Service] = f.Directives.ForName(DirectiveShareable) != nil
			}
		}
	}

	sg := &Supergraph{Queries: queries}
	for _, name := range order {
		mt := types[name]
		st := SuperType{Name: name, KeyFields: mt.key, Services: mt.services}
		for _, fname := range mt.order {
			mf := mt.fields[fname]
			st.Fields = append(st.Fields, mf.field)

			switch {
			case len(mf.field.Owners) == 0:
				conflicts = append(conflicts, Conflict{Type: name, Field: fname, Reason: fmt.Sprintf(
					"declared @external in %s but owned by no service", strings.Join(mf.field.ExternalIn, ", "))})
			case len(mf.field.Owners) > 1 && !slices.Contains(mt.key, fname) && !allShareable(mf):
				conflicts = append(conflicts, Conflict{Type: name, Field: fname, Reason: fmt.Sprintf(
					"owned by %s without @shareable", strings.Join(mf.field.Owners, ", "))})
			}
		}
		sg.Types = append(sg.Types, st)
	}

	if len(conflicts) > 0 {
		return sg, &CompositionError{Conflicts: conflicts}
	}
	return sg, nil
}

func allShareable(mf *mergedField) bool {
	for _, owner := range mf.field.Owners {
		if !mf.shareable[owner] {
			return false
		}
	}
	return true
}
