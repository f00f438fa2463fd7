package schema

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/registry"
)

// Federation names shared by the composer, the executor and Merge.
const (
	DirectiveKey       = "key"
	DirectiveExternal  = "external"
	DirectiveShareable = "shareable"
	DirectiveLink      = "link"

	// FederationURL is the federation version the SDL links against.
	FederationURL = "https://specs.apollo.dev/federation/v2.3"

	EntityUnion   = "_Entity"
	ServiceType   = "_Service"
	AnyScalar     = "_Any"
	FieldEntities = "_entities"
	FieldService  = "_service"
	ArgReps       = "representations"
)

// Prelude declares the federation scalars and directives used by the SDL.
const Prelude = `scalar _Any
scalar _FieldSet
scalar link__Import

directive @link(url: String!, import: [link__Import]) repeatable on SCHEMA
directive @key(fields: _FieldSet!) repeatable on OBJECT | INTERFACE
directive @external on FIELD_DEFINITION | OBJECT
directive @shareable on FIELD_DEFINITION | OBJECT
`

var serviceRE = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Compose renders the registry of service into a Document. The output is
// deterministic: the same registry always yields byte-identical SDL.
func Compose(service string, reg *registry.Registry) (*Document, error) {
	if !serviceRE.MatchString(service) {
		return nil, errors.WrapFatal(fmt.Errorf("invalid service name %q", service),
			"Composer", "Compose", "service name validation")
	}
	if reg == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Composer", "Compose", "registry check")
	}

	types := reg.Types()
	queries := reg.Queries()

	sdl := format(subgraphDocument(types, queries, false))
	exec := Prelude + "\n" + format(subgraphDocument(types, queries, true))

	loaded, err := gqlparser.LoadSchema(&ast.Source{Name: service + ".graphql", Input: exec})
	if err != nil {
		return nil, errors.WrapFatal(err, "Composer", "Compose", "load composed schema")
	}

	keys, err := parseKeys(sdl)
	if err != nil {
		return nil, errors.WrapFatal(err, "Composer", "Compose", "parse advertised keys")
	}

	return &Document{
		Service:       service,
		SDL:           sdl,
		ExecutableSDL: exec,
		types:         types,
		queries:       queries,
		keys:          keys,
		schema:        loaded,
	}, nil
}

func subgraphDocument(types []registry.EntityType, queries []registry.QueryField, executable bool) *ast.SchemaDocument {
	doc := &ast.SchemaDocument{
		SchemaExtension: ast.SchemaDefinitionList{{
			Directives: ast.DirectiveList{linkDirective()},
		}},
	}

	for _, t := range types {
		def := &ast.Definition{
			Kind:        ast.Object,
			Name:        t.Name,
			Description: t.Description,
			Directives: ast.DirectiveList{
				directive(DirectiveKey, stringArg("fields", strings.Join(t.KeyFields, " "))),
			},
		}
		for _, f := range t.Fields {
			fd := &ast.FieldDefinition{
				Name:        f.Name,
				Description: f.Description,
				Type:        f.Type,
			}
			if f.Ownership == registry.External {
				fd.Directives = append(fd.Directives, directive(DirectiveExternal))
			}
			if f.Shareable {
				fd.Directives = append(fd.Directives, directive(DirectiveShareable))
			}
			def.Fields = append(def.Fields, fd)
		}
		doc.Definitions = append(doc.Definitions, def)
	}

	query := &ast.Definition{Kind: ast.Object, Name: "Query"}
	for _, q := range queries {
		fd := &ast.FieldDefinition{
			Name:        q.Name,
			Description: q.Description,
			Type:        q.Type,
		}
		for _, a := range q.Args {
			fd.Arguments = append(fd.Arguments, &ast.ArgumentDefinition{
				Name:        a.Name,
				Description: a.Description,
				Type:        a.Type,
			})
		}
		query.Fields = append(query.Fields, fd)
	}

	if executable {
		if len(types) > 0 {
			union := &ast.Definition{Kind: ast.Union, Name: EntityUnion}
			for _, t := range types {
				union.Types = append(union.Types, t.Name)
			}
			doc.Definitions = append(doc.Definitions, union)
			query.Fields = append(query.Fields, &ast.FieldDefinition{
				Name: FieldEntities,
				Arguments: ast.ArgumentDefinitionList{{
					Name: ArgReps,
					Type: registry.ListOf(registry.NonNull(AnyScalar)),
				}},
				Type: registry.ListOf(registry.Nullable(EntityUnion)),
			})
		}
		doc.Definitions = append(doc.Definitions, &ast.Definition{
			Kind: ast.Object,
			Name: ServiceType,
			Fields: ast.FieldList{{
				Name: "sdl",
				Type: registry.NonNull(registry.String),
			}},
		})
		query.Fields = append(query.Fields, &ast.FieldDefinition{
			Name: FieldService,
			Type: registry.NonNull(ServiceType),
		})
	}

	if len(query.Fields) > 0 {
		doc.Definitions = append(doc.Definitions, query)
	}
	return doc
}

// linkDirective imports the federation directives the composer emits.
func linkDirective() *ast.Directive {
	imports := &ast.Value{Kind: ast.ListValue}
	for _, name := range []string{DirectiveKey, DirectiveExternal, DirectiveShareable} {
		imports.Children = append(imports.Children, &ast.ChildValue{
			Value: &ast.Value{Kind: ast.StringValue, Raw: "@" + name},
		})
	}
	return directive(DirectiveLink,
		stringArg("url", FederationURL),
		&ast.Argument{Name: "import", Value: imports},
	)
}

func directive(name string, args ...*ast.Argument) *ast.Directive {
	return &ast.Directive{Name: name, Arguments: args}
}

func stringArg(name, value string) *ast.Argument {
	return &ast.Argument{
		Name:  name,
		Value: &ast.Value{Kind: ast.StringValue, Raw: value},
	}
}

func format(doc *ast.SchemaDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	return buf.String()
}
