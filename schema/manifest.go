package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/fedgraph/errors"
)

//go:embed manifest.schema.json
var manifestSchema []byte

// Manifest is a machine-readable summary of a composed document.
type Manifest struct {
	Service string          `json:"service" yaml:"service"`
	Types   []ManifestType  `json:"types" yaml:"types"`
	Queries []ManifestQuery `json:"queries" yaml:"queries"`
}

// ManifestType describes one entity type.
type ManifestType struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Keys        []string        `json:"keys" yaml:"keys"`
	Fields      []ManifestField `json:"fields" yaml:"fields"`
}

// ManifestField describes one field and who resolves it.
type ManifestField struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	Ownership string `json:"ownership" yaml:"ownership"`
	Shareable bool   `json:"shareable,omitempty" yaml:"shareable,omitempty"`
}

// ManifestQuery describes one root query field.
type ManifestQuery struct {
	Name string        `json:"name" yaml:"name"`
	Type string        `json:"type" yaml:"type"`
	Args []ManifestArg `json:"args,omitempty" yaml:"args,omitempty"`
}

// ManifestArg describes one root field argument.
type ManifestArg struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// NewManifest builds the manifest of doc.
func NewManifest(doc *Document) *Manifest {
	m := &Manifest{
		Service: doc.Service,
		Types:   []ManifestType{},
		Queries: []ManifestQuery{},
	}
	keys := doc.Keys()
	for _, t := range doc.Types() {
		mt := ManifestType{Name: t.Name, Description: t.Description, Keys: keys[t.Name]}
		for _, f := range t.Fields {
			mt.Fields = append(mt.Fields, ManifestField{
				Name:      f.Name,
				Type:      f.Type.String(),
				Ownership: f.Ownership.String(),
				Shareable: f.Shareable,
			})
		}
		m.Types = append(m.Types, mt)
	}
	for _, q := range doc.Queries() {
		mq := ManifestQuery{Name: q.Name, Type: q.Type.String()}
		for _, a := range q.Args {
			mq.Args = append(mq.Args, ManifestArg{Name: a.Name, Type: a.Type.String()})
		}
		m.Queries = append(m.Queries, mq)
	}
	return m
}

// Validate checks the manifest against the embedded JSON Schema.
func (m *Manifest) Validate() error {
	data, err := json.Marshal(m)
	if err != nil {
		return errors.WrapInvalid(err, "Manifest", "Validate", "marshal manifest")
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(manifestSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.WrapInvalid(err, "Manifest", "Validate", "run schema validation")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidData, strings.Join(msgs, "; ")),
			"Manifest", "Validate", "manifest validation")
	}
	return nil
}

// JSON returns the indented JSON encoding of the manifest.
func (m *Manifest) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errors.WrapInvalid(err, "Manifest", "JSON", "marshal manifest")
	}
	return append(data, '\n'), nil
}

// YAML returns the YAML encoding of the manifest.
func (m *Manifest) YAML() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Manifest", "YAML", "marshal manifest")
	}
	return data, nil
}
