package graphql

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/facade"
	"github.com/c360/fedgraph/registry"
	"github.com/c360/fedgraph/schema"
)

// Object is a response object; keys keep selection order.
type Object = orderedmap.OrderedMap[string, any]

// rootSource is the parent value of root fields.
type rootSource struct{}

// failedValue marks a null whose error is already recorded.
type failedValue struct{}

var failed = failedValue{}

// execution holds the state of one request.
type execution struct {
	*Executor
	vars      map[string]any
	fragments ast.FragmentDefinitionList
	errors    gqlerror.List
}

type fieldGroup struct {
	key    string
	fields []*ast.Field
}

func (ex *execution) addError(err *gqlerror.Error) {
	ex.errors = append(ex.errors, err)
}

func appendPath(path ast.Path, elem ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

// executeObject resolves set against src. A false result means a non-null
// field failed and the object itself is null.
func (ex *execution) executeObject(ctx context.Context, def *ast.Definition, set ast.SelectionSet, src any, path ast.Path) (*Object, bool) {
	groups := ex.collectFields(def.Name, set, nil, map[string]int{}, map[string]bool{})
	out := orderedmap.New[string, any](len(groups))

	for _, g := range groups {
		f := g.fields[0]
		fieldPath := appendPath(path, ast.PathName(g.key))

		if f.Name == "__typename" {
			out.Set(g.key, def.Name)
			continue
		}
		fd := def.Fields.ForName(f.Name)
		if fd == nil {
			ex.addError(newError(fieldPath, CodeValidationFailed, "field %q is not supported", f.Name))
			out.Set(g.key, nil)
			continue
		}

		v := ex.resolveField(ctx, def, f, src, fieldPath)
		val, ok := ex.complete(ctx, fd.Type, g.fields, v, fieldPath)
		if !ok {
			return nil, false
		}
		out.Set(g.key, val)
	}
	return out, true
}

// collectFields groups the fields of set that apply to typeName by
// response key, in selection order.
func (ex *execution) collectFields(typeName string, set ast.SelectionSet, groups []fieldGroup, index map[string]int, visited map[string]bool) []fieldGroup {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if !ex.include(s.Directives) {
				continue
			}
			key := s.Alias
			if key == "" {
				key = s.Name
			}
			if i, ok := index[key]; ok {
				groups[i].fields = append(groups[i].fields, s)
				continue
			}
			index[key] = len(groups)
			groups = append(groups, fieldGroup{key: key, fields: []*ast.Field{s}})

		case *ast.InlineFragment:
			if !ex.include(s.Directives) || !ex.applies(typeName, s.TypeCondition) {
				continue
			}
			groups = ex.collectFields(typeName, s.SelectionSet, groups, index, visited)

		case *ast.FragmentSpread:
			if !ex.include(s.Directives) || visited[s.Name] {
				continue
			}
			visited[s.Name] = true
			frag := ex.fragments.ForName(s.Name)
			if frag == nil || !ex.applies(typeName, frag.TypeCondition) {
				continue
			}
			groups = ex.collectFields(typeName, frag.SelectionSet, groups, index, visited)
		}
	}
	return groups
}

func (ex *execution) include(dirs ast.DirectiveList) bool {
	if d := dirs.ForName("skip"); d != nil {
		if skip, _ := d.ArgumentMap(ex.vars)["if"].(bool); skip {
			return false
		}
	}
	if d := dirs.ForName("include"); d != nil {
		if include, _ := d.ArgumentMap(ex.vars)["if"].(bool); !include {
			return false
		}
	}
	return true
}

// applies reports whether a fragment on condition applies to typeName.
func (ex *execution) applies(typeName, condition string) bool {
	if condition == "" || condition == typeName {
		return true
	}
	cond := ex.schema.Types[condition]
	if cond == nil {
		return false
	}
	for _, possible := range ex.schema.GetPossibleTypes(cond) {
		if possible.Name == typeName {
			return true
		}
	}
	return false
}

func (ex *execution) resolveField(ctx context.Context, def *ast.Definition, f *ast.Field, src any, path ast.Path) any {
	switch s := src.(type) {
	case rootSource:
		return ex.resolveRoot(ctx, f, path)
	case entity.Object:
		return ex.objectField(def.Name, s, f.Name, path)
	case entity.Record:
		return s[f.Name]
	case map[string]any:
		return s[f.Name]
	default:
		return nil
	}
}

func (ex *execution) resolveRoot(ctx context.Context, f *ast.Field, path ast.Path) any {
	switch f.Name {
	case schema.FieldService:
		return map[string]any{"sdl": ex.doc.SDL}
	case schema.FieldEntities:
		return ex.resolveEntities(ctx, f, path)
	}

	op, ok := ex.ops.Get(f.Name)
	if !ok {
		ex.addError(newError(path, CodeInternal, "no operation is bound to %q", f.Name))
		return failed
	}
	v, err := op.Resolve(ctx, f.ArgumentMap(ex.vars))
	if err == nil {
		v, err = ex.owned(v)
	}
	if err != nil {
		ex.addError(mapError(err, path))
		return failed
	}
	return v
}

// owned strips external values from the objects an operation returns,
// including those directly inside a returned list.
func (ex *execution) owned(v any) (any, error) {
	switch val := v.(type) {
	case entity.Object:
		return facade.Owned(ex.catalog, val)
	case []entity.Object:
		out := make([]entity.Object, len(val))
		for i, obj := range val {
			o, err := facade.Owned(ex.catalog, obj)
			if err != nil {
				return nil, err
			}
			out[i] = o
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			o, err := ex.owned(item)
			if err != nil {
				return nil, err
			}
			out[i] = o
		}
		return out, nil
	}
	return v, nil
}

func (ex *execution) resolveEntities(ctx context.Context, f *ast.Field, path ast.Path) any {
	raw, _ := f.ArgumentMap(ex.vars)[schema.ArgReps].([]any)
	results := ex.resolver.ResolveBatch(ctx, ex.resolver.Decode(raw))

	out := make([]any, len(results))
	for i, res := range results {
		out[i] = ex.fromResolved(res, appendPath(path, ast.PathIndex(i)))
	}
	return out
}

func (ex *execution) fromResolved(res entity.Resolved, path ast.Path) any {
	if !res.Found() {
		ex.addError(notFoundError(path, res.TypeName, res.Err))
		return failed
	}
	return entity.Object{TypeName: res.TypeName, Fields: res.Record}
}

// objectField reads name from obj. External non-key fields are never
// answered here.
func (ex *execution) objectField(typeName string, obj entity.Object, name string, path ast.Path) any {
	if t, err := ex.catalog.Describe(typeName); err == nil {
		if fd, ok := t.Field(name); ok && fd.Ownership == registry.External && !t.IsKeyField(name) {
			ex.addError(newError(path, CodeExternalField,
				"%s.%s is resolved by the service that owns %s", typeName, name, typeName))
			return failed
		}
	}
	return obj.Fields[name]
}

// complete converts v to a response value of typ. A false result means a
// null reached a non-null position and the parent must become null.
func (ex *execution) complete(ctx context.Context, typ *ast.Type, fields []*ast.Field, v any, path ast.Path) (any, bool) {
	out, ok := ex.completeValue(ctx, typ, fields, v, path)
	if !ok {
		return nil, !typ.NonNull
	}
	if out == nil {
		if typ.NonNull {
			ex.addError(newError(path, CodeInternal, "cannot return null for non-nullable field"))
			return nil, false
		}
		return nil, true
	}
	return out, true
}

// completeValue returns nil, false when v failed with an error already
// recorded.
func (ex *execution) completeValue(ctx context.Context, typ *ast.Type, fields []*ast.Field, v any, path ast.Path) (any, bool) {
	if _, isFailed := v.(failedValue); isFailed {
		return nil, false
	}
	if isNil(v) {
		return nil, true
	}
	if typ.Elem != nil {
		return ex.completeList(ctx, typ.Elem, fields, v, path)
	}

	def := ex.schema.Types[typ.NamedType]
	if def == nil {
		ex.addError(newError(path, CodeInternal, "unknown type %s", typ.NamedType))
		return nil, false
	}

	switch def.Kind {
	case ast.Scalar, ast.Enum:
		out, err := serializeLeaf(def, v)
		if err != nil {
			ex.addError(newError(path, CodeInternal, "%s", err))
			return nil, false
		}
		return out, true

	case ast.Object, ast.Union, ast.Interface:
		if ref, ok := v.(entity.Ref); ok {
			v = ex.fromResolved(ex.resolver.Resolve(ctx, ref.TypeName, ref.Key), path)
			if _, isFailed := v.(failedValue); isFailed {
				return nil, false
			}
		}
		target := def
		if def.Kind != ast.Object {
			obj, ok := v.(entity.Object)
			if !ok || !ex.applies(obj.TypeName, def.Name) {
				ex.addError(newError(path, CodeInternal, "value is not a member of %s", def.Name))
				return nil, false
			}
			target = ex.schema.Types[obj.TypeName]
		}
		switch v.(type) {
		case entity.Object, entity.Record, map[string]any:
		default:
			ex.addError(newError(path, CodeInternal, "%T cannot represent %s", v, def.Name))
			return nil, false
		}
		obj, ok := ex.executeObject(ctx, target, mergeSelections(fields), v, path)
		if !ok {
			return nil, false
		}
		return obj, true
	}

	ex.addError(newError(path, CodeInternal, "%s is not an output type", def.Name))
	return nil, false
}

func (ex *execution) completeList(ctx context.Context, elem *ast.Type, fields []*ast.Field, v any, path ast.Path) (any, bool) {
	items, ok := toSlice(v)
	if !ok {
		ex.addError(newError(path, CodeInternal, "expected a list, got %T", v))
		return nil, false
	}
	items = ex.resolveRefs(ctx, items, path)

	out := make([]any, len(items))
	for i, item := range items {
		val, ok := ex.complete(ctx, elem, fields, item, appendPath(path, ast.PathIndex(i)))
		if !ok {
			return nil, false
		}
		out[i] = val
	}
	return out, true
}

// resolveRefs resolves every Ref in items with one batch.
func (ex *execution) resolveRefs(ctx context.Context, items []any, path ast.Path) []any {
	var (
		idx  []int
		reps []entity.Representation
	)
	for i, item := range items {
		if ref, ok := item.(entity.Ref); ok {
			idx = append(idx, i)
			reps = append(reps, entity.Representation{TypeName: ref.TypeName, Key: ref.Key})
		}
	}
	if len(reps) == 0 {
		return items
	}

	results := ex.resolver.ResolveBatch(ctx, reps)
	out := slices.Clone(items)
	for j, i := range idx {
		out[i] = ex.fromResolved(results[j], appendPath(path, ast.PathIndex(i)))
	}
	return out
}

func mergeSelections(fields []*ast.Field) ast.SelectionSet {
	if len(fields) == 1 {
		return fields[0].SelectionSet
	}
	var set ast.SelectionSet
	for _, f := range fields {
		set = append(set, f.SelectionSet...)
	}
	return set
}

// serializeLeaf converts v to the response value of a scalar or enum.
func serializeLeaf(def *ast.Definition, v any) (any, error) {
	if def.Kind == ast.Enum {
		s, ok := v.(string)
		if !ok || def.EnumValues.ForName(s) == nil {
			return nil, fmt.Errorf("%v is not a value of %s", v, def.Name)
		}
		return s, nil
	}
	if !registry.IsScalar(def.Name) {
		return v, nil
	}
	out, ok := entity.CoerceScalar(def.Name, v)
	if !ok {
		return nil, fmt.Errorf("%s cannot represent %v (%T)", def.Name, v, v)
	}
	return out, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func toSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
