package generator

import (
	"fmt"

	"github.com/resink-ai/resinker/internal/engineerr"
	"github.com/resink-ai/resinker/internal/entitystore"
	"github.com/resink-ai/resinker/internal/ordered"
	"github.com/resink-ai/resinker/internal/specdef"
)

// Render evaluates node against ctx, applying the field-level modifiers in
// the order spec.md §4.3 fixes: from_entity, then $ref, then
// nullable_probability, then the generator itself.
func Render(node *specdef.SchemaNode, schemas map[string]*specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	if node.FromEntity != "" && node.FromField != "" {
		return resolveFromEntity(node, ctx)
	}

	if node.Kind == specdef.KindRef {
		referenced, ok := schemas[node.RefName]
		if !ok {
			return nil, engineerr.New(engineerr.CodeSpecMissingRef, fmt.Sprintf("generator: unresolved $ref %q", node.RefName))
		}
		merged := mergeOverrides(node, referenced)
		return Render(merged, schemas, ctx)
	}

	if node.NullableProbability > 0 {
		if ctx.Prng.Generator().Float64() < node.NullableProbability {
			return nil, nil
		}
	}

	switch node.Kind {
	case specdef.KindPrimitive:
		return renderPrimitive(node, ctx)
	case specdef.KindObject:
		return renderObject(node, schemas, ctx)
	case specdef.KindArray:
		return renderArray(node, schemas, ctx)
	default:
		return nil, fmt.Errorf("generator: unsupported schema kind %q", node.Kind)
	}
}

func mergeOverrides(local, referenced *specdef.SchemaNode) *specdef.SchemaNode {
	merged := *referenced
	if local.FromEntity != "" {
		merged.FromEntity = local.FromEntity
	}
	if local.FromField != "" {
		merged.FromField = local.FromField
	}
	if local.NullableProbability > 0 {
		merged.NullableProbability = local.NullableProbability
	}
	if local.Generator != "" {
		merged.Generator = local.Generator
	}
	if local.Params != nil {
		merged.Params = local.Params
	}
	if local.Format != "" {
		merged.Format = local.Format
	}
	return &merged
}

func resolveFromEntity(node *specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	inst, ok := ctx.Binding[node.FromEntity]
	if !ok {
		return nil, engineerr.New(engineerr.CodeSpecMissingRef,
			fmt.Sprintf("generator: no binding for from_entity %q", node.FromEntity)).
			WithDetail("entity", node.FromEntity).WithDetail("field", node.FromField)
	}
	v, found := entitystore.FieldValue(inst, node.FromField)
	if !found {
		return nil, engineerr.New(engineerr.CodeSpecMissingRef,
			fmt.Sprintf("generator: field %q not found on bound entity %q", node.FromField, node.FromEntity))
	}
	return v, nil
}

func renderObject(node *specdef.SchemaNode, schemas map[string]*specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	obj := ordered.New()
	childCtx := ctx.withCurrentPayload(obj)
	for _, name := range node.FieldOrder {
		field, ok := node.Fields[name]
		if !ok {
			return nil, fmt.Errorf("generator: field %q missing from schema node", name)
		}
		val, err := Render(field, schemas, childCtx)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		obj.Set(name, val)
	}
	return obj, nil
}

func renderArray(node *specdef.SchemaNode, schemas map[string]*specdef.SchemaNode, ctx *RenderContext) (interface{}, error) {
	minItems, maxItems := node.MinItems, node.MaxItems
	if maxItems < minItems {
		maxItems = minItems
	}
	count := minItems
	if maxItems > minItems {
		count = minItems + ctx.Prng.Generator().Intn(maxItems-minItems+1)
	}

	items := make([]interface{}, 0, count)
	for i := 0; i < count; i++ {
		// Each item independently draws its own from_entity candidate for
		// any array-item consumed-entity dependency (spec.md §4.5 step 2),
		// rather than reusing one instance across the whole array.
		itemCtx := ctx.withArrayItemBinding()
		val, err := Render(node.Item, schemas, itemCtx)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, val)
	}
	return items, nil
}

// flatten converts ordered.Map (and nested ordered.Map/slice structures)
// into plain Go maps/slices so internal/generator/expr can index them with
// ordinary map lookups.
func flatten(v interface{}) interface{} {
	switch t := v.(type) {
	case *ordered.Map:
		if t == nil {
			return nil
		}
		out := make(map[string]interface{}, t.Len())
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			out[k] = flatten(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = flatten(e)
		}
		return out
	default:
		return v
	}
}

func flattenFields(obj *ordered.Map) map[string]interface{} {
	if obj == nil {
		return map[string]interface{}{}
	}
	flat := flatten(obj)
	m, _ := flat.(map[string]interface{})
	return m
}
