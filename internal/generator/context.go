// Package generator implements the schema-node interpreter (spec.md §4.3):
// given a schema node and a RenderContext, produce a conforming value.
package generator

import (
	"github.com/resink-ai/resinker/internal/entitystore"
	"github.com/resink-ai/resinker/internal/ordered"
	"github.com/resink-ai/resinker/internal/prngstream"
	"github.com/resink-ai/resinker/internal/resolver"
	"github.com/resink-ai/resinker/internal/simclock"
)

// RealisticProvider is the engine's contract with an external
// realistic-value library (spec.md §4.3: "interface generate(method_path,
// params) -> value"). The engine never imports a concrete implementation;
// internal/generator/fakerdefault supplies a default one.
type RealisticProvider interface {
	Generate(methodPath string, params map[string]interface{}) (interface{}, error)
}

// RenderContext bundles everything a schema node needs to render a value
// (spec.md §4.3).
type RenderContext struct {
	Clock *simclock.Clock
	Prng  *prngstream.Streams
	Store *entitystore.Store

	// Binding maps an alias (or, absent an alias, an entity kind) to the
	// instance a from_entity/field reference should resolve against.
	Binding map[string]*entitystore.Instance

	// ArrayItemCandidates maps an alias/kind (same keying as Binding) to the
	// candidate pool for a consumed-entity dependency declared against an
	// array item (resolver.Resolution.ArrayItemCandidates). renderArray
	// picks a fresh candidate from this pool for each item it renders,
	// overriding Binding just for that item's subtree (spec.md §4.5 step 2).
	ArrayItemCandidates map[string][]*entitystore.Instance

	// ScenarioOverrides is payload_overrides from a scenario step, applied
	// by the caller on top of the generated payload (spec.md §5 step 6),
	// not consulted by the interpreter itself.
	ScenarioOverrides map[string]interface{}

	// CurrentPayloadPartial is the object currently under construction;
	// derived/from_entity resolution at any depth sees this as "the
	// current object's fields" (spec.md §4.3).
	CurrentPayloadPartial *ordered.Map

	RealisticProvider RealisticProvider
}

// clone returns a shallow copy of ctx suitable for passing to a child
// field/item render, so reassigning CurrentPayloadPartial for a nested
// object doesn't affect the parent's context.
func (c *RenderContext) clone() *RenderContext {
	cp := *c
	return &cp
}

func (c *RenderContext) withCurrentPayload(obj *ordered.Map) *RenderContext {
	cp := c.clone()
	cp.CurrentPayloadPartial = obj
	return cp
}

// withArrayItemBinding returns a child context whose Binding has a freshly
// picked instance substituted in for every key in ArrayItemCandidates, so
// each array item independently resolves its own from_entity reference
// (spec.md §4.5 step 2) instead of sharing one instance across the array.
func (c *RenderContext) withArrayItemBinding() *RenderContext {
	if len(c.ArrayItemCandidates) == 0 {
		return c
	}
	cp := c.clone()
	binding := make(map[string]*entitystore.Instance, len(c.Binding)+len(c.ArrayItemCandidates))
	for k, v := range c.Binding {
		binding[k] = v
	}
	for key, candidates := range c.ArrayItemCandidates {
		binding[key] = resolver.Pick(candidates, c.Prng)
	}
	cp.Binding = binding
	return cp
}
