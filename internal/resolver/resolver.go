// Package resolver implements the dependency resolver / candidate
// selector (spec.md §4.5): for an event type, determines whether its
// consumed entities have enough matching candidates and chooses bindings.
package resolver

import (
	"github.com/resink-ai/resinker/internal/entitystore"
	"github.com/resink-ai/resinker/internal/prngstream"
	"github.com/resink-ai/resinker/internal/specdef"
)

// ConsumedResolution is the resolver's answer for one consumes_entities
// element.
type ConsumedResolution struct {
	Consumed specdef.ConsumedEntity

	// Candidates is every matching instance found by the entity store
	// (spec.md §4.5 step 1).
	Candidates []*entitystore.Instance

	// Chosen is the single bound instance, set for non-array-item
	// dependencies. Array-item dependencies (ArrayItemPath != "") leave
	// this nil; see Resolution.ArrayItemCandidates.
	Chosen *entitystore.Instance
}

// Resolution is the resolver's verdict for one event type at one tick.
type Resolution struct {
	EventType string
	PerEntity []ConsumedResolution
	// Feasible is true iff every consumed entity met min_required and any
	// max_active_instances_of_state budget is not exhausted (spec.md
	// §4.5).
	Feasible bool
}

// Binding returns alias/kind -> chosen instance for every non-array-item
// consumed entity, ready to hand to the generator's RenderContext.Binding.
func (r *Resolution) Binding() map[string]*entitystore.Instance {
	out := map[string]*entitystore.Instance{}
	for _, pe := range r.PerEntity {
		if pe.Chosen == nil {
			continue
		}
		key := pe.Consumed.Alias
		if key == "" {
			key = pe.Consumed.Name
		}
		out[key] = pe.Chosen
	}
	return out
}

// ArrayItemCandidates returns, keyed the same way Binding keys its entries,
// the full candidate pool for every array-item consumed-entity dependency
// (ArrayItemPath != "", spec.md §4.5 step 2's items[].product_id +
// from_entity example). internal/generator draws one candidate per array
// item from this pool via Pick instead of sharing a single bound instance
// across every item the way a scalar from_entity reference does.
func (r *Resolution) ArrayItemCandidates() map[string][]*entitystore.Instance {
	out := map[string][]*entitystore.Instance{}
	for _, pe := range r.PerEntity {
		if pe.Consumed.ArrayItemPath == "" {
			continue
		}
		key := pe.Consumed.Alias
		if key == "" {
			key = pe.Consumed.Name
		}
		out[key] = pe.Candidates
	}
	return out
}

// Resolve evaluates one event type's consumed-entity dependencies against
// the store's current state, per spec.md §4.5.
func Resolve(eventType *specdef.EventType, store *entitystore.Store, prng *prngstream.Streams) (*Resolution, error) {
	res := &Resolution{EventType: eventType.Name, Feasible: true}

	for _, consumed := range eventType.ConsumesEntities {
		candidates, err := store.Select(consumed.Name, consumed.SelectionFilter)
		if err != nil {
			return nil, err
		}

		minRequired := consumed.MinRequired
		if minRequired <= 0 {
			minRequired = 1
		}

		pe := ConsumedResolution{Consumed: consumed, Candidates: candidates}
		if len(candidates) < minRequired {
			res.Feasible = false
		} else if consumed.ArrayItemPath == "" {
			pe.Chosen = Pick(candidates, prng)
		}
		res.PerEntity = append(res.PerEntity, pe)
	}

	if eventType.MaxActiveInstances != nil {
		budget := eventType.MaxActiveInstances
		if store.CountWhere(budget.Entity, budget.Attribute, budget.Value) >= budget.MaxCount {
			res.Feasible = false
		}
	}

	return res, nil
}

// Pick draws one candidate uniformly from candidates using the
// `selection` PRNG sub-stream (spec.md §4.5 step 4: "uniform... to
// preserve determinism").
func Pick(candidates []*entitystore.Instance, prng *prngstream.Streams) *entitystore.Instance {
	if len(candidates) == 0 {
		return nil
	}
	idx := prng.Selection().Intn(len(candidates))
	return candidates[idx]
}
