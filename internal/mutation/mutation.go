// Package mutation implements the mutation applier (spec.md §4.7):
// produces_entity, produces_or_updates_entity, and updates_entity_state
// are applied transactionally. The whole commit is built as a Plan first
// (pure, no store writes); Build returning a non-nil Plan guarantees
// Commit cannot fail for a spec-level reason, so a build failure leaves
// the store untouched and the event is not emitted, per spec.md §4.7's
// "entire commit is rolled back" requirement.
package mutation

import (
	"fmt"
	"time"

	"github.com/resink-ai/resinker/internal/entitystore"
	"github.com/resink-ai/resinker/internal/ordered"
	"github.com/resink-ai/resinker/internal/prngstream"
	"github.com/resink-ai/resinker/internal/specdef"
)

// PendingUpdate is one already-validated update to an existing instance.
type PendingUpdate struct {
	Kind  string
	PK    interface{}
	Apply entitystore.Mutator
}

// Plan is the fully validated set of store writes for one event commit.
type Plan struct {
	Create  *entitystore.Instance
	Updates []PendingUpdate
}

// Build validates and assembles a Plan for et's produces*/updates_entity_state
// clauses against the just-generated payload and binding. It performs no
// store writes.
func Build(
	doc *specdef.Document,
	et *specdef.EventType,
	payload *ordered.Map,
	binding map[string]*entitystore.Instance,
	store *entitystore.Store,
	prng *prngstream.Streams,
	now time.Time,
) (*Plan, error) {
	plan := &Plan{}

	switch {
	case et.ProducesEntity != nil:
		inst, err := buildNewInstance(doc, et.ProducesEntity.Entity, payload, now)
		if err != nil {
			return nil, err
		}
		plan.Create = inst

	case et.ProducesOrUpdatesEntity != nil:
		spec := et.ProducesOrUpdatesEntity
		existingCount := store.Len(spec.Entity)
		shouldUpdate := existingCount > 0 && prng.Generator().Float64() < spec.UpdateExistingProbability
		if !shouldUpdate {
			inst, err := buildNewInstance(doc, spec.Entity, payload, now)
			if err != nil {
				return nil, err
			}
			plan.Create = inst
		} else {
			candidates, err := store.Select(spec.Entity, specdef.SelectionFilter{})
			if err != nil {
				return nil, err
			}
			target := candidates[prng.Selection().Intn(len(candidates))]
			pk := target.PrimaryKeyValue
			plan.Updates = append(plan.Updates, PendingUpdate{
				Kind: spec.Entity,
				PK:   pk,
				Apply: func(inst *entitystore.Instance) error {
					inst.Payload = payload
					inst.LastUpdatedAt = now
					return nil
				},
			})
		}
	}

	for _, update := range et.UpdatesEntityState {
		inst, ok := binding[update.EntityAlias]
		if !ok {
			return nil, fmt.Errorf("mutation: updates_entity_state references unbound alias %q", update.EntityAlias)
		}
		entity, ok := doc.Entities[inst.Kind]
		if !ok {
			return nil, fmt.Errorf("mutation: unknown entity kind %q for alias %q", inst.Kind, update.EntityAlias)
		}

		setOps, err := buildSetOps(entity, update, payload)
		if err != nil {
			return nil, err
		}
		incOps, err := buildIncrementOps(entity, update, payload)
		if err != nil {
			return nil, err
		}
		for _, op := range incOps {
			current, ok := inst.State[op.attribute]
			for _, s := range setOps {
				if s.attribute == op.attribute {
					current, ok = s.value, true
				}
			}
			if _, numeric := toFloat(current); !ok || !numeric {
				return nil, fmt.Errorf("mutation: increment_attributes target %q has no numeric current value", op.attribute)
			}
		}

		pk := inst.PrimaryKeyValue
		kind := inst.Kind
		plan.Updates = append(plan.Updates, PendingUpdate{
			Kind: kind,
			PK:   pk,
			Apply: func(target *entitystore.Instance) error {
				for _, op := range setOps {
					target.State[op.attribute] = op.value
				}
				for _, op := range incOps {
					current, ok := target.State[op.attribute]
					if !ok {
						return fmt.Errorf("mutation: increment_attributes target %q has no current value", op.attribute)
					}
					cf, ok := toFloat(current)
					if !ok {
						return fmt.Errorf("mutation: increment_attributes target %q is not numeric", op.attribute)
					}
					delta := op.delta
					if op.negate {
						delta = -delta
					}
					target.State[op.attribute] = cf + delta
				}
				target.LastUpdatedAt = now
				return nil
			},
		})
	}

	return plan, nil
}

type setOp struct {
	attribute string
	value     interface{}
}

type incOp struct {
	attribute string
	delta     float64
	negate    bool
}

func buildSetOps(entity *specdef.Entity, update specdef.EntityStateUpdate, payload *ordered.Map) ([]setOp, error) {
	var ops []setOp
	for _, sa := range update.SetAttributes {
		if _, declared := entity.StateAttributes[sa.Attribute]; !declared {
			return nil, fmt.Errorf("mutation: set_attributes target %q is not a declared state attribute of %q", sa.Attribute, entity.Name)
		}
		value := sa.Value
		if sa.UseFromPayload {
			v, ok := payloadField(payload, sa.FromPayloadField)
			if !ok {
				return nil, fmt.Errorf("mutation: from_payload_field %q not present in generated payload", sa.FromPayloadField)
			}
			value = v
		}
		ops = append(ops, setOp{attribute: sa.Attribute, value: value})
	}
	return ops, nil
}

func buildIncrementOps(entity *specdef.Entity, update specdef.EntityStateUpdate, payload *ordered.Map) ([]incOp, error) {
	var ops []incOp
	for _, ia := range update.IncrementAttributes {
		if _, declared := entity.StateAttributes[ia.Attribute]; !declared {
			return nil, fmt.Errorf("mutation: increment_attributes target %q is not a declared state attribute of %q", ia.Attribute, entity.Name)
		}
		delta := ia.Delta
		if ia.UseFromPayload {
			v, ok := payloadField(payload, ia.DeltaFromPayloadField)
			if !ok {
				return nil, fmt.Errorf("mutation: delta_from_payload_field %q not present in generated payload", ia.DeltaFromPayloadField)
			}
			f, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("mutation: delta_from_payload_field %q is not numeric", ia.DeltaFromPayloadField)
			}
			delta = f
		}
		ops = append(ops, incOp{attribute: ia.Attribute, delta: delta, negate: ia.Negate})
	}
	return ops, nil
}

// NewSeedInstance builds an entity instance from an already-rendered
// payload outside of any event commit, for populating
// initial_entity_counts at run start (spec.md §3 Data Model "Simulation
// settings"). It shares buildNewInstance's primary-key and state-default
// resolution with a produces_entity commit, since an initial instance is
// otherwise indistinguishable from one an event produced.
func NewSeedInstance(doc *specdef.Document, entityName string, payload *ordered.Map, now time.Time) (*entitystore.Instance, error) {
	return buildNewInstance(doc, entityName, payload, now)
}

func buildNewInstance(doc *specdef.Document, entityName string, payload *ordered.Map, now time.Time) (*entitystore.Instance, error) {
	entity, ok := doc.Entities[entityName]
	if !ok {
		return nil, fmt.Errorf("mutation: unknown entity kind %q", entityName)
	}
	pk, ok := payloadField(payload, entity.PrimaryKey)
	if !ok {
		return nil, fmt.Errorf("mutation: primary key field %q not present in generated payload for %q", entity.PrimaryKey, entityName)
	}

	state := make(map[string]interface{}, len(entity.StateAttrOrder))
	for _, name := range entity.StateAttrOrder {
		attr := entity.StateAttributes[name]
		switch {
		case attr.FromField != "":
			v, ok := payloadField(payload, attr.FromField)
			if !ok {
				return nil, fmt.Errorf("mutation: state attribute %q from_field %q not present in payload", name, attr.FromField)
			}
			state[name] = v
		case attr.HasDefault:
			state[name] = attr.Default
		case attr.Nullable:
			state[name] = nil
		default:
			state[name] = zeroValue(attr.Type)
		}
	}

	return &entitystore.Instance{
		Kind:            entityName,
		PrimaryKeyValue: pk,
		Payload:         payload,
		State:           state,
		CreatedAt:       now,
		LastUpdatedAt:   now,
	}, nil
}

func zeroValue(t specdef.PrimitiveType) interface{} {
	switch t {
	case specdef.TypeString:
		return ""
	case specdef.TypeNumber:
		return 0.0
	case specdef.TypeInteger:
		return 0
	case specdef.TypeBoolean:
		return false
	default:
		return nil
	}
}

// Commit writes a previously Built Plan to the store. Build's validation
// makes this effectively infallible outside of a genuine race (the
// scheduler is single-threaded, so none is expected in practice).
func Commit(store *entitystore.Store, plan *Plan) error {
	if plan.Create != nil {
		if err := store.Insert(plan.Create); err != nil {
			return err
		}
	}
	for _, u := range plan.Updates {
		if err := store.Update(u.Kind, u.PK, u.Apply); err != nil {
			return err
		}
	}
	return nil
}
