package specdef

import "fmt"

// checkRefCycles rejects cyclic $ref chains in Schemas, per spec.md §9:
// "the schema graph is validated upstream to be acyclic... reject cycles
// at load." The engine's own loader enforces this defensively even though
// the full validator is an external collaborator (spec.md §1/§7).
func checkRefCycles(doc *Document) error {
	visiting := map[string]bool{}
	resolved := map[string]bool{}

	var walk func(name string, path []string) error
	walk = func(name string, path []string) error {
		if resolved[name] {
			return nil
		}
		if visiting[name] {
			return fmt.Errorf("specdef: circular $ref: %v -> %s", path, name)
		}
		node, ok := doc.Schemas[name]
		if !ok {
			return fmt.Errorf("specdef: $ref to unknown schema %q (path %v)", name, path)
		}
		visiting[name] = true
		defer delete(visiting, name)
		if err := walkNode(node, path, walk); err != nil {
			return err
		}
		resolved[name] = true
		return nil
	}

	for name := range doc.Schemas {
		if err := walk(name, []string{name}); err != nil {
			return err
		}
	}
	return nil
}

func walkNode(node *SchemaNode, path []string, walk func(string, []string) error) error {
	switch node.Kind {
	case KindRef:
		return walk(node.RefName, append(append([]string{}, path...), node.RefName))
	case KindObject:
		for _, field := range node.FieldOrder {
			if err := walkNode(node.Fields[field], path, walk); err != nil {
				return err
			}
		}
	case KindArray:
		if node.Item != nil {
			return walkNode(node.Item, path, walk)
		}
	}
	return nil
}

// ValidateStructure performs the structural checks SPEC_FULL.md §6 assigns
// to the engine's own loader: every referenced schema/entity/event type
// exists, and every selection filter's "state.<name>" clause names a
// declared state attribute. It is NOT a substitute for the external
// validator (spec.md §7): it exists so `resinker validate` has something
// concrete to run before handing the document to the engine.
func ValidateStructure(doc *Document) []error {
	var errs []error

	resolveRef := func(name string) bool {
		_, ok := doc.Schemas[name]
		return ok
	}

	for name, ent := range doc.Entities {
		if ent.Schema != "" && !resolveRef(ent.Schema) {
			errs = append(errs, fmt.Errorf("entity %q references unknown schema %q", name, ent.Schema))
		}
	}

	for name, et := range doc.EventTypes {
		if et.PayloadSchema != "" && !resolveRef(et.PayloadSchema) {
			errs = append(errs, fmt.Errorf("event_type %q references unknown payload_schema %q", name, et.PayloadSchema))
		}
		if et.ProducesEntity != nil {
			if _, ok := doc.Entities[et.ProducesEntity.Entity]; !ok {
				errs = append(errs, fmt.Errorf("event_type %q produces_entity references unknown entity %q", name, et.ProducesEntity.Entity))
			}
		}
		if et.ProducesOrUpdatesEntity != nil {
			if _, ok := doc.Entities[et.ProducesOrUpdatesEntity.Entity]; !ok {
				errs = append(errs, fmt.Errorf("event_type %q produces_or_updates_entity references unknown entity %q", name, et.ProducesOrUpdatesEntity.Entity))
			}
		}
		for _, ce := range et.ConsumesEntities {
			ent, ok := doc.Entities[ce.Name]
			if !ok {
				errs = append(errs, fmt.Errorf("event_type %q consumes_entities references unknown entity %q", name, ce.Name))
				continue
			}
			for _, clause := range ce.SelectionFilter.Clauses {
				if err := validateFilterField(clause.Field, ent); err != nil {
					errs = append(errs, fmt.Errorf("event_type %q consumes_entities[%s]: %w", name, ce.Alias, err))
				}
			}
		}
		for _, upd := range et.UpdatesEntityState {
			found := false
			for _, ce := range et.ConsumesEntities {
				if ce.Alias == upd.EntityAlias {
					found = true
				}
			}
			if et.ProducesEntity != nil || et.ProducesOrUpdatesEntity != nil {
				found = true // alias may refer to the produced/updated entity
			}
			if !found {
				errs = append(errs, fmt.Errorf("event_type %q updates_entity_state references undefined alias %q", name, upd.EntityAlias))
			}
		}
	}

	for name, sc := range doc.Scenarios {
		for i, step := range sc.Steps {
			if _, ok := doc.EventTypes[step.EventType]; !ok {
				errs = append(errs, fmt.Errorf("scenario %q step[%d] references unknown event_type %q", name, i, step.EventType))
			}
		}
	}

	return errs
}

func validateFilterField(field string, ent *Entity) error {
	name := field
	switch {
	case hasPrefix(field, "state."):
		name = field[len("state."):]
		if _, ok := ent.StateAttributes[name]; !ok {
			return fmt.Errorf("filter references undefined state attribute %q on entity %q", name, ent.Name)
		}
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
