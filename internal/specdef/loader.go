package specdef

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and decodes a single already-merged specification file.
// It performs no cross-file import resolution (that is the external
// loader/importer's job per spec.md §1/§6) and only the structural
// validation described in SPEC_FULL.md §6 (schema/ref cycle detection).
func LoadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("specdef: read %s: %w", path, err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("specdef: parse %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("specdef: %s: empty document", path)
	}
	doc, err := decodeDocument(root.Content[0])
	if err != nil {
		return nil, fmt.Errorf("specdef: %s: %w", path, err)
	}
	doc.SourceFiles = []string{path}
	applyDefaults(doc)
	if err := checkRefCycles(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadMerged decodes each file in paths independently and merges them into
// one Document: later files' entries win on key collision (schemas,
// entities, event types, scenarios), while each key's first-seen position
// is kept in the corresponding *Order slice. The last file to set
// simulation_settings or outputs wins wholesale for those blocks. This is
// the "multi-file spec" shape SPEC_FULL.md §3.1 describes the engine's
// loader as supporting, short of the full external importer's semantic
// merge rules (§6).
func LoadMerged(paths []string) (*Document, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("specdef: LoadMerged requires at least one path")
	}

	merged := &Document{
		Schemas:    map[string]*SchemaNode{},
		Entities:   map[string]*Entity{},
		EventTypes: map[string]*EventType{},
		Scenarios:  map[string]*Scenario{},
	}

	for _, path := range paths {
		doc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}

		if doc.Version != "" {
			merged.Version = doc.Version
		}
		mergeSchemaMap(merged, doc)
		mergeEntityMap(merged, doc)
		mergeEventTypeMap(merged, doc)
		mergeScenarioMap(merged, doc)
		// Every per-file doc.SimulationSettings already has LoadFile's
		// defaults applied, so the last file always wins wholesale.
		merged.SimulationSettings = doc.SimulationSettings
		if len(doc.Outputs) > 0 {
			merged.Outputs = doc.Outputs
		}
		merged.SourceFiles = append(merged.SourceFiles, doc.SourceFiles...)
	}

	applyDefaults(merged)
	if err := checkRefCycles(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// mergeSchemaMap merges doc's schemas into merged. Schemas carry no
// declared ordering of their own in the spec (unlike entities/event
// types/scenarios), so plain map iteration is sufficient here.
func mergeSchemaMap(merged, doc *Document) {
	for name, node := range doc.Schemas {
		merged.Schemas[name] = node
	}
}

func mergeEntityMap(merged, doc *Document) {
	for _, name := range doc.EntityOrder {
		if _, exists := merged.Entities[name]; !exists {
			merged.EntityOrder = append(merged.EntityOrder, name)
		}
		merged.Entities[name] = doc.Entities[name]
	}
}

func mergeEventTypeMap(merged, doc *Document) {
	for _, name := range doc.EventTypeOrder {
		if _, exists := merged.EventTypes[name]; !exists {
			merged.EventTypeOrder = append(merged.EventTypeOrder, name)
		}
		merged.EventTypes[name] = doc.EventTypes[name]
	}
}

func mergeScenarioMap(merged, doc *Document) {
	for _, name := range doc.ScenarioOrder {
		if _, exists := merged.Scenarios[name]; !exists {
			merged.ScenarioOrder = append(merged.ScenarioOrder, name)
		}
		merged.Scenarios[name] = doc.Scenarios[name]
	}
}

func applyDefaults(doc *Document) {
	if doc.SimulationSettings.StarvationTickBound <= 0 {
		doc.SimulationSettings.StarvationTickBound = 300
	}
	if doc.SimulationSettings.DefaultInterEventStep <= 0 {
		doc.SimulationSettings.DefaultInterEventStep = time.Second
	}
	if doc.SimulationSettings.TimeProgression.TimeMultiplier == 0 {
		doc.SimulationSettings.TimeProgression.TimeMultiplier = 1.0
	}
	if doc.SimulationSettings.TimeProgression.StartTime == "" {
		doc.SimulationSettings.TimeProgression.StartTime = "now"
	}
}

func mappingLookup(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func mappingKeys(n *yaml.Node) []string {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keys = append(keys, n.Content[i].Value)
	}
	return keys
}

func decodeDocument(n *yaml.Node) (*Document, error) {
	doc := &Document{
		Schemas:  map[string]*SchemaNode{},
		Entities: map[string]*Entity{},
		EventTypes: map[string]*EventType{},
		Scenarios:  map[string]*Scenario{},
	}

	if v := mappingLookup(n, "version"); v != nil {
		doc.Version = v.Value
	}

	if schemas := mappingLookup(n, "schemas"); schemas != nil {
		for _, name := range mappingKeys(schemas) {
			node, err := decodeSchemaNode(mappingLookup(schemas, name))
			if err != nil {
				return nil, fmt.Errorf("schemas.%s: %w", name, err)
			}
			doc.Schemas[name] = node
		}
	}

	if entities := mappingLookup(n, "entities"); entities != nil {
		for _, name := range mappingKeys(entities) {
			ent, err := decodeEntity(name, mappingLookup(entities, name))
			if err != nil {
				return nil, fmt.Errorf("entities.%s: %w", name, err)
			}
			doc.Entities[name] = ent
			doc.EntityOrder = append(doc.EntityOrder, name)
		}
	}

	if events := mappingLookup(n, "event_types"); events != nil {
		for _, name := range mappingKeys(events) {
			et, err := decodeEventType(name, mappingLookup(events, name))
			if err != nil {
				return nil, fmt.Errorf("event_types.%s: %w", name, err)
			}
			doc.EventTypes[name] = et
			doc.EventTypeOrder = append(doc.EventTypeOrder, name)
		}
	}

	if scenarios := mappingLookup(n, "scenarios"); scenarios != nil {
		for _, name := range mappingKeys(scenarios) {
			sc, err := decodeScenario(name, mappingLookup(scenarios, name))
			if err != nil {
				return nil, fmt.Errorf("scenarios.%s: %w", name, err)
			}
			doc.Scenarios[name] = sc
			doc.ScenarioOrder = append(doc.ScenarioOrder, name)
		}
	}

	if settings := mappingLookup(n, "simulation_settings"); settings != nil {
		ss, err := decodeSimulationSettings(settings)
		if err != nil {
			return nil, fmt.Errorf("simulation_settings: %w", err)
		}
		doc.SimulationSettings = ss
	}

	if outputs := mappingLookup(n, "outputs"); outputs != nil && outputs.Kind == yaml.SequenceNode {
		for i, item := range outputs.Content {
			sink, err := decodeOutputSink(item)
			if err != nil {
				return nil, fmt.Errorf("outputs[%d]: %w", i, err)
			}
			doc.Outputs = append(doc.Outputs, sink)
		}
	}

	return doc, nil
}

func decodeSchemaNode(n *yaml.Node) (*SchemaNode, error) {
	if n == nil {
		return nil, fmt.Errorf("missing schema node")
	}
	if ref := mappingLookup(n, "$ref"); ref != nil {
		node := &SchemaNode{Kind: KindRef, RefName: ref.Value}
		decodeCommonModifiers(n, node)
		return node, nil
	}

	typ := ""
	if t := mappingLookup(n, "type"); t != nil {
		typ = t.Value
	}

	var node *SchemaNode
	switch typ {
	case "object":
		node = &SchemaNode{Kind: KindObject, Fields: map[string]*SchemaNode{}}
		if props := mappingLookup(n, "properties"); props != nil {
			for _, name := range mappingKeys(props) {
				child, err := decodeSchemaNode(mappingLookup(props, name))
				if err != nil {
					return nil, fmt.Errorf("properties.%s: %w", name, err)
				}
				node.Fields[name] = child
				node.FieldOrder = append(node.FieldOrder, name)
			}
		}
	case "array":
		node = &SchemaNode{Kind: KindArray}
		if items := mappingLookup(n, "items"); items != nil {
			child, err := decodeSchemaNode(items)
			if err != nil {
				return nil, fmt.Errorf("items: %w", err)
			}
			node.Item = child
		}
		node.MinItems = intField(n, "min_items", 0)
		node.MaxItems = intField(n, "max_items", node.MinItems)
	case "string":
		node = &SchemaNode{Kind: KindPrimitive, Primitive: TypeString}
	case "number":
		node = &SchemaNode{Kind: KindPrimitive, Primitive: TypeNumber}
	case "integer":
		node = &SchemaNode{Kind: KindPrimitive, Primitive: TypeInteger}
	case "boolean":
		node = &SchemaNode{Kind: KindPrimitive, Primitive: TypeBoolean}
	default:
		return nil, fmt.Errorf("unknown or missing schema type %q", typ)
	}

	decodeCommonModifiers(n, node)
	return node, nil
}

func decodeCommonModifiers(n *yaml.Node, node *SchemaNode) {
	if g := mappingLookup(n, "generator"); g != nil {
		node.Generator = g.Value
	}
	if p := mappingLookup(n, "params"); p != nil {
		var params map[string]interface{}
		_ = p.Decode(&params)
		node.Params = params
	}
	if f := mappingLookup(n, "format"); f != nil {
		node.Format = f.Value
	}
	if np := mappingLookup(n, "nullable_probability"); np != nil {
		node.NullableProbability = floatValue(np)
	}
	if fe := mappingLookup(n, "from_entity"); fe != nil {
		node.FromEntity = fe.Value
	}
	if ff := mappingLookup(n, "field"); ff != nil {
		node.FromField = ff.Value
	}
	if d := mappingLookup(n, "description"); d != nil {
		node.Description = d.Value
	}
}

func decodeEntity(name string, n *yaml.Node) (*Entity, error) {
	ent := &Entity{Name: name, StateAttributes: map[string]StateAttribute{}}
	if s := mappingLookup(n, "schema"); s != nil {
		ent.Schema = refValue(s)
	}
	if pk := mappingLookup(n, "primary_key"); pk != nil {
		ent.PrimaryKey = pk.Value
	}
	if attrs := mappingLookup(n, "state_attributes"); attrs != nil {
		for _, attrName := range mappingKeys(attrs) {
			an := mappingLookup(attrs, attrName)
			sa := StateAttribute{}
			if t := mappingLookup(an, "type"); t != nil {
				sa.Type = PrimitiveType(t.Value)
			}
			if dv := mappingLookup(an, "default"); dv != nil {
				sa.HasDefault = true
				_ = dv.Decode(&sa.Default)
			}
			if nb := mappingLookup(an, "nullable"); nb != nil {
				sa.Nullable = nb.Value == "true"
			}
			if ff := mappingLookup(an, "from_field"); ff != nil {
				sa.FromField = ff.Value
			}
			ent.StateAttributes[attrName] = sa
			ent.StateAttrOrder = append(ent.StateAttrOrder, attrName)
		}
	}
	return ent, nil
}

// refValue allows "schema: Name" or "schema: {$ref: Name}".
func refValue(n *yaml.Node) string {
	if n.Kind == yaml.ScalarNode {
		return n.Value
	}
	if r := mappingLookup(n, "$ref"); r != nil {
		return r.Value
	}
	return ""
}

func decodeSelectionFilter(n *yaml.Node) SelectionFilter {
	var sf SelectionFilter
	if n == nil || n.Kind != yaml.SequenceNode {
		return sf
	}
	for _, item := range n.Content {
		var clause FilterClause
		if f := mappingLookup(item, "field"); f != nil {
			clause.Field = f.Value
		}
		if o := mappingLookup(item, "operator"); o != nil {
			clause.Operator = FilterOperator(o.Value)
		}
		if v := mappingLookup(item, "value"); v != nil {
			var val interface{}
			_ = v.Decode(&val)
			clause.Value = val
		}
		sf.Clauses = append(sf.Clauses, clause)
	}
	return sf
}

func decodeEventType(name string, n *yaml.Node) (*EventType, error) {
	et := &EventType{Name: name}
	if ps := mappingLookup(n, "payload_schema"); ps != nil {
		et.PayloadSchema = refValue(ps)
	}
	if pe := mappingLookup(n, "produces_entity"); pe != nil {
		et.ProducesEntity = &ProducesEntity{Entity: refValue(pe)}
	}
	if poru := mappingLookup(n, "produces_or_updates_entity"); poru != nil {
		p := &ProducesOrUpdatesEntity{}
		if e := mappingLookup(poru, "entity"); e != nil {
			p.Entity = refValue(e)
		}
		if pr := mappingLookup(poru, "update_existing_probability"); pr != nil {
			p.UpdateExistingProbability = floatValue(pr)
		}
		et.ProducesOrUpdatesEntity = p
	}
	if consumes := mappingLookup(n, "consumes_entities"); consumes != nil && consumes.Kind == yaml.SequenceNode {
		for _, item := range consumes.Content {
			ce := ConsumedEntity{MinRequired: 1}
			if nm := mappingLookup(item, "name"); nm != nil {
				ce.Name = nm.Value
			}
			if al := mappingLookup(item, "alias"); al != nil {
				ce.Alias = al.Value
			} else {
				ce.Alias = ce.Name
			}
			if sf := mappingLookup(item, "selection_filter"); sf != nil {
				ce.SelectionFilter = decodeSelectionFilter(sf)
			}
			if mr := mappingLookup(item, "min_required"); mr != nil {
				ce.MinRequired = intValue(mr)
			}
			if aip := mappingLookup(item, "array_item_path"); aip != nil {
				ce.ArrayItemPath = aip.Value
			}
			et.ConsumesEntities = append(et.ConsumesEntities, ce)
		}
	}
	if updates := mappingLookup(n, "updates_entity_state"); updates != nil && updates.Kind == yaml.SequenceNode {
		for _, item := range updates.Content {
			upd := EntityStateUpdate{}
			if al := mappingLookup(item, "entity_alias"); al != nil {
				upd.EntityAlias = al.Value
			}
			if sets := mappingLookup(item, "set_attributes"); sets != nil && sets.Kind == yaml.SequenceNode {
				for _, sa := range sets.Content {
					set := SetAttribute{}
					if a := mappingLookup(sa, "attribute"); a != nil {
						set.Attribute = a.Value
					}
					if fp := mappingLookup(sa, "from_payload_field"); fp != nil {
						set.FromPayloadField = fp.Value
						set.UseFromPayload = true
					} else if v := mappingLookup(sa, "value"); v != nil {
						var val interface{}
						_ = v.Decode(&val)
						set.Value = val
					}
					upd.SetAttributes = append(upd.SetAttributes, set)
				}
			}
			if incs := mappingLookup(item, "increment_attributes"); incs != nil && incs.Kind == yaml.SequenceNode {
				for _, ia := range incs.Content {
					inc := IncrementAttribute{}
					if a := mappingLookup(ia, "attribute"); a != nil {
						inc.Attribute = a.Value
					}
					if fp := mappingLookup(ia, "from_payload_field"); fp != nil {
						inc.DeltaFromPayloadField = fp.Value
						inc.UseFromPayload = true
					} else if d := mappingLookup(ia, "delta"); d != nil {
						inc.Delta = floatValue(d)
					}
					if ng := mappingLookup(ia, "negate"); ng != nil {
						inc.Negate = ng.Value == "true"
					}
					upd.IncrementAttributes = append(upd.IncrementAttributes, inc)
				}
			}
			et.UpdatesEntityState = append(et.UpdatesEntityState, upd)
		}
	}
	if fw := mappingLookup(n, "frequency_weight"); fw != nil {
		et.FrequencyWeight = floatValue(fw)
	}
	if mai := mappingLookup(n, "max_active_instances_of_state"); mai != nil {
		m := &MaxActiveInstancesOfState{}
		if e := mappingLookup(mai, "entity"); e != nil {
			m.Entity = refValue(e)
		}
		if a := mappingLookup(mai, "attribute"); a != nil {
			m.Attribute = a.Value
		}
		if v := mappingLookup(mai, "value"); v != nil {
			var val interface{}
			_ = v.Decode(&val)
			m.Value = val
		}
		if mc := mappingLookup(mai, "max_count"); mc != nil {
			m.MaxCount = intValue(mc)
		}
		et.MaxActiveInstances = m
	}
	return et, nil
}

func decodeScenario(name string, n *yaml.Node) (*Scenario, error) {
	sc := &Scenario{Name: name}
	if d := mappingLookup(n, "description"); d != nil {
		sc.Description = d.Value
	}
	if iw := mappingLookup(n, "initiation_weight"); iw != nil {
		sc.InitiationWeight = floatValue(iw)
	}
	if req := mappingLookup(n, "requires_initial_entities"); req != nil && req.Kind == yaml.SequenceNode {
		for _, item := range req.Content {
			sc.RequiresInitialEntities = append(sc.RequiresInitialEntities, item.Value)
		}
	}
	if steps := mappingLookup(n, "steps"); steps != nil && steps.Kind == yaml.SequenceNode {
		for _, item := range steps.Content {
			step := ScenarioStep{}
			if et := mappingLookup(item, "event_type"); et != nil {
				step.EventType = et.Value
			}
			if po := mappingLookup(item, "payload_overrides"); po != nil {
				var overrides map[string]interface{}
				_ = po.Decode(&overrides)
				step.PayloadOverrides = overrides
			}
			if delay := mappingLookup(item, "delay_after_previous_step"); delay != nil {
				step.DelayAfterPrev = decodeStepDelay(delay)
			}
			if loop := mappingLookup(item, "loop"); loop != nil {
				l := &ScenarioStepLoop{}
				l.MinCount = intField(loop, "min_count", 1)
				l.MaxCount = intField(loop, "max_count", l.MinCount)
				if dbl := mappingLookup(loop, "delay_between_loops"); dbl != nil {
					if d := decodeStepDelay(dbl); d != nil {
						l.DelayBetweenLoops = *d
					}
				}
				step.Loop = l
			}
			sc.Steps = append(sc.Steps, step)
		}
	}
	return sc, nil
}

func decodeStepDelay(n *yaml.Node) *ScenarioStepDelay {
	d := &ScenarioStepDelay{}
	if mn := mappingLookup(n, "min_seconds"); mn != nil {
		d.MinSeconds = floatValue(mn)
	}
	if mx := mappingLookup(n, "max_seconds"); mx != nil {
		d.MaxSeconds = floatValue(mx)
	} else {
		d.MaxSeconds = d.MinSeconds
	}
	return d
}

func decodeSimulationSettings(n *yaml.Node) (SimulationSettings, error) {
	var ss SimulationSettings
	if d := mappingLookup(n, "duration"); d != nil {
		dur, err := time.ParseDuration(d.Value)
		if err != nil {
			return ss, fmt.Errorf("duration: %w", err)
		}
		ss.Duration = &dur
	}
	if te := mappingLookup(n, "total_events"); te != nil {
		v := intValue(te)
		ss.TotalEvents = &v
	}
	if counts := mappingLookup(n, "initial_entity_counts"); counts != nil {
		ss.InitialEntityCounts = map[string]int{}
		for _, name := range mappingKeys(counts) {
			ss.InitialEntityCounts[name] = intValue(mappingLookup(counts, name))
		}
	}
	if tp := mappingLookup(n, "time_progression"); tp != nil {
		if st := mappingLookup(tp, "start_time"); st != nil {
			ss.TimeProgression.StartTime = st.Value
		}
		if tm := mappingLookup(tp, "time_multiplier"); tm != nil {
			ss.TimeProgression.TimeMultiplier = floatValue(tm)
		}
	}
	if rs := mappingLookup(n, "random_seed"); rs != nil {
		ss.RandomSeed = int64(intValue(rs))
	}
	if stb := mappingLookup(n, "starvation_tick_bound"); stb != nil {
		ss.StarvationTickBound = intValue(stb)
	}
	if step := mappingLookup(n, "default_inter_event_step"); step != nil {
		dur, err := time.ParseDuration(step.Value)
		if err == nil {
			ss.DefaultInterEventStep = dur
		}
	}
	return ss, nil
}

func decodeOutputSink(n *yaml.Node) (OutputSink, error) {
	var sink OutputSink
	sink.QueueDepth = 256
	if t := mappingLookup(n, "type"); t != nil {
		sink.Type = SinkType(t.Value)
	}
	if e := mappingLookup(n, "enabled"); e != nil {
		sink.Enabled = e.Value == "true"
	}
	if f := mappingLookup(n, "format"); f != nil {
		sink.Format = SinkFormat(f.Value)
	} else {
		sink.Format = FormatJSON
	}
	if fp := mappingLookup(n, "file_path"); fp != nil {
		sink.FilePath = fp.Value
	}
	if tm := mappingLookup(n, "topic_mapping"); tm != nil {
		sink.TopicMapping = map[string]string{}
		for _, name := range mappingKeys(tm) {
			sink.TopicMapping[name] = mappingLookup(tm, name).Value
		}
	}
	if dt := mappingLookup(n, "default_topic"); dt != nil {
		sink.DefaultTopic = dt.Value
	}
	if kb := mappingLookup(n, "kafka_brokers"); kb != nil {
		sink.KafkaBrokers = kb.Value
	}
	if sp := mappingLookup(n, "security_protocol"); sp != nil {
		sink.SecurityProtocol = sp.Value
	}
	if sm := mappingLookup(n, "sasl_mechanism"); sm != nil {
		sink.SASLMechanism = sm.Value
	}
	if su := mappingLookup(n, "sasl_plain_username"); su != nil {
		sink.SASLPlainUsername = su.Value
	}
	if spw := mappingLookup(n, "sasl_plain_password"); spw != nil {
		sink.SASLPlainPassword = spw.Value
	}
	if dof := mappingLookup(n, "drop_on_full"); dof != nil {
		sink.DropOnFull = dof.Value == "true"
	}
	if qd := mappingLookup(n, "queue_depth"); qd != nil {
		sink.QueueDepth = intValue(qd)
	}
	return sink, nil
}

func intField(n *yaml.Node, key string, def int) int {
	if v := mappingLookup(n, key); v != nil {
		return intValue(v)
	}
	return def
}

func intValue(n *yaml.Node) int {
	i, err := strconv.Atoi(n.Value)
	if err != nil {
		f, _ := strconv.ParseFloat(n.Value, 64)
		return int(f)
	}
	return i
}

func floatValue(n *yaml.Node) float64 {
	f, _ := strconv.ParseFloat(n.Value, 64)
	return f
}
