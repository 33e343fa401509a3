package specdef

import "testing"

func validDoc() *Document {
	return &Document{
		Schemas: map[string]*SchemaNode{
			"UserPayload": {Kind: KindObject, FieldOrder: []string{"user_id"},
				Fields: map[string]*SchemaNode{"user_id": {Kind: KindPrimitive, Primitive: TypeString}}},
		},
		Entities: map[string]*Entity{
			"User": {Name: "User", Schema: "UserPayload", PrimaryKey: "user_id",
				StateAttributes: map[string]StateAttribute{"is_logged_in": {Type: TypeBoolean}}},
		},
		EventTypes: map[string]*EventType{
			"UserRegistered": {
				Name:           "UserRegistered",
				PayloadSchema:  "UserPayload",
				ProducesEntity: &ProducesEntity{Entity: "User"},
			},
			"UserLoggedIn": {
				Name: "UserLoggedIn",
				ConsumesEntities: []ConsumedEntity{
					{Name: "User", Alias: "subject", MinRequired: 1, SelectionFilter: SelectionFilter{
						Clauses: []FilterClause{{Field: "state.is_logged_in", Operator: OpEquals, Value: false}},
					}},
				},
				UpdatesEntityState: []EntityStateUpdate{
					{EntityAlias: "subject", SetAttributes: []SetAttribute{{Attribute: "is_logged_in", Value: true}}},
				},
			},
		},
		Scenarios: map[string]*Scenario{
			"Onboarding": {Name: "Onboarding", Steps: []ScenarioStep{{EventType: "UserRegistered"}, {EventType: "UserLoggedIn"}}},
		},
	}
}

func TestValidateStructureAcceptsAWellFormedDocument(t *testing.T) {
	if errs := ValidateStructure(validDoc()); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateStructureCatchesUnknownPayloadSchema(t *testing.T) {
	doc := validDoc()
	doc.EventTypes["UserRegistered"].PayloadSchema = "NoSuchSchema"
	errs := ValidateStructure(doc)
	if len(errs) == 0 {
		t.Fatal("expected an error for an unknown payload_schema reference")
	}
}

func TestValidateStructureCatchesUnknownProducesEntity(t *testing.T) {
	doc := validDoc()
	doc.EventTypes["UserRegistered"].ProducesEntity = &ProducesEntity{Entity: "NoSuchEntity"}
	errs := ValidateStructure(doc)
	if len(errs) == 0 {
		t.Fatal("expected an error for an unknown produces_entity reference")
	}
}

func TestValidateStructureCatchesUnknownConsumedEntity(t *testing.T) {
	doc := validDoc()
	doc.EventTypes["UserLoggedIn"].ConsumesEntities[0].Name = "NoSuchEntity"
	errs := ValidateStructure(doc)
	if len(errs) == 0 {
		t.Fatal("expected an error for an unknown consumes_entities reference")
	}
}

func TestValidateStructureCatchesUndeclaredStateAttributeInFilter(t *testing.T) {
	doc := validDoc()
	doc.EventTypes["UserLoggedIn"].ConsumesEntities[0].SelectionFilter.Clauses[0].Field = "state.no_such_attr"
	errs := ValidateStructure(doc)
	if len(errs) == 0 {
		t.Fatal("expected an error for a selection filter referencing an undeclared state attribute")
	}
}

func TestValidateStructureCatchesUndefinedUpdateAlias(t *testing.T) {
	doc := validDoc()
	doc.EventTypes["UserLoggedIn"].UpdatesEntityState[0].EntityAlias = "no_such_alias"
	errs := ValidateStructure(doc)
	if len(errs) == 0 {
		t.Fatal("expected an error for updates_entity_state referencing an undefined alias")
	}
}

func TestValidateStructureCatchesUnknownScenarioStepEventType(t *testing.T) {
	doc := validDoc()
	doc.Scenarios["Onboarding"].Steps[0].EventType = "NoSuchEventType"
	errs := ValidateStructure(doc)
	if len(errs) == 0 {
		t.Fatal("expected an error for a scenario step referencing an unknown event type")
	}
}
