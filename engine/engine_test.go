package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/resink-ai/resinker/internal/specdef"
)

// onboardingDoc mirrors spec.md §8 S1: UserRegistered (weight 10, produces
// User, capped at one not-yet-logged-in instance) followed by
// UserLoggedIn (weight 30, consumes a not-yet-logged-in User).
func onboardingDoc(totalEvents int, outputs []specdef.OutputSink) *specdef.Document {
	userPayloadSchema := &specdef.SchemaNode{
		Kind:       specdef.KindObject,
		FieldOrder: []string{"user_id"},
		Fields: map[string]*specdef.SchemaNode{
			"user_id": {Kind: specdef.KindPrimitive, Generator: "uuid_v4"},
		},
	}
	loginPayloadSchema := &specdef.SchemaNode{
		Kind:       specdef.KindObject,
		FieldOrder: []string{"user_id"},
		Fields: map[string]*specdef.SchemaNode{
			"user_id": {Kind: specdef.KindPrimitive, FromEntity: "subject", FromField: "user_id"},
		},
	}

	te := totalEvents
	return &specdef.Document{
		Schemas: map[string]*specdef.SchemaNode{
			"UserPayload":  userPayloadSchema,
			"LoginPayload": loginPayloadSchema,
		},
		Entities: map[string]*specdef.Entity{
			"User": {
				Name:       "User",
				PrimaryKey: "user_id",
				StateAttributes: map[string]specdef.StateAttribute{
					"is_logged_in": {Type: specdef.TypeBoolean, Default: false, HasDefault: true},
				},
				StateAttrOrder: []string{"is_logged_in"},
			},
		},
		EntityOrder: []string{"User"},
		EventTypes: map[string]*specdef.EventType{
			"UserRegistered": {
				Name:            "UserRegistered",
				PayloadSchema:   "UserPayload",
				ProducesEntity:  &specdef.ProducesEntity{Entity: "User"},
				FrequencyWeight: 10,
				MaxActiveInstances: &specdef.MaxActiveInstancesOfState{
					Entity: "User", Attribute: "is_logged_in", Value: false, MaxCount: 1,
				},
			},
			"UserLoggedIn": {
				Name:          "UserLoggedIn",
				PayloadSchema: "LoginPayload",
				ConsumesEntities: []specdef.ConsumedEntity{
					{
						Name:        "User",
						Alias:       "subject",
						MinRequired: 1,
						SelectionFilter: specdef.SelectionFilter{Clauses: []specdef.FilterClause{
							{Field: "state.is_logged_in", Operator: specdef.OpEquals, Value: false},
						}},
					},
				},
				UpdatesEntityState: []specdef.EntityStateUpdate{
					{EntityAlias: "subject", SetAttributes: []specdef.SetAttribute{{Attribute: "is_logged_in", Value: true}}},
				},
				FrequencyWeight: 30,
			},
		},
		EventTypeOrder: []string{"UserRegistered", "UserLoggedIn"},
		SimulationSettings: specdef.SimulationSettings{
			TotalEvents:           &te,
			RandomSeed:            42,
			DefaultInterEventStep: time.Millisecond,
			StarvationTickBound:   300,
			InitialEntityCounts:   map[string]int{"User": 0},
		},
		Outputs: outputs,
	}
}

func TestRunEndToEndWritesNDJSONAndReportsCompletion(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "events.ndjson")

	doc := onboardingDoc(2, []specdef.OutputSink{
		{Type: specdef.SinkFile, Enabled: true, Format: specdef.FormatJSON, FilePath: outPath},
	})

	result, diagnostics, err := Run(context.Background(), doc, RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range diagnostics {
		// drain to completion; engine.Run already closed the channel.
	}

	if result.EventsEmitted != 2 {
		t.Fatalf("expected 2 events emitted, got %d", result.EventsEmitted)
	}
	if result.TerminationReason != "completed" {
		t.Fatalf("expected completed termination, got %q", result.TerminationReason)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("unexpected error opening sink output: %v", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 NDJSON lines, got %d", len(lines))
	}

	var first, second map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unexpected error decoding first line: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unexpected error decoding second line: %v", err)
	}
	if first["event_type"] != "UserRegistered" {
		t.Fatalf("expected first event to be UserRegistered, got %v", first["event_type"])
	}
	if second["event_type"] != "UserLoggedIn" {
		t.Fatalf("expected second event to be UserLoggedIn, got %v", second["event_type"])
	}

	firstPayload, _ := first["payload"].(map[string]interface{})
	secondPayload, _ := second["payload"].(map[string]interface{})
	if firstPayload["user_id"] != secondPayload["user_id"] {
		t.Fatalf("expected user_id to be stable across both events: %v vs %v", firstPayload["user_id"], secondPayload["user_id"])
	}
}

func TestRunRejectsAStructurallyInvalidDocument(t *testing.T) {
	doc := onboardingDoc(1, nil)
	doc.EventTypes["UserRegistered"].PayloadSchema = "DoesNotExist"

	if _, _, err := Run(context.Background(), doc, RunOptions{}); err == nil {
		t.Fatal("expected an error for a payload schema referencing an undefined schema")
	}
}
