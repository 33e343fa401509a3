// Package specdef defines the in-memory shape of a fully merged, validated
// Resinker specification. The engine never reads YAML itself beyond the
// minimal loader in this package (see loader.go); by the time a Document
// reaches internal/scheduler it is assumed well-formed.
package specdef

import "time"

// SchemaKind discriminates the tagged-variant schema node.
type SchemaKind string

const (
	KindPrimitive SchemaKind = "primitive"
	KindObject    SchemaKind = "object"
	KindArray     SchemaKind = "array"
	KindRef       SchemaKind = "ref"
)

// PrimitiveType is the scalar type carried by a primitive schema node.
type PrimitiveType string

const (
	TypeString  PrimitiveType = "string"
	TypeNumber  PrimitiveType = "number"
	TypeInteger PrimitiveType = "integer"
	TypeBoolean PrimitiveType = "boolean"
)

// SchemaNode is a tagged variant: primitive, object, array, or $ref.
// Exactly one of the Kind-specific fields is meaningful at a time; the
// loader rejects unknown combinations (SPEC_FULL.md §9 / spec.md §9).
type SchemaNode struct {
	Kind SchemaKind

	// Primitive
	Primitive PrimitiveType

	// Object: ordered field list. FieldOrder mirrors the YAML document
	// order so the generator interpreter emits fields in spec-declared
	// order (spec.md §4.3).
	FieldOrder []string
	Fields     map[string]*SchemaNode

	// Array
	Item     *SchemaNode
	MinItems int
	MaxItems int

	// Ref
	RefName string

	// Common modifiers, valid on any node kind.
	Generator           string
	Params              map[string]interface{}
	Format              string
	NullableProbability float64
	FromEntity          string
	FromField           string
	Description         string
}

// Entity describes a stateful entity kind.
type Entity struct {
	Name            string
	Schema          string // $ref name into Document.Schemas
	PrimaryKey      string // field path within the schema
	StateAttributes map[string]StateAttribute
	// StateAttrOrder preserves declaration order for deterministic
	// iteration when initializing new instances.
	StateAttrOrder []string
}

// StateAttribute is one engine-managed attribute on an entity, outside the
// payload schema.
type StateAttribute struct {
	Type       PrimitiveType
	Default    interface{}
	Nullable   bool
	FromField  string // optional: seed initial value from a payload field
	HasDefault bool
}

// FilterOperator enumerates the closed set of selection-filter operators.
type FilterOperator string

const (
	OpEquals        FilterOperator = "equals"
	OpNotEquals     FilterOperator = "not_equals"
	OpGreaterThan   FilterOperator = "greater_than"
	OpLessThan      FilterOperator = "less_than"
	OpGreaterOrEq   FilterOperator = "greater_or_equal"
	OpLessOrEqual   FilterOperator = "less_or_equal"
	OpIn            FilterOperator = "in"
	OpNotIn         FilterOperator = "not_in"
)

// FilterClause is one conjunct of a selection filter.
type FilterClause struct {
	Field    string
	Operator FilterOperator
	Value    interface{}
}

// SelectionFilter is a conjunction of clauses.
type SelectionFilter struct {
	Clauses []FilterClause
}

// ConsumedEntity describes one entity dependency of an event type.
type ConsumedEntity struct {
	Name            string
	Alias           string
	SelectionFilter SelectionFilter
	MinRequired     int
	// ArrayItemPath is set when the dependency is resolved once per item
	// of a payload array (e.g. "items[].product_id"), rather than once
	// for the whole event.
	ArrayItemPath string
}

// SetAttribute is one assignment inside updates_entity_state.
type SetAttribute struct {
	Attribute       string
	Value           interface{}
	FromPayloadField string
	UseFromPayload  bool
}

// IncrementAttribute is one numeric delta inside updates_entity_state.
type IncrementAttribute struct {
	Attribute string
	Delta     float64
	// DeltaFromPayloadField, when set, reads the numeric delta from a
	// payload field instead of a literal.
	DeltaFromPayloadField string
	UseFromPayload        bool
	Negate                bool
}

// EntityStateUpdate is one element of updates_entity_state: a named
// binding alias plus the attribute mutations to apply to it.
type EntityStateUpdate struct {
	EntityAlias        string
	SetAttributes      []SetAttribute
	IncrementAttributes []IncrementAttribute
}

// ProducesEntity describes an event type that always creates a new entity
// instance.
type ProducesEntity struct {
	Entity string
}

// ProducesOrUpdatesEntity describes an event type that probabilistically
// updates an existing instance instead of creating a new one.
type ProducesOrUpdatesEntity struct {
	Entity                   string
	UpdateExistingProbability float64
}

// MaxActiveInstancesOfState caps how many entities may simultaneously hold
// a given state value.
type MaxActiveInstancesOfState struct {
	Entity    string
	Attribute string
	Value     interface{}
	MaxCount  int
}

// EventType is one producible event.
type EventType struct {
	Name                    string
	PayloadSchema           string // $ref name into Document.Schemas
	ProducesEntity          *ProducesEntity
	ProducesOrUpdatesEntity *ProducesOrUpdatesEntity
	ConsumesEntities        []ConsumedEntity
	UpdatesEntityState      []EntityStateUpdate
	FrequencyWeight         float64
	MaxActiveInstances      *MaxActiveInstancesOfState
}

// ScenarioStepDelay samples a clock advance between two steps.
type ScenarioStepDelay struct {
	MinSeconds float64
	MaxSeconds float64
}

// ScenarioStepLoop repeats a step min..max times with a delay between
// repetitions.
type ScenarioStepLoop struct {
	MinCount          int
	MaxCount          int
	DelayBetweenLoops ScenarioStepDelay
}

// ScenarioStep is one step of a scenario.
type ScenarioStep struct {
	EventType        string
	PayloadOverrides map[string]interface{}
	DelayAfterPrev   *ScenarioStepDelay
	Loop             *ScenarioStepLoop
}

// Scenario is a named multi-step user journey.
type Scenario struct {
	Name                    string
	Description             string
	InitiationWeight        float64
	RequiresInitialEntities []string
	Steps                   []ScenarioStep
}

// TimeProgression controls the simulation clock's starting point and
// reported pacing.
type TimeProgression struct {
	StartTime      string // "now" or an RFC3339 timestamp
	TimeMultiplier float64
}

// SimulationSettings is the top-level run configuration.
type SimulationSettings struct {
	Duration              *time.Duration
	TotalEvents           *int
	InitialEntityCounts   map[string]int
	TimeProgression       TimeProgression
	RandomSeed            int64
	StarvationTickBound   int // default applied by specdef.Defaults
	DefaultInterEventStep time.Duration
}

// SinkFormat is the closed set of emitted-record formats.
type SinkFormat string

const (
	FormatJSON       SinkFormat = "json"
	FormatJSONPretty SinkFormat = "json_pretty"
)

// SinkType is the closed set of sink kinds.
type SinkType string

const (
	SinkStdout SinkType = "stdout"
	SinkFile   SinkType = "file"
	SinkKafka  SinkType = "kafka"
)

// OutputSink is one configured destination.
type OutputSink struct {
	Type    SinkType
	Enabled bool
	Format  SinkFormat

	// file
	FilePath string

	// kafka-style
	TopicMapping        map[string]string
	DefaultTopic        string
	KafkaBrokers        string
	SecurityProtocol    string
	SASLMechanism       string
	SASLPlainUsername   string
	SASLPlainPassword   string

	// DropOnFull switches this sink's back-pressure behavior from
	// "block the scheduler" (default, spec.md §5) to "drop and count".
	DropOnFull bool
	QueueDepth int
}

// Document is a fully merged, immutable specification.
type Document struct {
	Version  string
	Schemas  map[string]*SchemaNode
	Entities map[string]*Entity
	// EntityOrder preserves declaration order, used for deterministic
	// map iteration during diagnostics only (the engine itself must not
	// rely on entity iteration order for scheduling decisions).
	EntityOrder []string

	EventTypes      map[string]*EventType
	EventTypeOrder  []string

	Scenarios      map[string]*Scenario
	ScenarioOrder  []string

	SimulationSettings SimulationSettings
	Outputs            []OutputSink

	// SourceFiles records provenance for diagnostics only (SPEC_FULL.md
	// §3.1); the engine attaches no semantics to it.
	SourceFiles []string
}
