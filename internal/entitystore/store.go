// Package entitystore implements the engine's in-memory entity store
// (spec.md §4.4): insert, update, select (filtered), count_where. The
// store is exclusively owned by the scheduler (spec.md §5) — concurrent
// callers (e.g. the diagnostics server) only ever call Select/CountWhere.
package entitystore

import (
	"fmt"
	"sync"
	"time"

	"github.com/resink-ai/resinker/internal/ordered"
	"github.com/resink-ai/resinker/internal/specdef"
)

// Instance is a single entity record (spec.md §3 Runtime: "Entity
// instance").
type Instance struct {
	Kind            string
	PrimaryKeyValue interface{}
	Payload         *ordered.Map
	State           map[string]interface{}
	CreatedAt       time.Time
	LastUpdatedAt   time.Time
}

// Ref is a borrow-only pointer to a stored instance, handed to bindings
// (spec.md §3: "bindings hold borrow-only references valid for a single
// generate-and-commit"). Mutating the pointed-to Instance outside the
// store's Update is a caller error.
type Ref = *Instance

type kindStore struct {
	mu        sync.RWMutex
	instances map[interface{}]*Instance
	order     []interface{} // primary key values, insertion order
}

// Store is the engine's entity store, one kindStore per declared entity
// kind.
type Store struct {
	mu    sync.RWMutex
	kinds map[string]*kindStore
}

// New returns an empty Store.
func New() *Store {
	return &Store{kinds: map[string]*kindStore{}}
}

func (s *Store) kindStoreFor(kind string) *kindStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks, ok := s.kinds[kind]
	if !ok {
		ks = &kindStore{instances: map[interface{}]*Instance{}}
		s.kinds[kind] = ks
	}
	return ks
}

// ErrPrimaryKeyCollision is returned by Insert when primary_key_value
// already exists within its kind (spec.md §4.4, Invariant 2 of §8).
type ErrPrimaryKeyCollision struct {
	Kind string
	PK   interface{}
}

func (e *ErrPrimaryKeyCollision) Error() string {
	return fmt.Sprintf("entitystore: kind %q primary key %v already exists", e.Kind, e.PK)
}

// Insert adds a new instance. Fails if its primary key already exists
// within its kind.
func (s *Store) Insert(inst *Instance) error {
	ks := s.kindStoreFor(inst.Kind)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if _, exists := ks.instances[inst.PrimaryKeyValue]; exists {
		return &ErrPrimaryKeyCollision{Kind: inst.Kind, PK: inst.PrimaryKeyValue}
	}
	ks.instances[inst.PrimaryKeyValue] = inst
	ks.order = append(ks.order, inst.PrimaryKeyValue)
	return nil
}

// Mutator mutates a copy of the instance; it must not retain the pointer
// beyond the call. Update only commits the mutation if mutator returns a
// nil error, preserving spec.md §4.7's transactional semantics at the
// store layer.
type Mutator func(inst *Instance) error

// Update applies mutator to the instance at (kind, pk) atomically: the
// mutator receives a copy with its own State map, and the copy replaces
// the stored instance only if mutator succeeds.
func (s *Store) Update(kind string, pk interface{}, mutator Mutator) error {
	ks := s.kindStoreFor(kind)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	existing, ok := ks.instances[pk]
	if !ok {
		return fmt.Errorf("entitystore: kind %q primary key %v not found", kind, pk)
	}
	working := *existing
	working.State = make(map[string]interface{}, len(existing.State))
	for k, v := range existing.State {
		working.State[k] = v
	}
	if err := mutator(&working); err != nil {
		return err
	}
	ks.instances[pk] = &working
	return nil
}

// Get returns the instance at (kind, pk), if present.
func (s *Store) Get(kind string, pk interface{}) (*Instance, bool) {
	ks := s.kindStoreFor(kind)
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	inst, ok := ks.instances[pk]
	return inst, ok
}

// Select returns every instance of kind whose payload+state satisfy
// filter (spec.md §4.4). Instances are returned in insertion order so
// downstream selection-by-index (via the `selection` PRNG sub-stream) is
// deterministic across runs.
func (s *Store) Select(kind string, filter specdef.SelectionFilter) ([]*Instance, error) {
	ks := s.kindStoreFor(kind)
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	var out []*Instance
	for _, pk := range ks.order {
		inst, ok := ks.instances[pk]
		if !ok {
			continue
		}
		match, err := MatchesFilter(inst, filter)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, inst)
		}
	}
	return out, nil
}

// CountWhere counts instances of kind whose state attribute equals value
// (spec.md §4.4's count_where).
func (s *Store) CountWhere(kind, attribute string, value interface{}) int {
	ks := s.kindStoreFor(kind)
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	count := 0
	for _, pk := range ks.order {
		inst := ks.instances[pk]
		if deepEqual(inst.State[attribute], value) {
			count++
		}
	}
	return count
}

// Len returns the number of instances of kind currently stored.
func (s *Store) Len(kind string) int {
	ks := s.kindStoreFor(kind)
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.order)
}
