package mutation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resink-ai/resinker/internal/entitystore"
	"github.com/resink-ai/resinker/internal/ordered"
	"github.com/resink-ai/resinker/internal/prngstream"
	"github.com/resink-ai/resinker/internal/specdef"
)

func userDoc() *specdef.Document {
	return &specdef.Document{
		Entities: map[string]*specdef.Entity{
			"User": {
				Name:       "User",
				PrimaryKey: "user_id",
				StateAttributes: map[string]specdef.StateAttribute{
					"is_logged_in": {Type: specdef.TypeBoolean, Default: false, HasDefault: true},
					"login_count":  {Type: specdef.TypeInteger, Default: 0, HasDefault: true},
				},
				StateAttrOrder: []string{"is_logged_in", "login_count"},
			},
		},
	}
}

func userPayload(id string) *ordered.Map {
	p := ordered.New()
	p.Set("user_id", id)
	p.Set("email", id+"@example.com")
	return p
}

func TestBuildProducesEntityCreate(t *testing.T) {
	doc := userDoc()
	et := &specdef.EventType{Name: "UserRegistered", ProducesEntity: &specdef.ProducesEntity{Entity: "User"}}
	store := entitystore.New()
	prng := prngstream.New(1)

	plan, err := Build(doc, et, userPayload("u1"), nil, store, prng, time.Now())
	require.NoError(t, err)
	require.NotNil(t, plan.Create)
	assert.Equal(t, "u1", plan.Create.PrimaryKeyValue)
	assert.Equal(t, 0, plan.Create.State["login_count"])

	require.NoError(t, Commit(store, plan))
	assert.Equal(t, 1, store.Len("User"))
}

func TestBuildFailsWithoutTouchingStore(t *testing.T) {
	doc := userDoc()
	et := &specdef.EventType{Name: "UserRegistered", ProducesEntity: &specdef.ProducesEntity{Entity: "User"}}
	store := entitystore.New()
	prng := prngstream.New(1)

	badPayload := ordered.New() // missing user_id
	_, err := Build(doc, et, badPayload, nil, store, prng, time.Now())
	assert.Error(t, err)
	assert.Equal(t, 0, store.Len("User"), "store must remain untouched after a failed build")
}

func TestIncrementAttributesConservation(t *testing.T) {
	doc := userDoc()
	store := entitystore.New()
	p := userPayload("u1")
	require.NoError(t, store.Insert(&entitystore.Instance{
		Kind: "User", PrimaryKeyValue: "u1", Payload: p,
		State: map[string]interface{}{"is_logged_in": false, "login_count": 5.0},
	}))

	inst, _ := store.Get("User", "u1")
	binding := map[string]*entitystore.Instance{"subject": inst}

	et := &specdef.EventType{
		Name: "UserLoggedIn",
		UpdatesEntityState: []specdef.EntityStateUpdate{
			{
				EntityAlias: "subject",
				IncrementAttributes: []specdef.IncrementAttribute{
					{Attribute: "login_count", Delta: 3},
				},
			},
		},
	}
	plan, err := Build(doc, et, userPayload("u1"), binding, store, prngstream.New(1), time.Now())
	require.NoError(t, err)
	require.NoError(t, Commit(store, plan))
	after, _ := store.Get("User", "u1")
	assert.Equal(t, 8.0, after.State["login_count"])

	// Now decrement by the same magnitude with negate: true and confirm
	// conservation (spec.md §8 invariant 6).
	et2 := &specdef.EventType{
		Name: "UserLoggedOut",
		UpdatesEntityState: []specdef.EntityStateUpdate{
			{
				EntityAlias: "subject",
				IncrementAttributes: []specdef.IncrementAttribute{
					{Attribute: "login_count", Delta: 3, Negate: true},
				},
			},
		},
	}
	plan2, err := Build(doc, et2, userPayload("u1"), binding, store, prngstream.New(1), time.Now())
	require.NoError(t, err)
	require.NoError(t, Commit(store, plan2))
	final, _ := store.Get("User", "u1")
	assert.Equal(t, 5.0, final.State["login_count"])
}

func TestSetAttributesRejectsUndeclaredAttribute(t *testing.T) {
	doc := userDoc()
	store := entitystore.New()
	p := userPayload("u1")
	require.NoError(t, store.Insert(&entitystore.Instance{Kind: "User", PrimaryKeyValue: "u1", Payload: p, State: map[string]interface{}{}}))
	inst, _ := store.Get("User", "u1")
	binding := map[string]*entitystore.Instance{"subject": inst}

	et := &specdef.EventType{
		Name: "Bogus",
		UpdatesEntityState: []specdef.EntityStateUpdate{
			{EntityAlias: "subject", SetAttributes: []specdef.SetAttribute{{Attribute: "not_declared", Value: "x"}}},
		},
	}
	_, err := Build(doc, et, userPayload("u1"), binding, store, prngstream.New(1), time.Now())
	assert.Error(t, err, "expected an error for an undeclared state attribute")
}

func TestProducesOrUpdatesAlwaysCreatesWhenEmpty(t *testing.T) {
	doc := userDoc()
	store := entitystore.New()
	et := &specdef.EventType{
		Name: "UserRegistered",
		ProducesOrUpdatesEntity: &specdef.ProducesOrUpdatesEntity{
			Entity: "User", UpdateExistingProbability: 1.0,
		},
	}
	plan, err := Build(doc, et, userPayload("u1"), nil, store, prngstream.New(1), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, plan.Create, "expected always-create when the entity kind has zero instances (spec §9 open question)")
}
