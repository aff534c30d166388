package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/akriventsev/commerce/framework/adapters/repository"
	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/events"
	"github.com/akriventsev/commerce/framework/eventsourcing"
)

func newStore() *ViewStore {
	return NewViewStore(NewInMemoryViews())
}

func view(id, user string, current bool) View {
	return View{LocationID: id, UserID: user, Latitude: "37.5", Longitude: "127.0", IsCurrent: current, LocationType: TypeRealtime, IsAgreed: true}
}

func currentIDs(t *testing.T, store *ViewStore, user string) []string {
	t.Helper()
	list, err := store.ListByUser(context.Background(), user)
	require.NoError(t, err)
	var ids []string
	for _, v := range list {
		if v.IsCurrent {
			ids = append(ids, v.LocationID)
		}
	}
	return ids
}

func TestRegistrar_TwoCreatesMoveCurrent(t *testing.T) {
	store := newStore()
	r := NewRegistrar(store, nil)
	ctx := context.Background()

	_, err := r.Create(ctx, view("L1", "U1", true))
	require.NoError(t, err)
	_, err = r.Create(ctx, view("L2", "U1", true))
	require.NoError(t, err)

	l1, err := store.Get(ctx, "L1")
	require.NoError(t, err)
	l2, err := store.Get(ctx, "L2")
	require.NoError(t, err)
	assert.False(t, l1.IsCurrent)
	assert.True(t, l2.IsCurrent)
}

func TestRegistrar_SequentialCreatesLeaveOneCurrent(t *testing.T) {
	store := newStore()
	r := NewRegistrar(store, nil)
	ctx := context.Background()

	for _, user := range []string{"U1", "U2"} {
		for i := 0; i < 5; i++ {
			_, err := r.Create(ctx, view(fmt.Sprintf("%s-L%d", user, i), user, true))
			require.NoError(t, err)
		}
	}

	assert.Equal(t, []string{"U1-L4"}, currentIDs(t, store, "U1"))
	assert.Equal(t, []string{"U2-L4"}, currentIDs(t, store, "U2"))
}

func TestRegistrar_NonCurrentCreateClearsCurrent(t *testing.T) {
	store := newStore()
	r := NewRegistrar(store, nil)
	ctx := context.Background()

	_, err := r.Create(ctx, view("L1", "U1", true))
	require.NoError(t, err)
	_, err = r.Create(ctx, view("L2", "U1", false))
	require.NoError(t, err)

	assert.Empty(t, currentIDs(t, store, "U1"))

	_, err = r.Create(ctx, view("L3", "U1", true))
	require.NoError(t, err)
	assert.Equal(t, []string{"L3"}, currentIDs(t, store, "U1"))
}

func TestRegistrar_CreateIsIdempotent(t *testing.T) {
	store := newStore()
	r := NewRegistrar(store, nil)
	ctx := context.Background()

	_, err := r.Create(ctx, view("L1", "U1", true))
	require.NoError(t, err)
	_, err = r.Create(ctx, view("L2", "U1", true))
	require.NoError(t, err)

	before, err := store.ListByUser(ctx, "U1")
	require.NoError(t, err)
	stored, err := store.Get(ctx, "L1")
	require.NoError(t, err)

	again, err := r.Create(ctx, view("L1", "U1", true))
	require.NoError(t, err)
	assert.Equal(t, stored, again)
	assert.False(t, again.IsCurrent)

	after, err := store.ListByUser(ctx, "U1")
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	assert.Equal(t, []string{"L2"}, currentIDs(t, store, "U1"))
}

func TestRegistrar_ConcurrentCreatesLeaveOneCurrent(t *testing.T) {
	store := newStore()
	r := NewRegistrar(store, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Create(ctx, view(fmt.Sprintf("L%d", i), "U1", true))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, currentIDs(t, store, "U1"), 1)
	assert.Zero(t, r.locks.size())
}

// racingViews имитирует вставку другим процессом между проверкой и записью
type racingViews struct {
	*repository.InMemoryRepository[View]
	misses int32
}

func (r *racingViews) FindByID(ctx context.Context, id string) (View, error) {
	if atomic.AddInt32(&r.misses, 1) == 1 {
		return View{}, core.NewError(core.KindNotFound, "not yet")
	}
	return r.InMemoryRepository.FindByID(ctx, id)
}

func TestRegistrar_InsertConflictReturnsStored(t *testing.T) {
	inner := NewInMemoryViews()
	prior := view("L1", "U1", true)
	prior.Latitude = "1.0"
	require.NoError(t, inner.Insert(context.Background(), prior))

	obs, logs := observer.New(zapcore.WarnLevel)
	r := NewRegistrar(NewViewStore(&racingViews{InMemoryRepository: inner}), zap.New(obs))

	got, err := r.Create(context.Background(), view("L1", "U1", true))
	require.NoError(t, err)
	assert.Equal(t, "1.0", got.Latitude)
	assert.Equal(t, 1, logs.FilterMessage("location view inserted concurrently").Len())
}

func TestRegistrar_DeleteAllIsScopedToUser(t *testing.T) {
	store := newStore()
	r := NewRegistrar(store, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Create(ctx, view(fmt.Sprintf("a%d", i), "U1", true))
		require.NoError(t, err)
	}
	_, err := r.Create(ctx, view("b0", "U2", true))
	require.NoError(t, err)

	n, err := r.DeleteAll(ctx, "U1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	q := NewQueryService(store, nil, 1, nil, nil)
	left, err := q.FindByUser(ctx, "U1")
	require.NoError(t, err)
	assert.Empty(t, left)

	other, err := q.FindByUser(ctx, "U2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.True(t, other[0].IsCurrent)

	n, err = r.DeleteAll(ctx, "U1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQuery_FindCurrentLocation(t *testing.T) {
	store := newStore()
	ctx := context.Background()
	q := NewQueryService(store, nil, 1, nil, nil)

	got, err := q.FindCurrentLocation(ctx, "U1")
	require.NoError(t, err)
	assert.Nil(t, got)

	notAgreed := view("L1", "U1", true)
	notAgreed.IsAgreed = false
	require.NoError(t, store.Insert(ctx, notAgreed))
	require.NoError(t, store.Insert(ctx, view("L2", "U1", false)))

	got, err = q.FindCurrentLocation(ctx, "U1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Insert(ctx, view("L3", "U1", true)))
	got, err = q.FindCurrentLocation(ctx, "U1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "L3", got.LocationID)
}

type fakeGeocoder struct {
	calls int32
}

func (g *fakeGeocoder) GetReverseGeocode(ctx context.Context, lat, lng string) (string, error) {
	atomic.AddInt32(&g.calls, 1)
	switch lat {
	case "bad":
		return "", errors.New("upstream timeout")
	case "empty":
		return "", nil
	}
	return "Seoul " + lat, nil
}

func TestQuery_FindAllLocationsDegradesPerItem(t *testing.T) {
	store := newStore()
	ctx := context.Background()
	for i, lat := range []string{"1", "bad", "2", "empty", "3"} {
		v := view(fmt.Sprintf("L%d", i), "U1", false)
		v.Latitude = lat
		require.NoError(t, store.Insert(ctx, v))
	}

	geo := &fakeGeocoder{}
	q := NewQueryService(store, geo, 2, nil, nil)

	got, err := q.FindAllLocations(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.EqualValues(t, 5, atomic.LoadInt32(&geo.calls))

	for _, v := range got {
		assert.NotEmpty(t, v.Address)
		switch v.Latitude {
		case "bad", "empty":
			assert.Equal(t, AddressNotFound, v.Address)
		default:
			assert.Equal(t, "Seoul "+v.Latitude, v.Address)
		}
	}
}

func TestQuery_FindAllLocationsWithoutGeocoder(t *testing.T) {
	store := newStore()
	require.NoError(t, store.Insert(context.Background(), view("L1", "U1", true)))

	got, err := NewQueryService(store, nil, 1, nil, nil).FindAllLocations(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, AddressNotFound, got[0].Address)
}

func newModule(t *testing.T) (*Module, *ViewStore, *eventsourcing.InMemoryEventStore, *events.Registry) {
	t.Helper()
	views := newStore()
	store := eventsourcing.NewInMemoryEventStore()
	emitter := eventsourcing.NewEmitter(eventsourcing.NewJournal(store, eventsourcing.VersionRevision, nil), nil, nil)
	m := NewModule(NewInMemoryRecords(), emitter, NewRegistrar(views, nil), NewQueryService(views, &fakeGeocoder{}, 4, nil, nil), nil)
	registry, err := events.NewRegistry(m.Subscriptions()...)
	require.NoError(t, err)
	return m, views, store, registry
}

func project(t *testing.T, registry *events.Registry, store *eventsourcing.InMemoryEventStore, m *Module, aggregateID string) {
	t.Helper()
	history, err := store.ReadAll(context.Background(), aggregateID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	last := history[len(history)-1]

	var event events.Event
	switch last.EventType {
	case EventLocationSaved:
		e := LocationSaved{BaseEvent: events.NewBaseEvent(last.EventType, AggregateType, aggregateID)}
		require.NoError(t, json.Unmarshal(last.EventData, &e))
		event = e
	case EventUserLocationsDeleted:
		e := UserLocationsDeleted{BaseEvent: events.NewBaseEvent(last.EventType, AggregateType, aggregateID)}
		require.NoError(t, json.Unmarshal(last.EventData, &e))
		event = e
	}
	for _, sub := range registry.For(last.EventType) {
		require.NoError(t, sub.Handler.Handle(context.Background(), event))
	}
}

func TestModule_SaveProjectsCurrentLocation(t *testing.T) {
	m, views, store, registry := newModule(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		res, err := m.Save(ctx, SaveLocationCommand{UserID: "U1", Latitude: fmt.Sprint(i), Longitude: "127", LocationType: "HOME", IsAgreed: true})
		require.NoError(t, err)
		id := res.(string)
		ids = append(ids, id)
		project(t, registry, store, m, id)
	}

	assert.Equal(t, []string{ids[2]}, currentIDs(t, views, "U1"))

	current, err := m.Current(ctx, CurrentLocationQuery{UserID: "U1"})
	require.NoError(t, err)
	assert.Equal(t, ids[2], current.(View).LocationID)

	all, err := m.UserLocations(ctx, UserLocationsQuery{UserID: "U1"})
	require.NoError(t, err)
	assert.Len(t, all.([]EnrichedView), 3)
}

func TestModule_DeleteUser(t *testing.T) {
	m, views, store, registry := newModule(t)
	ctx := context.Background()

	res, err := m.Save(ctx, SaveLocationCommand{UserID: "U1", Latitude: "1", Longitude: "2", LocationType: "REALTIME"})
	require.NoError(t, err)
	project(t, registry, store, m, res.(string))

	deleted, err := m.DeleteUser(ctx, DeleteUserLocationsCommand{UserID: "U1"})
	require.NoError(t, err)
	assert.Equal(t, "U1", deleted)
	project(t, registry, store, m, "U1")

	left, err := views.ListByUser(ctx, "U1")
	require.NoError(t, err)
	assert.Empty(t, left)

	current, err := m.Current(ctx, CurrentLocationQuery{UserID: "U1"})
	require.NoError(t, err)
	assert.Nil(t, current)

	countBefore := store.Count()
	again, err := m.DeleteUser(ctx, DeleteUserLocationsCommand{UserID: "U1"})
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, countBefore, store.Count())
}

func TestModule_SaveRejectsUnknownType(t *testing.T) {
	m, _, store, _ := newModule(t)

	_, err := m.Save(context.Background(), SaveLocationCommand{UserID: "U1", Latitude: "1", Longitude: "2", LocationType: "SATELLITE"})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindInvalidArgument))
	assert.Zero(t, store.Count())
}

func TestSaveLocationCommand_Validate(t *testing.T) {
	assert.NoError(t, SaveLocationCommand{UserID: "u", Latitude: "1", Longitude: "2", LocationType: "MANUAL"}.Validate())
	assert.Error(t, SaveLocationCommand{Latitude: "1", Longitude: "2", LocationType: "MANUAL"}.Validate())
	assert.Error(t, SaveLocationCommand{UserID: "u", Longitude: "2", LocationType: "MANUAL"}.Validate())
	assert.Error(t, SaveLocationCommand{UserID: "u", Latitude: "1", Longitude: "2", LocationType: "manual"}.Validate())
}
