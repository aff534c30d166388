package eventsourcing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/events"
)

type widgetRenamed struct {
	events.BaseEvent
	Name string `json:"name"`
}

func renamed(id, name string) widgetRenamed {
	return widgetRenamed{BaseEvent: events.NewBaseEvent("WidgetRenamed", "Widget", id), Name: name}
}

type failingStore struct{}

func (failingStore) Append(ctx context.Context, e DomainEvent) (DomainEvent, error) {
	return DomainEvent{}, errors.New("disk full")
}

func (failingStore) ReadAll(ctx context.Context, id string) ([]DomainEvent, error) {
	return nil, nil
}

func TestInMemoryEventStore_ReadAllPreservesAppendOrder(t *testing.T) {
	store := NewInMemoryEventStore()
	ctx := context.Background()

	for _, typ := range []string{"A", "B", "C"} {
		_, err := store.Append(ctx, DomainEvent{ID: typ, AggregateID: "w1", EventType: typ})
		require.NoError(t, err)
	}
	_, err := store.Append(ctx, DomainEvent{ID: "X", AggregateID: "w2", EventType: "X"})
	require.NoError(t, err)

	got, err := store.ReadAll(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].EventType)
	assert.Equal(t, "B", got[1].EventType)
	assert.Equal(t, "C", got[2].EventType)
	assert.Less(t, got[0].Position, got[1].Position)
	assert.Less(t, got[1].Position, got[2].Position)
}

func TestInMemoryEventStore_AcceptsSuppliedVersion(t *testing.T) {
	store := NewInMemoryEventStore()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		stored, err := store.Append(ctx, DomainEvent{AggregateID: "w1", EventType: "A", Version: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.Version)
	}

	got, err := store.ReadAll(ctx, "w1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestInMemoryEventStore_UnknownAggregateIsEmpty(t *testing.T) {
	got, err := NewInMemoryEventStore().ReadAll(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInMemoryEventStore_EventDataIsIsolated(t *testing.T) {
	store := NewInMemoryEventStore()
	ctx := context.Background()

	data := json.RawMessage(`{"v":1}`)
	appended, err := store.Append(ctx, DomainEvent{AggregateID: "w1", EventType: "A", EventData: data})
	require.NoError(t, err)
	data[5] = '9'
	appended.EventData[5] = '8'

	first, err := store.ReadAll(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.JSONEq(t, `{"v":1}`, string(first[0].EventData))

	first[0].EventData[5] = '7'

	second, err := store.ReadAll(ctx, "w1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(second[0].EventData))
}

func TestJournal_RevisionPolicy(t *testing.T) {
	store := NewInMemoryEventStore()
	journal := NewJournal(store, VersionRevision, nil)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := journal.Record(ctx, renamed("w1", name))
		require.NoError(t, err)
	}

	history, err := journal.History(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, e := range history {
		assert.Equal(t, int64(i+1), e.Version)
		assert.Equal(t, "Widget", e.AggregateType)
		assert.Equal(t, "WidgetRenamed", e.EventType)
	}

	var payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(history[2].EventData, &payload))
	assert.Equal(t, "c", payload.Name)
}

func TestJournal_ConstantPolicy(t *testing.T) {
	journal := NewJournal(NewInMemoryEventStore(), VersionConstant, nil)
	ctx := context.Background()

	_, err := journal.Record(ctx, renamed("w1", "a"))
	require.NoError(t, err)
	second, err := journal.Record(ctx, renamed("w1", "b"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), second.Version)
}

func TestJournal_RevisionUnderConcurrency(t *testing.T) {
	store := NewInMemoryEventStore()
	journal := NewJournal(store, VersionRevision, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = journal.Record(ctx, renamed("w1", "x"))
		}()
	}
	wg.Wait()

	history, err := journal.History(ctx, "w1")
	require.NoError(t, err)
	seen := make(map[int64]bool)
	for _, e := range history {
		seen[e.Version] = true
	}
	assert.Len(t, seen, 50)
}

func TestJournal_AppendFailureIsPropagated(t *testing.T) {
	journal := NewJournal(failingStore{}, VersionRevision, nil)

	_, err := journal.Record(context.Background(), renamed("w1", "a"))
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindPropagated))
	assert.Contains(t, err.Error(), "disk full")
}

func TestParseVersionPolicy(t *testing.T) {
	p, err := ParseVersionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, VersionRevision, p)

	p, err = ParseVersionPolicy("constant")
	require.NoError(t, err)
	assert.Equal(t, VersionConstant, p)

	_, err = ParseVersionPolicy("nope")
	assert.Error(t, err)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func TestEmitter_RecordsThenPublishes(t *testing.T) {
	store := NewInMemoryEventStore()
	pub := &capturePublisher{}
	emitter := NewEmitter(NewJournal(store, VersionRevision, nil), pub, nil)

	stored, err := emitter.Emit(context.Background(), renamed("w-1", "x"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Len(t, pub.events, 1)

	history, err := emitter.History(context.Background(), "w-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestEmitter_JournalFailureSkipsPublish(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewEmitter(NewJournal(failingStore{}, VersionRevision, nil), pub, nil)

	_, err := emitter.Emit(context.Background(), renamed("w-1", "x"))
	assert.True(t, core.IsKind(err, core.KindPropagated))
	assert.Empty(t, pub.events)
}

func TestEmitter_PublishFailureIsNotFatal(t *testing.T) {
	store := NewInMemoryEventStore()
	pub := &capturePublisher{err: errors.New("stopped")}
	emitter := NewEmitter(NewJournal(store, VersionRevision, nil), pub, nil)

	_, err := emitter.Emit(context.Background(), renamed("w-1", "x"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count())
}
