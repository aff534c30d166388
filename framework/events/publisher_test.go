package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type itemShipped struct {
	BaseEvent
	Item string `json:"item"`
}

type parcelScanned struct {
	BaseEvent
	Parcel string `json:"parcel"`
	Seq    int    `json:"seq"`
}

func (e parcelScanned) OrderingKey() string { return e.Parcel }

func newItemShipped(id, item string) itemShipped {
	return itemShipped{BaseEvent: NewBaseEvent("ItemShipped", "Item", id), Item: item}
}

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Handle(ctx context.Context, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func newPublisher(t *testing.T, logger *zap.Logger, subs ...Subscription) *AsyncEventPublisher {
	t.Helper()
	registry, err := NewRegistry(subs...)
	require.NoError(t, err)
	p, err := NewAsyncEventPublisher(AsyncConfig{Workers: 2, QueueSize: 16}, registry, logger, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return p
}

func TestAsyncEventPublisher_DeliversToSubscribers(t *testing.T) {
	first, second := &collector{}, &collector{}
	p := newPublisher(t, nil,
		Subscription{Name: "first", EventType: "ItemShipped", Handler: first},
		Subscription{Name: "second", EventType: "ItemShipped", Handler: second},
	)

	require.NoError(t, p.Publish(context.Background(), newItemShipped("i1", "book")))

	assert.Eventually(t, func() bool { return first.count() == 1 && second.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestAsyncEventPublisher_IgnoresUnsubscribedTypes(t *testing.T) {
	c := &collector{}
	p := newPublisher(t, nil, Subscription{Name: "c", EventType: "Other", Handler: c})

	require.NoError(t, p.Publish(context.Background(), newItemShipped("i1", "book")))
	require.NoError(t, p.Stop(context.Background()))

	assert.Equal(t, 0, c.count())
}

func TestAsyncEventPublisher_SubscriberFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	ok := &collector{}
	p := newPublisher(t, zap.New(core),
		Subscription{Name: "broken", EventType: "ItemShipped", Handler: HandlerFunc(func(ctx context.Context, e Event) error {
			return errors.New("projection down")
		})},
		Subscription{Name: "panicky", EventType: "ItemShipped", Handler: HandlerFunc(func(ctx context.Context, e Event) error {
			panic("nil map")
		})},
		Subscription{Name: "ok", EventType: "ItemShipped", Handler: ok},
	)

	require.NoError(t, p.Publish(context.Background(), newItemShipped("i1", "book")))
	require.NoError(t, p.Stop(context.Background()))

	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 2, logs.FilterMessage("event subscriber failed").Len())
}

func TestAsyncEventPublisher_StopDrainsAndRejects(t *testing.T) {
	c := &collector{}
	p := newPublisher(t, nil, Subscription{Name: "c", EventType: "ItemShipped", Handler: c})

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Publish(context.Background(), newItemShipped("i", "x")))
	}
	require.NoError(t, p.Stop(context.Background()))
	require.NoError(t, p.Stop(context.Background()))

	assert.Equal(t, 10, c.count())
	assert.False(t, p.IsRunning())
	assert.ErrorIs(t, p.Publish(context.Background(), newItemShipped("i", "x")), ErrPublisherStopped)
}

func TestRegistry_FrozenAfterStart(t *testing.T) {
	registry, err := NewRegistry()
	require.NoError(t, err)
	p, err := NewAsyncEventPublisher(DefaultAsyncConfig(), registry, nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop(context.Background()) }()

	err = registry.Subscribe(Subscription{Name: "late", EventType: "ItemShipped", Handler: &collector{}})
	assert.ErrorIs(t, err, ErrRegistryFrozen)
}

func TestRegistry_RejectsDuplicateAndInvalid(t *testing.T) {
	_, err := NewRegistry(
		Subscription{Name: "a", EventType: "X", Handler: &collector{}},
		Subscription{Name: "a", EventType: "X", Handler: &collector{}},
	)
	assert.Error(t, err)

	_, err = NewRegistry(Subscription{Name: "b", EventType: "X"})
	assert.Error(t, err)
}

func TestTyped_FiltersByGoType(t *testing.T) {
	var got []string
	h := Typed(func(ctx context.Context, e itemShipped) error {
		got = append(got, e.Item)
		return nil
	})

	require.NoError(t, h.Handle(context.Background(), newItemShipped("1", "pen")))
	require.NoError(t, h.Handle(context.Background(), NewBaseEvent("ItemShipped", "Item", "2")))
	assert.Equal(t, []string{"pen"}, got)
}

func TestAsyncEventPublisher_SameKeyDeliveredInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string][]int{}
	)
	handler := Typed(func(ctx context.Context, e parcelScanned) error {
		if e.Seq%7 == 0 {
			time.Sleep(time.Millisecond)
		}
		mu.Lock()
		seen[e.Parcel] = append(seen[e.Parcel], e.Seq)
		mu.Unlock()
		return nil
	})

	registry, err := NewRegistry(Subscription{Name: "scans", EventType: "ParcelScanned", Handler: handler})
	require.NoError(t, err)
	p, err := NewAsyncEventPublisher(AsyncConfig{Workers: 4, QueueSize: 256}, registry, nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	parcels := []string{"p1", "p2", "p3"}
	const perParcel = 50
	for i := 0; i < perParcel; i++ {
		for _, parcel := range parcels {
			// id агрегата у каждого события свой, порядок задает ключ
			e := parcelScanned{BaseEvent: NewBaseEvent("ParcelScanned", "Scan", fmt.Sprintf("%s-%d", parcel, i)), Parcel: parcel, Seq: i}
			require.NoError(t, p.Publish(context.Background(), e))
		}
	}
	require.NoError(t, p.Stop(context.Background()))

	for _, parcel := range parcels {
		require.Len(t, seen[parcel], perParcel)
		for i, seq := range seen[parcel] {
			assert.Equal(t, i, seq, parcel)
		}
	}
}

func TestOrderingKeyOf_DefaultsToAggregateID(t *testing.T) {
	assert.Equal(t, "i1", OrderingKeyOf(newItemShipped("i1", "book")))
	e := parcelScanned{BaseEvent: NewBaseEvent("ParcelScanned", "Scan", "s-1"), Parcel: "p9"}
	assert.Equal(t, "p9", OrderingKeyOf(e))
	e.Parcel = ""
	assert.Equal(t, "s-1", OrderingKeyOf(e))
}

func TestAsyncEventPublisher_AcceptedEventsSurviveConcurrentStop(t *testing.T) {
	c := &collector{}
	registry, err := NewRegistry(Subscription{Name: "c", EventType: "ItemShipped", Handler: c})
	require.NoError(t, err)
	p, err := NewAsyncEventPublisher(AsyncConfig{Workers: 3, QueueSize: 8}, registry, nil, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	var (
		accepted int64
		acceptMu sync.Mutex
		wg       sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; ; i++ {
				err := p.Publish(context.Background(), newItemShipped(fmt.Sprintf("i%d-%d", g, i), "x"))
				if errors.Is(err, ErrPublisherStopped) {
					return
				}
				if err == nil {
					acceptMu.Lock()
					accepted++
					acceptMu.Unlock()
				}
			}
		}(g)
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Stop(context.Background()))
	wg.Wait()

	acceptMu.Lock()
	defer acceptMu.Unlock()
	assert.Equal(t, int(accepted), c.count())
}
