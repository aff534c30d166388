package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/commerce/framework/adapters/messagebus"
	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/transport"
)

type purgeStock struct {
	ProductID string `json:"productId"`
}

func (purgeStock) CommandName() string { return "PurgeStock" }

type unknownCommand struct{}

func (unknownCommand) CommandName() string { return "Unknown" }

type recorder struct {
	mu   sync.Mutex
	seen []string
	fail int
}

func (r *recorder) handle(ctx context.Context, cmd purgeStock) (interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return nil, errors.New("downstream unavailable")
	}
	r.seen = append(r.seen, cmd.ProductID)
	return cmd.ProductID, nil
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func setup(t *testing.T, rec *recorder) (*Codec, *transport.InMemoryCommandBus) {
	t.Helper()
	codec := NewCodec()
	RegisterCommand[purgeStock](codec)
	bus := transport.NewInMemoryCommandBus()
	require.NoError(t, bus.Register(transport.NewCommandHandler(rec.handle)))
	return codec, bus
}

func testRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval:   10 * time.Millisecond,
		BatchSize:      10,
		MaxRetries:     2,
		InitialBackoff: time.Second,
		MaxBackoff:     4 * time.Second,
	}
}

func TestOutbox_DeliversThroughDispatchSink(t *testing.T) {
	rec := &recorder{}
	codec, bus := setup(t, rec)
	store := NewInMemoryStore()

	relay, err := NewRelay(testRelayConfig(), store, NewDispatchSink(codec, bus), nil, nil)
	require.NoError(t, err)

	entry, err := New(store, codec, nil).Enqueue(context.Background(), purgeStock{ProductID: "p-1"})
	require.NoError(t, err)
	assert.Equal(t, "PurgeStock", entry.CommandName)

	n, err := relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"p-1"}, rec.ids())

	stored, err := store.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, stored.Status)
	assert.Equal(t, 1, stored.Attempts)

	n, err = relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelay_RetriesWithBackoffThenFails(t *testing.T) {
	rec := &recorder{fail: 10}
	codec, bus := setup(t, rec)
	store := NewInMemoryStore()

	relay, err := NewRelay(testRelayConfig(), store, NewDispatchSink(codec, bus), nil, nil)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	relay.now = func() time.Time { return now }

	entry := NewEntry("PurgeStock", []byte(`{"productId":"p-2"}`))
	entry.NextAttemptAt = now
	entry.CreatedAt = now
	require.NoError(t, store.Enqueue(context.Background(), entry))

	_, err = relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	stored, _ := store.Get(context.Background(), entry.ID)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, now.Add(time.Second), stored.NextAttemptAt)
	assert.Contains(t, stored.LastError, "downstream unavailable")

	// до истечения задержки запись не забирается
	n, err := relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	stored, _ = store.Get(context.Background(), entry.ID)
	assert.Equal(t, 1, stored.Attempts)

	now = now.Add(time.Second)
	_, _ = relay.ProcessOnce(context.Background())
	stored, _ = store.Get(context.Background(), entry.ID)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, now.Add(2*time.Second), stored.NextAttemptAt)

	now = now.Add(2 * time.Second)
	_, _ = relay.ProcessOnce(context.Background())
	stored, _ = store.Get(context.Background(), entry.ID)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	assert.Empty(t, rec.ids())
}

func TestRelay_RecoversAfterTransientFailure(t *testing.T) {
	rec := &recorder{fail: 1}
	codec, bus := setup(t, rec)
	store := NewInMemoryStore()
	relay, err := NewRelay(testRelayConfig(), store, NewDispatchSink(codec, bus), nil, nil)
	require.NoError(t, err)
	now := time.Now().UTC()
	relay.now = func() time.Time { return now }

	entry, err := New(store, codec, nil).Enqueue(context.Background(), purgeStock{ProductID: "p-3"})
	require.NoError(t, err)

	_, _ = relay.ProcessOnce(context.Background())
	now = now.Add(time.Second)
	n, err := relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, _ := store.Get(context.Background(), entry.ID)
	assert.Equal(t, StatusPublished, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, []string{"p-3"}, rec.ids())
}

func TestRelay_ReclaimsEntryAfterLeaseExpires(t *testing.T) {
	rec := &recorder{}
	codec, bus := setup(t, rec)
	store := NewInMemoryStore()
	ctx := context.Background()

	cfg := testRelayConfig()
	cfg.ClaimLease = time.Minute
	relay, err := NewRelay(cfg, store, NewDispatchSink(codec, bus), nil, nil)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	relay.now = func() time.Time { return now }

	entry := NewEntry("PurgeStock", []byte(`{"productId":"p-4"}`))
	entry.NextAttemptAt = now
	entry.CreatedAt = now
	require.NoError(t, store.Enqueue(ctx, entry))

	// захват без отметки результата: relay упал посреди доставки
	claimed, err := store.ClaimDue(ctx, now, cfg.ClaimLease, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	now = now.Add(30 * time.Second)
	n, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	stored, _ := store.Get(ctx, entry.ID)
	assert.Equal(t, StatusProcessing, stored.Status)

	now = now.Add(time.Minute)
	n, err = relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"p-4"}, rec.ids())

	stored, _ = store.Get(ctx, entry.ID)
	assert.Equal(t, StatusPublished, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, now, stored.ClaimedAt)
}

func TestInMemoryStore_LeasedEntryIsNotClaimedTwice(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	entry := NewEntry("PurgeStock", []byte(`{}`))
	entry.NextAttemptAt = now
	require.NoError(t, store.Enqueue(ctx, entry))

	first, err := store.ClaimDue(ctx, now, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 0, first[0].Attempts)

	second, err := store.ClaimDue(ctx, now.Add(59*time.Second), time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, second)

	third, err := store.ClaimDue(ctx, now.Add(time.Minute), time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, 1, third[0].Attempts)
	assert.Equal(t, "claim lease expired", third[0].LastError)
}

func TestOutbox_EnqueueRejectsUnregisteredCommand(t *testing.T) {
	store := NewInMemoryStore()
	_, err := New(store, NewCodec(), nil).Enqueue(context.Background(), unknownCommand{})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindPropagated))
	assert.Zero(t, store.Len())
}

func TestRelayConfig_Backoff(t *testing.T) {
	cfg := testRelayConfig()
	assert.Equal(t, time.Second, cfg.Backoff(1))
	assert.Equal(t, 2*time.Second, cfg.Backoff(2))
	assert.Equal(t, 4*time.Second, cfg.Backoff(3))
	assert.Equal(t, 4*time.Second, cfg.Backoff(10))

	assert.Error(t, RelayConfig{}.Validate())
	assert.NoError(t, DefaultRelayConfig().Validate())
}

func TestRelay_StartAndNotify(t *testing.T) {
	rec := &recorder{}
	codec, bus := setup(t, rec)
	store := NewInMemoryStore()

	cfg := testRelayConfig()
	cfg.PollInterval = time.Hour
	relay, err := NewRelay(cfg, store, NewDispatchSink(codec, bus), nil, nil)
	require.NoError(t, err)
	require.NoError(t, relay.Start(context.Background()))
	defer relay.Stop(context.Background())

	_, err = New(store, codec, relay.Notify).Enqueue(context.Background(), purgeStock{ProductID: "p-4"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(rec.ids()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, relay.Stop(context.Background()))
	assert.False(t, relay.IsRunning())
}

func TestBusSinkAndConsumer(t *testing.T) {
	rec := &recorder{}
	codec, bus := setup(t, rec)
	store := NewInMemoryStore()

	broker := messagebus.NewInMemoryAdapter(messagebus.DefaultInMemoryConfig(), nil)
	defer broker.Close()

	consumer := NewConsumer(codec, broker, bus, "cmd", nil)
	require.NoError(t, consumer.Start(context.Background()))
	defer consumer.Stop(context.Background())

	relay, err := NewRelay(testRelayConfig(), store, NewBusSink(broker, "cmd"), nil, nil)
	require.NoError(t, err)

	_, err = New(store, codec, nil).Enqueue(context.Background(), purgeStock{ProductID: "p-5"})
	require.NoError(t, err)
	n, err := relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Eventually(t, func() bool {
		return len(rec.ids()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"p-5"}, rec.ids())
}
