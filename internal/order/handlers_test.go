package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/eventsourcing"
)

func newModule() (*Module, *eventsourcing.InMemoryEventStore) {
	store := eventsourcing.NewInMemoryEventStore()
	emitter := eventsourcing.NewEmitter(eventsourcing.NewJournal(store, eventsourcing.VersionRevision, nil), nil, nil)
	return NewModule(NewInMemoryOrders(), emitter, nil), store
}

func validCreate(userID string) CreateOrderCommand {
	return CreateOrderCommand{
		UserID:        userID,
		TotalAmount:   2,
		TotalPrice:    9000,
		PickupTime:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		PaymentMethod: "CARD",
	}
}

func TestCreateAndQuery(t *testing.T) {
	m, store := newModule()
	ctx := context.Background()

	res, err := m.Create(ctx, validCreate("u-1"))
	require.NoError(t, err)
	id := res.(string)

	_, err = m.Create(ctx, validCreate("u-2"))
	require.NoError(t, err)

	got, err := m.Get(ctx, OrderQuery{ID: id})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.(Order).Status)

	byUser, err := m.ByUser(ctx, OrdersByUserQuery{UserID: "u-1"})
	require.NoError(t, err)
	assert.Len(t, byUser.([]Order), 1)

	history, _ := store.ReadAll(ctx, id)
	require.Len(t, history, 1)
	assert.Equal(t, EventOrderCreated, history[0].EventType)
}

func TestDelete(t *testing.T) {
	m, store := newModule()
	ctx := context.Background()

	res, err := m.Create(ctx, validCreate("u-1"))
	require.NoError(t, err)
	id := res.(string)

	deleted, err := m.Delete(ctx, DeleteOrderCommand{ID: id})
	require.NoError(t, err)
	assert.Equal(t, id, deleted)

	_, err = m.Get(ctx, OrderQuery{ID: id})
	assert.True(t, core.IsKind(err, core.KindNotFound))

	missing, err := m.Delete(ctx, DeleteOrderCommand{ID: id})
	require.NoError(t, err)
	assert.Nil(t, missing)

	history, _ := store.ReadAll(ctx, id)
	assert.Len(t, history, 2)
}

func TestCreateOrderCommand_Validate(t *testing.T) {
	cmd := validCreate("u-1")
	require.NoError(t, cmd.Validate())

	bad := cmd
	bad.TotalAmount = 0
	assert.Error(t, bad.Validate())

	bad = cmd
	bad.PaymentMethod = ""
	assert.Error(t, bad.Validate())

	bad = cmd
	bad.PickupTime = time.Time{}
	assert.Error(t, bad.Validate())
}
