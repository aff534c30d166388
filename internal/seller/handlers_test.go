package seller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/eventsourcing"
)

func newModule() (*Module, *eventsourcing.InMemoryEventStore) {
	store := eventsourcing.NewInMemoryEventStore()
	emitter := eventsourcing.NewEmitter(eventsourcing.NewJournal(store, eventsourcing.VersionRevision, nil), nil, nil)
	m := NewModule(NewInMemorySellers(), emitter, nil)
	m.cost = bcrypt.MinCost
	return m, store
}

func registerCmd(email string) RegisterSellerCommand {
	return RegisterSellerCommand{
		Email:        email,
		Password:     "s3cret-pass",
		PwConfirm:    "s3cret-pass",
		Name:         "Kim",
		PhoneNumber:  "010-0000-0000",
		StoreName:    "Corner Bakery",
		StoreAddress: "Seoul",
	}
}

func TestRegister(t *testing.T) {
	m, store := newModule()
	ctx := context.Background()

	res, err := m.Register(ctx, registerCmd("Kim@Example.com"))
	require.NoError(t, err)
	id := res.(string)

	stored, err := m.sellers.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "kim@example.com", stored.Email)
	assert.NotEqual(t, "s3cret-pass", stored.PasswordHash)
	assert.True(t, CheckPassword(stored, "s3cret-pass"))
	assert.False(t, CheckPassword(stored, "wrong"))

	got, err := m.Get(ctx, SellerQuery{ID: id})
	require.NoError(t, err)
	assert.Empty(t, got.(Seller).PasswordHash)

	history, _ := store.ReadAll(ctx, id)
	require.Len(t, history, 1)
	assert.Equal(t, EventSellerRegistered, history[0].EventType)
}

func TestRegister_PasswordMismatch(t *testing.T) {
	m, store := newModule()
	cmd := registerCmd("a@example.com")
	cmd.PwConfirm = "other-pass"

	_, err := m.Register(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindInvalidArgument))
	assert.Zero(t, store.Count())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	m, store := newModule()
	ctx := context.Background()

	_, err := m.Register(ctx, registerCmd("a@example.com"))
	require.NoError(t, err)

	_, err = m.Register(ctx, registerCmd("A@example.com "))
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindAlreadyExists))
	assert.Equal(t, 1, store.Count())
}

func TestRegisterSellerCommand_Validate(t *testing.T) {
	assert.NoError(t, registerCmd("a@example.com").Validate())
	assert.Error(t, registerCmd("not-an-email").Validate())

	short := registerCmd("a@example.com")
	short.Password = "short"
	assert.Error(t, short.Validate())
}
