package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/internal/beats"
	"github.com/angelmondragon/beatstore-backend/internal/pricing"
	"github.com/angelmondragon/beatstore-backend/internal/users"
	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	engine, err := pricing.NewEngine(decimal.RequireFromString("0.10"))
	require.NoError(t, err)
	svc, err := NewService(NewRepository(client.DB()), client, beats.NewRepository(client.DB()), engine)
	require.NoError(t, err)
	return svc, client
}

func countItems(t *testing.T, client *db.Client, where string, args ...any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, client.DB().Model(&models.CartItem{}).Where(where, args...).Count(&count).Error)
	return count
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestAddItemTwiceKeepsOneLine(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, client, "seller@example.com")
	beat := dbtest.SeedBeat(t, client, seller, "Night Drive", "3.99")
	buyer := dbtest.SeedUser(t, client, "")

	for i := 0; i < 3; i++ {
		view, err := svc.AddItem(ctx, ForUser(buyer.ID), beat.ID, seller.License.ID)
		require.NoError(t, err)
		require.Len(t, view.Items, 1)
		assert.Equal(t, "3.99", view.Total.StringFixed(2))
	}
	assert.EqualValues(t, 1, countItems(t, client, "user_id = ?", buyer.ID))

	token := svc.NewGuestToken()
	for i := 0; i < 2; i++ {
		_, err := svc.AddItem(ctx, ForGuest(token), beat.ID, seller.License.ID)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, countItems(t, client, "cart_token = ?", token))
}

func TestAddItemValidatesLicenseAndPayout(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	buyer := dbtest.SeedUser(t, client, "")

	seller := dbtest.SeedSeller(t, client, "seller@example.com")
	beat := dbtest.SeedBeat(t, client, seller, "Night Drive", "3.99")
	_, err := svc.AddItem(ctx, ForUser(buyer.ID), beat.ID, uuid.New())
	assert.Equal(t, pricing.ReasonInvalidLicense, pkgerrors.ReasonOf(err))

	other := dbtest.SeedSeller(t, client, "other@example.com")
	_, err = svc.AddItem(ctx, ForUser(buyer.ID), beat.ID, other.License.ID)
	assert.Equal(t, pricing.ReasonInvalidLicense, pkgerrors.ReasonOf(err))

	unpaid := dbtest.SeedSeller(t, client, "")
	unpaidBeat := dbtest.SeedBeat(t, client, unpaid, "Dusk", "2.00")
	_, err = svc.AddItem(ctx, ForUser(buyer.ID), unpaidBeat.ID, unpaid.License.ID)
	assert.Equal(t, users.ReasonMissingPayoutDestination, pkgerrors.ReasonOf(err))

	_, err = svc.AddItem(ctx, ForUser(buyer.ID), uuid.New(), seller.License.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	assert.EqualValues(t, 0, countItems(t, client, "user_id = ?", buyer.ID))
}

func TestRemoveAndClear(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, client, "seller@example.com")
	a := dbtest.SeedBeat(t, client, seller, "A", "3.99")
	b := dbtest.SeedBeat(t, client, seller, "B", "2.00")
	buyer := dbtest.SeedUser(t, client, "")
	id := ForUser(buyer.ID)

	_, err := svc.AddItem(ctx, id, a.ID, seller.License.ID)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, id, b.ID, seller.License.ID)
	require.NoError(t, err)

	view, err := svc.RemoveItem(ctx, id, a.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, b.ID, view.Items[0].BeatID)

	view, err = svc.Clear(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.Total.IsZero())
}

func TestImportMergesGuestCartDiscardingDuplicates(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, client, "seller@example.com")
	shared := dbtest.SeedBeat(t, client, seller, "Shared", "3.99")
	guestOnly := dbtest.SeedBeat(t, client, seller, "Guest only", "2.00")
	buyer := dbtest.SeedUser(t, client, "")
	token := svc.NewGuestToken()

	_, err := svc.AddItem(ctx, ForUser(buyer.ID), shared.ID, seller.License.ID)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, ForGuest(token), shared.ID, seller.License.ID)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, ForGuest(token), guestOnly.ID, seller.License.ID)
	require.NoError(t, err)

	view, err := svc.Import(ctx, buyer.ID, token)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "5.99", view.Total.StringFixed(2))
	assert.EqualValues(t, 0, countItems(t, client, "cart_token = ?", token))
	assert.EqualValues(t, 2, countItems(t, client, "user_id = ?", buyer.ID))

	_, err = svc.Import(ctx, buyer.ID, token)
	require.NoError(t, err)
}

// racingRepo loses every guest move to a concurrent add.
type racingRepo struct {
	*Repository
	moves int
}

func (r *racingRepo) WithTx(tx *gorm.DB) CartRepository { return r }

func (r *racingRepo) MoveGuestToUser(ctx context.Context, token, userID uuid.UUID) (int64, int64, error) {
	r.moves++
	return 0, 0, gorm.ErrDuplicatedKey
}

func TestImportCollisionIsConflictNotRetried(t *testing.T) {
	client := dbtest.Open(t)
	engine, err := pricing.NewEngine(decimal.RequireFromString("0.10"))
	require.NoError(t, err)
	repo := &racingRepo{Repository: NewRepository(client.DB())}
	svc, err := NewService(repo, client, beats.NewRepository(client.DB()), engine)
	require.NoError(t, err)

	_, err = svc.Import(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 1, repo.moves)
}

func TestViewMarksUnresolvableLines(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, client, "seller@example.com")
	beat := dbtest.SeedBeat(t, client, seller, "Night Drive", "3.99")
	buyer := dbtest.SeedUser(t, client, "")

	_, err := svc.AddItem(ctx, ForUser(buyer.ID), beat.ID, seller.License.ID)
	require.NoError(t, err)
	require.NoError(t, client.DB().Delete(seller.License).Error)

	view, err := svc.GetCart(ctx, ForUser(buyer.ID))
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.False(t, view.Items[0].Available)
	assert.Nil(t, view.Items[0].Price)
	assert.True(t, view.Total.IsZero())
}

func TestIdentityValidation(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetCart(context.Background(), Identity{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	user, token := uuid.New(), uuid.New()
	_, err = svc.GetCart(context.Background(), Identity{UserID: &user, Token: &token})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestClearPurchasedIsRepeatable(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	seller := dbtest.SeedSeller(t, client, "seller@example.com")
	a := dbtest.SeedBeat(t, client, seller, "A", "3.99")
	b := dbtest.SeedBeat(t, client, seller, "B", "2.00")
	keep := dbtest.SeedBeat(t, client, seller, "Keep", "1.00")
	buyer := dbtest.SeedUser(t, client, "")
	for _, beat := range []*models.Beat{a, b, keep} {
		dbtest.SeedCartItem(t, client, buyer.ID, beat, seller.License.ID)
	}

	deleted, err := repo.ClearPurchased(ctx, buyer.ID, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	deleted, err = repo.ClearPurchased(ctx, buyer.ID, []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted)

	deleted, err = repo.ClearPurchased(ctx, buyer.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted)

	items, err := repo.ListItems(ctx, ForUser(buyer.ID))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, keep.ID, items[0].BeatID)
}
