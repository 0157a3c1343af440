package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
)

// Seller is a seeded seller account with one enabled license.
type Seller struct {
	User    *models.User
	License *models.License
}

// SeedUser inserts an account. An empty receiver leaves the payout destination unset.
func SeedUser(t testing.TB, client *db.Client, receiver string) *models.User {
	t.Helper()
	id := uuid.New()
	user := &models.User{
		ID:          id,
		Email:       fmt.Sprintf("%s@example.com", id.String()[:8]),
		DisplayName: "user-" + id.String()[:8],
		Balance:     decimal.Zero,
	}
	if receiver != "" {
		user.PaypalReceiver = &receiver
	}
	require.NoError(t, client.DB().Create(user).Error)
	return user
}

// SeedSeller inserts a seller with a payout receiver and one license.
func SeedSeller(t testing.TB, client *db.Client, receiver string) Seller {
	t.Helper()
	user := SeedUser(t, client, receiver)
	license := &models.License{
		ID:      uuid.New(),
		UserID:  user.ID,
		Name:    "Non exclusive",
		MP3:     true,
		Enabled: true,
	}
	require.NoError(t, client.DB().Create(license).Error)
	return Seller{User: user, License: license}
}

// SeedBeat inserts a beat priced at price under the seller's license.
func SeedBeat(t testing.TB, client *db.Client, seller Seller, name, price string) *models.Beat {
	t.Helper()
	beat := &models.Beat{ID: uuid.New(), UserID: seller.User.ID, Name: name}
	require.NoError(t, client.DB().Omit("Seller", "Prices").Create(beat).Error)
	row := &models.BeatPrice{BeatID: beat.ID, LicenseID: seller.License.ID, Price: decimal.RequireFromString(price)}
	require.NoError(t, client.DB().Omit("License").Create(row).Error)
	return beat
}

// SeedCartItem puts a beat into an account's cart.
func SeedCartItem(t testing.TB, client *db.Client, userID uuid.UUID, beat *models.Beat, licenseID uuid.UUID) {
	t.Helper()
	item := &models.CartItem{ID: uuid.New(), UserID: &userID, BeatID: beat.ID, LicenseID: licenseID}
	require.NoError(t, client.DB().Create(item).Error)
}
