package checkout

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/beatstore-backend/internal/pricing"
	"github.com/angelmondragon/beatstore-backend/internal/users"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

func pricedLine(t *testing.T, engine *pricing.Engine, seller uuid.UUID, price string) pricing.Line {
	t.Helper()
	p := decimal.RequireFromString(price)
	receiver := seller.String()[:8] + "@example.com"
	return pricing.Line{
		BeatID:    uuid.New(),
		LicenseID: uuid.New(),
		SellerID:  seller,
		Name:      "beat " + price,
		Receiver:  &receiver,
		Price:     p,
		Tax:       engine.TaxOf(p),
		Net:       engine.NetOf(p),
	}
}

func tenPercent(t *testing.T) *pricing.Engine {
	t.Helper()
	engine, err := pricing.NewEngine(decimal.RequireFromString("0.10"))
	require.NoError(t, err)
	return engine
}

func TestSplitTwoSellersAtTenPercent(t *testing.T) {
	engine := tenPercent(t)
	x, y := uuid.New(), uuid.New()

	plan, err := Split("TX00000001", []pricing.Line{
		pricedLine(t, engine, x, "3.99"),
		pricedLine(t, engine, y, "2.00"),
	})
	require.NoError(t, err)

	require.Len(t, plan.Obligations, 3)
	assert.Equal(t, "5.99", plan.Amount.StringFixed(2))
	assert.Equal(t, "3.59", plan.Obligations[0].Amount.StringFixed(2))
	assert.Equal(t, "1.80", plan.Obligations[1].Amount.StringFixed(2))
	tax := plan.Obligations[2]
	assert.True(t, tax.IsTax())
	assert.Equal(t, "0.60", tax.Amount.StringFixed(2))
	assert.Equal(t, "TX00000001-TAX", tax.CorrelationID)
	assert.Nil(t, tax.SellerID)
	assert.Equal(t, "TX00000001-"+x.String(), plan.Obligations[0].CorrelationID)
	assert.Equal(t, enums.TransactionTypeBeatsPurchase, plan.Obligations[0].Type)
}

func TestSplitHasOneObligationPerSellerPlusTax(t *testing.T) {
	engine := tenPercent(t)
	for sellers := 1; sellers <= 5; sellers++ {
		var lines []pricing.Line
		ids := make([]uuid.UUID, sellers)
		for i := range ids {
			ids[i] = uuid.New()
		}
		// Interleave sellers so grouping has to merge non-adjacent lines.
		for round := 0; round < 3; round++ {
			for i, id := range ids {
				lines = append(lines, pricedLine(t, engine, id, decimal.NewFromFloat(1.37*float64(i+round+1)).StringFixed(2)))
			}
		}

		plan, err := Split("TX00000009", lines)
		require.NoError(t, err)
		require.Len(t, plan.Obligations, sellers+1)

		sum := decimal.Zero
		gross := decimal.Zero
		for i, obligation := range plan.Obligations {
			items := decimal.Zero
			for _, item := range obligation.Items {
				items = items.Add(item.Amount)
			}
			assert.True(t, obligation.Amount.Equal(items), "obligation amount must equal its items")
			sum = sum.Add(obligation.Amount)
			if i < sellers {
				assert.Equal(t, ids[i], *obligation.SellerID, "sellers keep first-appearance order")
				assert.Len(t, obligation.Items, 3)
			}
		}
		for _, line := range lines {
			gross = gross.Add(line.Price)
		}
		assert.True(t, plan.Amount.Equal(sum))
		assert.True(t, plan.Amount.Equal(gross), "root amount equals the sum of line prices")
	}
}

func TestSplitZeroRateKeepsTaxObligation(t *testing.T) {
	engine, err := pricing.NewEngine(decimal.Zero)
	require.NoError(t, err)

	plan, err := Split("TX00000002", []pricing.Line{pricedLine(t, engine, uuid.New(), "4.00")})
	require.NoError(t, err)
	require.Len(t, plan.Obligations, 2)
	assert.True(t, plan.Obligations[1].Amount.IsZero())
}

func TestSplitEmptyCart(t *testing.T) {
	_, err := Split("TX00000003", nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, ReasonEmptyCart, pkgerrors.ReasonOf(err))
}

func TestSplitMissingPayoutDestination(t *testing.T) {
	engine := tenPercent(t)
	line := pricedLine(t, engine, uuid.New(), "1.00")
	line.Receiver = nil

	_, err := Split("TX00000004", []pricing.Line{line})
	require.Error(t, err)
	assert.Equal(t, users.ReasonMissingPayoutDestination, pkgerrors.ReasonOf(err))
}

func TestSplitRequiresRootCode(t *testing.T) {
	_, err := Split(" ", nil)
	assert.Error(t, err)
}
