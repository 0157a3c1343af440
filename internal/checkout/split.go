package checkout

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beatstore-backend/internal/pricing"
	"github.com/angelmondragon/beatstore-backend/internal/users"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

// ReasonEmptyCart is carried in the error details of ErrEmptyCart.
const ReasonEmptyCart = "empty_cart"

const taxSuffix = "TAX"

// ErrEmptyCart rejects a checkout with nothing to buy.
func ErrEmptyCart() *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").
		WithReason(ReasonEmptyCart)
}

// Obligation is one payee's share of the root. Seller obligations carry the
// seller's net per line; the tax obligation carries each line's tax.
type Obligation struct {
	Type          enums.TransactionType
	CorrelationID string
	SellerID      *uuid.UUID
	Receiver      *string
	Amount        decimal.Decimal
	Items         []ObligationItem
}

// ObligationItem is one cart line as seen by a single obligation.
type ObligationItem struct {
	BeatID    uuid.UUID
	LicenseID uuid.UUID
	Name      string
	Price     decimal.Decimal
	Amount    decimal.Decimal
}

// Plan is the split of one checkout: seller obligations in order of first
// appearance followed by the tax obligation.
type Plan struct {
	RootCode    string
	Amount      decimal.Decimal
	Obligations []Obligation
}

// IsTax reports whether the obligation is the platform tax share.
func (o Obligation) IsTax() bool {
	return o.Type == enums.TransactionTypeTax
}

// CorrelationID builds the id that ties an obligation to its gateway block.
func CorrelationID(rootCode string, sellerID *uuid.UUID) string {
	if sellerID == nil {
		return fmt.Sprintf("%s-%s", rootCode, taxSuffix)
	}
	return fmt.Sprintf("%s-%s", rootCode, sellerID.String())
}

// Split groups priced lines by seller. The tax obligation is always present,
// even when zero, so the gateway sees a stable n+1 block layout.
func Split(rootCode string, lines []pricing.Line) (*Plan, error) {
	if strings.TrimSpace(rootCode) == "" {
		return nil, fmt.Errorf("root code required")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart()
	}

	order := make([]uuid.UUID, 0, len(lines))
	bySeller := make(map[uuid.UUID]*Obligation, len(lines))
	tax := Obligation{
		Type:          enums.TransactionTypeTax,
		CorrelationID: CorrelationID(rootCode, nil),
		Amount:        decimal.Zero,
	}

	for _, line := range lines {
		if line.Receiver == nil || strings.TrimSpace(*line.Receiver) == "" {
			return nil, users.ErrMissingPayoutDestination(line.SellerID)
		}
		obligation, ok := bySeller[line.SellerID]
		if !ok {
			sellerID := line.SellerID
			obligation = &Obligation{
				Type:          enums.TransactionTypeBeatsPurchase,
				CorrelationID: CorrelationID(rootCode, &sellerID),
				SellerID:      &sellerID,
				Receiver:      line.Receiver,
				Amount:        decimal.Zero,
			}
			bySeller[sellerID] = obligation
			order = append(order, sellerID)
		}
		obligation.Amount = obligation.Amount.Add(line.Net)
		obligation.Items = append(obligation.Items, ObligationItem{
			BeatID:    line.BeatID,
			LicenseID: line.LicenseID,
			Name:      line.Name,
			Price:     line.Price,
			Amount:    line.Net,
		})

		tax.Amount = tax.Amount.Add(line.Tax)
		tax.Items = append(tax.Items, ObligationItem{
			BeatID:    line.BeatID,
			LicenseID: line.LicenseID,
			Name:      line.Name,
			Price:     line.Price,
			Amount:    line.Tax,
		})
	}

	plan := &Plan{RootCode: rootCode, Amount: decimal.Zero}
	for _, sellerID := range order {
		obligation := bySeller[sellerID]
		plan.Obligations = append(plan.Obligations, *obligation)
		plan.Amount = plan.Amount.Add(obligation.Amount)
	}
	plan.Obligations = append(plan.Obligations, tax)
	plan.Amount = plan.Amount.Add(tax.Amount)
	return plan, nil
}
