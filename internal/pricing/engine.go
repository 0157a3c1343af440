package pricing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

const moneyPlaces = 2

// ReasonInvalidLicense is carried in the error details of ErrInvalidLicense.
const ReasonInvalidLicense = "invalid_license"

var one = decimal.NewFromInt(1)

// Engine resolves license prices and splits them into platform tax and seller net.
type Engine struct {
	TaxRate decimal.Decimal
}

// Line is one priced cart entry.
type Line struct {
	BeatID    uuid.UUID
	LicenseID uuid.UUID
	SellerID  uuid.UUID
	Name      string
	Receiver  *string
	Price     decimal.Decimal
	Tax       decimal.Decimal
	Net       decimal.Decimal
}

// NewEngine validates the rate, which must fall in [0, 1).
func NewEngine(rate decimal.Decimal) (*Engine, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("tax rate must be in [0, 1), got %s", rate)
	}
	return &Engine{TaxRate: rate}, nil
}

// ErrInvalidLicense reports a license missing from the beat's price map or not
// owned by the beat's seller.
func ErrInvalidLicense(beatID, licenseID uuid.UUID) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "license is not offered for this beat").
		WithDetails(map[string]any{
			"beat_id":    beatID.String(),
			"license_id": licenseID.String(),
		}).
		WithReason(ReasonInvalidLicense)
}

// PriceOf looks the license up in the beat's price map. The beat must be
// loaded with Prices.License; a soft-deleted license never loads.
func (e *Engine) PriceOf(beat *models.Beat, licenseID uuid.UUID) (decimal.Decimal, error) {
	if beat == nil {
		return decimal.Zero, fmt.Errorf("beat required")
	}
	for _, price := range beat.Prices {
		if price.LicenseID != licenseID {
			continue
		}
		if price.License == nil || price.License.UserID != beat.UserID {
			break
		}
		return price.Price, nil
	}
	return decimal.Zero, ErrInvalidLicense(beat.ID, licenseID)
}

// TaxOf rounds half-up to cents.
func (e *Engine) TaxOf(price decimal.Decimal) decimal.Decimal {
	return price.Mul(e.TaxRate).Round(moneyPlaces)
}

// NetOf is the seller's share of price after tax.
func (e *Engine) NetOf(price decimal.Decimal) decimal.Decimal {
	return price.Sub(e.TaxOf(price)).Round(moneyPlaces)
}

// Line prices a single beat/license pair. Tax and net are rounded here, per
// line, before any caller sums them.
func (e *Engine) Line(beat *models.Beat, licenseID uuid.UUID) (Line, error) {
	price, err := e.PriceOf(beat, licenseID)
	if err != nil {
		return Line{}, err
	}
	line := Line{
		BeatID:    beat.ID,
		LicenseID: licenseID,
		SellerID:  beat.UserID,
		Name:      beat.Name,
		Price:     price.Round(moneyPlaces),
		Tax:       e.TaxOf(price),
		Net:       e.NetOf(price),
	}
	if beat.Seller != nil {
		line.Receiver = beat.Seller.PaypalReceiver
	}
	return line, nil
}
