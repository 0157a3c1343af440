package beats

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
)

// Repository loads beats together with their license price map.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a beats repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx rebinds the repository to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts the beat and its price rows.
func (r *Repository) Create(ctx context.Context, beat *models.Beat) error {
	if beat.ID == uuid.Nil {
		beat.ID = uuid.New()
	}
	for i := range beat.Prices {
		beat.Prices[i].BeatID = beat.ID
	}
	return r.db.WithContext(ctx).Omit("Seller", "Prices.License").Create(beat).Error
}

// SetPrice upserts one entry of the beat's price map.
func (r *Repository) SetPrice(ctx context.Context, price models.BeatPrice) error {
	return r.db.WithContext(ctx).
		Where("beat_id = ? AND license_id = ?", price.BeatID, price.LicenseID).
		Assign(models.BeatPrice{Price: price.Price}).
		FirstOrCreate(&models.BeatPrice{BeatID: price.BeatID, LicenseID: price.LicenseID}).Error
}

// FindByID loads one beat with its seller and live licensed prices.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Beat, error) {
	var beat models.Beat
	if err := r.withCatalog(ctx).First(&beat, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &beat, nil
}

// FindByIDs loads beats keyed by id. Missing ids are absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Beat, error) {
	out := make(map[uuid.UUID]*models.Beat, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Beat
	if err := r.withCatalog(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// withCatalog preloads what pricing needs. Soft-deleted licenses are filtered
// by gorm, so their price rows load with a nil License.
func (r *Repository) withCatalog(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Seller").
		Preload("Prices").
		Preload("Prices.License")
}
