package licenses

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
)

// Repository exposes license persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a license repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) licensesRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CreateMany inserts license rows in one statement.
func (r *Repository) CreateMany(ctx context.Context, rows []models.License) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// List returns a seller's live licenses, newest first, using cursor pagination.
func (r *Repository) List(ctx context.Context, opts listQuery) ([]models.License, error) {
	var rows []models.License
	err := r.db.WithContext(ctx).
		Model(&models.License{}).
		Where("user_id = ?", opts.userID).
		Scopes(opts.page.Scope).
		Find(&rows).Error
	return rows, err
}

// CountAll counts every license the seller ever had, soft-deleted ones included.
func (r *Repository) CountAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.License{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// FindOwned loads a live license belonging to userID.
func (r *Repository) FindOwned(ctx context.Context, userID, id uuid.UUID) (*models.License, error) {
	var license models.License
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&license).Error; err != nil {
		return nil, err
	}
	return &license, nil
}

// Update writes the given columns on a live license.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, changes map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.License{}).Where("id = ?", id).Updates(changes).Error
}

// SoftDelete stamps deleted_at; price rows stay but stop resolving.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.License{}, "id = ?", id).Error
}
