package licenses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/outbox"
	"github.com/angelmondragon/beatstore-backend/pkg/outbox/payloads"
	pkgpagination "github.com/angelmondragon/beatstore-backend/pkg/pagination"
)

type licensesRepository interface {
	WithTx(tx *gorm.DB) licensesRepository
	CreateMany(ctx context.Context, rows []models.License) error
	List(ctx context.Context, opts listQuery) ([]models.License, error)
	CountAll(ctx context.Context, userID uuid.UUID) (int64, error)
	FindOwned(ctx context.Context, userID, id uuid.UUID) (*models.License, error)
	Update(ctx context.Context, id uuid.UUID, changes map[string]any) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes license seeding, creation, listing, editing and deletion.
type Service interface {
	SeedDefaults(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]models.License, error)
	CreateLicense(ctx context.Context, userID uuid.UUID, input CreateLicenseInput) (*models.License, error)
	ListLicenses(ctx context.Context, params ListParams) (*ListResult, error)
	GetLicense(ctx context.Context, userID, licenseID uuid.UUID) (*models.License, error)
	UpdateLicense(ctx context.Context, userID, licenseID uuid.UUID, input UpdateLicenseInput) (*models.License, error)
	DeleteLicense(ctx context.Context, userID, licenseID uuid.UUID) error
}

type service struct {
	repo   licensesRepository
	tx     txRunner
	outbox outboxEmitter
}

// CreateLicenseInput holds the tier definition supplied by a seller.
type CreateLicenseInput struct {
	Name      string
	MP3       bool
	WAV       bool
	Trackout  bool
	Discounts bool
	Enabled   bool
}

// UpdateLicenseInput is a partial edit. Nil fields are left alone.
type UpdateLicenseInput struct {
	Name      *string
	MP3       *bool
	WAV       *bool
	Trackout  *bool
	Discounts *bool
	Enabled   *bool
}

func (in UpdateLicenseInput) changes() (map[string]any, error) {
	changes := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be blank")
		}
		changes["name"] = name
	}
	for column, v := range map[string]*bool{
		"mp3":       in.MP3,
		"wav":       in.WAV,
		"trackout":  in.Trackout,
		"discounts": in.Discounts,
		"enabled":   in.Enabled,
	} {
		if v != nil {
			changes[column] = *v
		}
	}
	if len(changes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}
	return changes, nil
}

func errLicenseAccessDenied() *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "access denied")
}

// defaultTiers are seeded for every seller and cannot be deleted.
var defaultTiers = []string{"Non exclusive", "Exclusive", "Premium"}

// NewService builds a license service.
func NewService(repo licensesRepository, tx txRunner, emitter outboxEmitter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("license repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, tx: tx, outbox: emitter}, nil
}

func (s *service) SeedDefaults(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]models.License, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	rows := make([]models.License, len(defaultTiers))
	for i, name := range defaultTiers {
		rows[i] = models.License{
			ID:        uuid.New(),
			UserID:    userID,
			Name:      name,
			MP3:       true,
			WAV:       false,
			Trackout:  true,
			Discounts: true,
			Enabled:   true,
			IsDefault: true,
		}
	}
	if err := s.repo.WithTx(tx).CreateMany(ctx, rows); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed default licenses")
	}
	return rows, nil
}

func (s *service) CreateLicense(ctx context.Context, userID uuid.UUID, input CreateLicenseInput) (*models.License, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	license := models.License{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		MP3:       input.MP3,
		WAV:       input.WAV,
		Trackout:  input.Trackout,
		Discounts: input.Discounts,
		Enabled:   input.Enabled,
	}
	if err := s.repo.CreateMany(ctx, []models.License{license}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create license")
	}
	return &license, nil
}

// ListLicenses seeds the default tiers the first time a seller without any
// license history lists them.
func (s *service) ListLicenses(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}

	total, err := s.repo.CountAll(ctx, params.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count licenses")
	}
	if total == 0 {
		if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			_, err := s.SeedDefaults(ctx, tx, params.UserID)
			return err
		}); err != nil {
			return nil, err
		}
	}

	page, err := params.Params.Resolve()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, listQuery{userID: params.UserID, page: page})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list licenses")
	}
	rows, nextCursor := pkgpagination.Trim(page, rows, func(l models.License) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})

	items := make([]ListItem, len(rows))
	for i, row := range rows {
		items[i] = ToListItem(row)
	}
	return &ListResult{Items: items, Cursor: nextCursor}, nil
}

// GetLicense returns one of the caller's licenses. Foreign and missing
// licenses both answer access denied.
func (s *service) GetLicense(ctx context.Context, userID, licenseID uuid.UUID) (*models.License, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	license, err := s.repo.FindOwned(ctx, userID, licenseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errLicenseAccessDenied()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license")
	}
	return license, nil
}

// UpdateLicense edits one of the caller's licenses, default tiers included.
func (s *service) UpdateLicense(ctx context.Context, userID, licenseID uuid.UUID, input UpdateLicenseInput) (*models.License, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	changes, err := input.changes()
	if err != nil {
		return nil, err
	}

	var updated *models.License
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindOwned(ctx, userID, licenseID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errLicenseAccessDenied()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license")
		}
		if err := repo.Update(ctx, licenseID, changes); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update license")
		}
		license, err := repo.FindOwned(ctx, userID, licenseID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload license")
		}
		updated = license
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteLicense soft-deletes a seller's own non-default license. Foreign,
// missing and default licenses all answer access denied.
func (s *service) DeleteLicense(ctx context.Context, userID, licenseID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if licenseID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "license id is required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		license, err := repo.FindOwned(ctx, userID, licenseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errLicenseAccessDenied()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup license")
		}
		if license.IsDefault {
			return pkgerrors.New(pkgerrors.CodeForbidden, "default licenses cannot be deleted")
		}
		if err := repo.SoftDelete(ctx, license.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete license")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLicenseDeleted,
			AggregateType: enums.AggregateLicense,
			AggregateID:   license.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Source: "api"},
			Data:          payloads.LicenseDeletedEvent{LicenseID: license.ID, SellerID: userID},
			Version:       1,
		})
	})
}
