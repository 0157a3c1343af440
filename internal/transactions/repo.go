package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

// Repository holds the named queries over the transaction tree.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided DB handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CreateTree inserts a root, its children and their items. Callers run it
// inside one transaction so a partial tree is never visible.
func (r *Repository) CreateTree(ctx context.Context, root *models.Transaction) error {
	if root == nil || !root.IsRoot() {
		return errors.New("root transaction required")
	}
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(root).Error; err != nil {
		return err
	}
	for i := range root.Children {
		child := &root.Children[i]
		child.ParentID = &root.ID
		if err := db.Omit(clause.Associations).Create(child).Error; err != nil {
			return err
		}
		for j := range child.Items {
			child.Items[j].TransactionID = child.ID
		}
		if len(child.Items) == 0 {
			continue
		}
		if err := db.Create(&child.Items).Error; err != nil {
			return err
		}
	}
	return nil
}

// FindRootByToken resolves the root carrying a gateway correlation token.
func (r *Repository) FindRootByToken(ctx context.Context, token string) (*models.Transaction, error) {
	var root models.Transaction
	err := r.db.WithContext(ctx).
		Where("gateway_token = ? AND parent_id IS NULL", token).
		First(&root).Error
	if err != nil {
		return nil, err
	}
	return &root, nil
}

// LockRoot re-reads the root with SELECT ... FOR UPDATE.
func (r *Repository) LockRoot(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var root models.Transaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND parent_id IS NULL", id).
		First(&root).Error
	if err != nil {
		return nil, err
	}
	return &root, nil
}

// LoadTree returns a transaction with its children and every level's items.
// A beats_sell payout owns no items; it shows the items of the obligation it
// realizes.
func (r *Repository) LoadTree(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).
		Preload("Items", orderItems).
		Preload("Children", func(db *gorm.DB) *gorm.DB { return db.Order("code ASC") }).
		Preload("Children.Items", orderItems).
		First(&tx, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	if tx.Type == enums.TransactionTypeBeatsSell && tx.SourceTransactionID != nil && len(tx.Items) == 0 {
		err := orderItems(r.db.WithContext(ctx)).
			Where("transaction_id = ?", *tx.SourceTransactionID).
			Find(&tx.Items).Error
		if err != nil {
			return nil, err
		}
	}
	return &tx, nil
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}

// TransitionTree moves the root and all of its children from one status to
// another in a single UPDATE. Zero rows means another writer got there first.
func (r *Repository) TransitionTree(ctx context.Context, rootID uuid.UUID, from, to enums.TransactionStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("(id = ? OR parent_id = ?) AND status = ?", rootID, rootID, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// SetGatewayTransactionID records the provider's id for one obligation.
func (r *Repository) SetGatewayTransactionID(ctx context.Context, id uuid.UUID, gatewayTransactionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", id).
		Update("gateway_transaction_id", gatewayTransactionID).Error
}

// CreatePayout inserts a beats_sell record. The unique source_transaction_id
// rejects a second payout for the same obligation.
func (r *Repository) CreatePayout(ctx context.Context, payout *models.Transaction) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(payout).Error
}

// ListByUser pages through the account's top-level transactions, newest first.
func (r *Repository) ListByUser(ctx context.Context, opts listQuery) ([]models.Transaction, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("user_id = ? AND parent_id IS NULL", opts.userID)
	if opts.txType != "" {
		query = query.Where("type = ?", opts.txType)
	}
	if opts.status != "" {
		query = query.Where("status = ?", opts.status)
	}

	var rows []models.Transaction
	err := query.Scopes(opts.page.Scope).Find(&rows).Error
	return rows, err
}

// ListStaleRoots returns unsettled purchase roots created before cutoff.
func (r *Repository) ListStaleRoots(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("parent_id IS NULL AND type = ?", enums.TransactionTypeBeatsPurchase).
		Where("status IN ?", []enums.TransactionStatus{enums.TransactionStatusWait, enums.TransactionStatusVary}).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
