package transactions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	pkgpagination "github.com/angelmondragon/beatstore-backend/pkg/pagination"
)

type transactionsRepository interface {
	LoadTree(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListByUser(ctx context.Context, opts listQuery) ([]models.Transaction, error)
}

// Service is the buyer/seller read side of the transaction tree.
type Service interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo transactionsRepository
}

// NewService wires the read service.
func NewService(repo transactionsRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	return &service{repo: repo}, nil
}

// ErrNotFound is returned for missing transactions and for ones the caller
// does not own, so existence never leaks.
func ErrNotFound() *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
}

func (s *service) Get(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	tx, err := s.repo.LoadTree(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if tx.UserID != userID {
		return nil, ErrNotFound()
	}
	return tx, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if params.Type != "" && !params.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}
	if params.Status != "" && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction status")
	}

	page, err := params.Params.Resolve()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListByUser(ctx, listQuery{userID: params.UserID, txType: params.Type, status: params.Status, page: page})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	rows, nextCursor := pkgpagination.Trim(page, rows, func(t models.Transaction) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	items := make([]TransactionDTO, len(rows))
	for i := range rows {
		items[i] = *FromModel(&rows[i])
	}
	return &ListResult{Items: items, Cursor: nextCursor}, nil
}

// ListParams filters an account's transactions.
type ListParams struct {
	UserID uuid.UUID
	Type   enums.TransactionType
	Status enums.TransactionStatus
	pkgpagination.Params
}

type ListResult struct {
	Items  []TransactionDTO `json:"items"`
	Cursor string           `json:"cursor"`
}

type listQuery struct {
	userID uuid.UUID
	txType enums.TransactionType
	status enums.TransactionStatus
	page   pkgpagination.Query
}
