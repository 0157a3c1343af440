package transactions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

var codeSeq int64

func nextCode() string {
	codeSeq++
	return FormatCode(codeSeq)
}

func strPtr(v string) *string { return &v }

func buildTree(buyerID, sellerID uuid.UUID, token string) *models.Transaction {
	rootCode := nextCode()
	beatID := uuid.New()
	licenseID := uuid.New()
	return &models.Transaction{
		ID:           uuid.New(),
		Code:         rootCode,
		Type:         enums.TransactionTypeBeatsPurchase,
		Amount:       decimal.RequireFromString("3.99"),
		Status:       enums.TransactionStatusWait,
		UserID:       buyerID,
		GatewayToken: strPtr(token),
		Children: []models.Transaction{
			{
				ID:            uuid.New(),
				Code:          nextCode(),
				Type:          enums.TransactionTypeBeatsPurchase,
				Amount:        decimal.RequireFromString("3.59"),
				Status:        enums.TransactionStatusWait,
				UserID:        buyerID,
				PayeeID:       &sellerID,
				CorrelationID: strPtr(fmt.Sprintf("%s-%s", rootCode, sellerID)),
				Items: []models.TransactionItem{{
					ID: uuid.New(), BeatID: beatID, LicenseID: licenseID, Name: "Night Drive",
					Price: decimal.RequireFromString("3.99"), Amount: decimal.RequireFromString("3.59"),
				}},
			},
			{
				ID:            uuid.New(),
				Code:          nextCode(),
				Type:          enums.TransactionTypeTax,
				Amount:        decimal.RequireFromString("0.40"),
				Status:        enums.TransactionStatusWait,
				UserID:        buyerID,
				CorrelationID: strPtr(rootCode + "-TAX"),
				Items: []models.TransactionItem{{
					ID: uuid.New(), BeatID: beatID, LicenseID: licenseID, Name: "Night Drive",
					Price: decimal.RequireFromString("3.99"), Amount: decimal.RequireFromString("0.40"),
				}},
			},
		},
	}
}

func persistTree(t *testing.T, client *db.Client, root *models.Transaction) {
	t.Helper()
	repo := NewRepository(client.DB())
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return repo.WithTx(tx).CreateTree(context.Background(), root)
	}))
}

func TestCreateTreeAndLoad(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	root := buildTree(uuid.New(), uuid.New(), "EC-1")
	persistTree(t, client, root)

	found, err := repo.FindRootByToken(ctx, "EC-1")
	require.NoError(t, err)
	assert.Equal(t, root.ID, found.ID)

	_, err = repo.FindRootByToken(ctx, "EC-missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	tree, err := repo.LoadTree(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, tree.Children, 2)
	sum := decimal.Zero
	for _, child := range tree.Children {
		require.NotNil(t, child.ParentID)
		assert.Equal(t, root.ID, *child.ParentID)
		assert.Equal(t, child.Amount.StringFixed(2), child.ItemsTotal().StringFixed(2))
		sum = sum.Add(child.Amount)
	}
	assert.Equal(t, tree.Amount.StringFixed(2), sum.StringFixed(2))
}

func TestCreateTreeRollsBackAsUnit(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	root := buildTree(uuid.New(), uuid.New(), "EC-2")
	root.Children[1].Code = root.Children[0].Code

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return repo.WithTx(tx).CreateTree(context.Background(), root)
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, client.DB().Model(&models.Transaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestTransitionTreeIsCompareAndSwap(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	root := buildTree(uuid.New(), uuid.New(), "EC-3")
	persistTree(t, client, root)

	affected, err := repo.TransitionTree(ctx, root.ID, enums.TransactionStatusWait, enums.TransactionStatusSuccess)
	require.NoError(t, err)
	assert.EqualValues(t, 3, affected)

	affected, err = repo.TransitionTree(ctx, root.ID, enums.TransactionStatusWait, enums.TransactionStatusSuccess)
	require.NoError(t, err)
	assert.Zero(t, affected)

	tree, err := repo.LoadTree(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusSuccess, tree.Status)
	for _, child := range tree.Children {
		assert.Equal(t, enums.TransactionStatusSuccess, child.Status)
	}
}

func TestCreatePayoutRejectsSecondPayoutForSameSource(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	seller := uuid.New()
	root := buildTree(uuid.New(), seller, "EC-4")
	persistTree(t, client, root)
	source := root.Children[0].ID

	payout := func() *models.Transaction {
		return &models.Transaction{
			ID: uuid.New(), Code: nextCode(), Type: enums.TransactionTypeBeatsSell,
			Amount: decimal.RequireFromString("3.59"), Status: enums.TransactionStatusSuccess,
			UserID: seller, SourceTransactionID: &source,
		}
	}
	require.NoError(t, repo.CreatePayout(ctx, payout()))
	err := repo.CreatePayout(ctx, payout())
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))

	var stored []models.Transaction
	require.NoError(t, client.DB().Where("source_transaction_id = ?", source).Find(&stored).Error)
	assert.Len(t, stored, 1)
}

func TestLoadTreeShowsSoldItemsOnPayout(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	seller := uuid.New()
	root := buildTree(uuid.New(), seller, "EC-5")
	persistTree(t, client, root)
	source := root.Children[0]
	require.NotEmpty(t, source.Items)

	payout := &models.Transaction{
		ID: uuid.New(), Code: nextCode(), Type: enums.TransactionTypeBeatsSell,
		Amount: source.Amount, Status: enums.TransactionStatusSuccess,
		UserID: seller, SourceTransactionID: &source.ID,
	}
	require.NoError(t, repo.CreatePayout(ctx, payout))

	loaded, err := repo.LoadTree(ctx, payout.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, len(source.Items))
	for i, item := range loaded.Items {
		assert.Equal(t, source.ID, item.TransactionID)
		assert.Equal(t, source.Items[i].BeatID, item.BeatID)
	}
	assert.Empty(t, loaded.Children)
}

func TestListStaleRoots(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	old := buildTree(uuid.New(), uuid.New(), "EC-old")
	old.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	persistTree(t, client, old)
	fresh := buildTree(uuid.New(), uuid.New(), "EC-fresh")
	persistTree(t, client, fresh)
	settled := buildTree(uuid.New(), uuid.New(), "EC-settled")
	settled.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	settled.Status = enums.TransactionStatusSuccess
	persistTree(t, client, settled)

	rows, err := repo.ListStaleRoots(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, old.ID, rows[0].ID)
}

type stubCounter struct {
	next int64
	err  error
	name string
}

func (s *stubCounter) NextSequence(ctx context.Context, name string) (int64, error) {
	s.name = name
	if s.err != nil {
		return 0, s.err
	}
	s.next++
	return s.next, nil
}

func TestRedisCodeSource(t *testing.T) {
	counter := &stubCounter{next: 41}
	source := NewRedisCodeSource(counter)

	code, err := source.NextCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TX00000042", code)
	assert.Equal(t, "transaction_code", counter.name)

	counter.err = fmt.Errorf("redis down")
	_, err = source.NextCode(context.Background())
	assert.Error(t, err)
}

func TestNewCodeSourcePicksBackendByDialect(t *testing.T) {
	client := dbtest.Open(t)
	counter := &stubCounter{next: 6}

	code, err := NewCodeSource(client, counter).NextCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TX00000007", code)
	assert.Equal(t, "transaction_code", counter.name)

	pg, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost dbname=beatstore"}), &gorm.Config{DisableAutomaticPing: true, DryRun: true})
	require.NoError(t, err)
	source := NewCodeSource(db.FromConn(pg), counter)
	assert.IsType(t, &sequenceCodeSource{}, source)
	sql := pg.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var n int64
		return tx.Raw(nextCodeSQL).Scan(&n)
	})
	assert.Equal(t, "SELECT nextval('transaction_code_seq')", sql)
}
