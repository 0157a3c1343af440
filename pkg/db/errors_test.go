package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	pgxErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_cart_items_user_beat"}
	pqErr := &pq.Error{Code: "23505", Constraint: "ux_transactions_source"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pgx any", err: fmt.Errorf("insert: %w", pgxErr), want: true},
		{name: "pgx matching constraint", err: pgxErr, constraint: "ux_cart_items_user_beat", want: true},
		{name: "pgx other constraint", err: pgxErr, constraint: "ux_cart_items_token_beat", want: false},
		{name: "pgx other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "pq matching", err: pqErr, constraint: "ux_transactions_source", want: true},
		{name: "sqlite message", err: errors.New("UNIQUE constraint failed: cart_items.user_id, cart_items.beat_id"), want: true},
		{name: "gorm translated", err: fmt.Errorf("save: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Fatalf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAsPGNormalizesDrivers(t *testing.T) {
	pg, ok := AsPG(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23503", TableName: "cart_items", Detail: "key not present"}))
	assert.True(t, ok)
	assert.Equal(t, PGError{Code: "23503", Table: "cart_items", Detail: "key not present"}, pg)

	pg, ok = AsPG(&pq.Error{Code: "42P01", Message: "relation missing"})
	assert.True(t, ok)
	assert.Equal(t, "42P01", pg.Code)
	assert.Equal(t, "relation missing", pg.Message)

	_, ok = AsPG(errors.New("plain"))
	assert.False(t, ok)
}
