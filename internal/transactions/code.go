package transactions

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/redis"
)

// CodeSource hands out human-readable transaction codes. The unique index on
// transactions.code is what guarantees uniqueness.
type CodeSource interface {
	NextCode(ctx context.Context) (string, error)
}

// FormatCode renders a sequence number as a transaction code.
func FormatCode(n int64) string {
	return fmt.Sprintf("TX%08d", n)
}

type sequenceIncrementer interface {
	NextSequence(ctx context.Context, name string) (int64, error)
}

type redisCodeSource struct {
	counter sequenceIncrementer
}

// NewRedisCodeSource increments the shared transaction code counter in Redis.
func NewRedisCodeSource(counter sequenceIncrementer) CodeSource {
	return &redisCodeSource{counter: counter}
}

func (s *redisCodeSource) NextCode(ctx context.Context) (string, error) {
	n, err := s.counter.NextSequence(ctx, redis.TransactionCodeCounter)
	if err != nil {
		return "", fmt.Errorf("next transaction code: %w", err)
	}
	return FormatCode(n), nil
}

const nextCodeSQL = "SELECT nextval('transaction_code_seq')"

// NewCodeSource prefers the Postgres sequence, which survives a Redis flush.
// sqlite has no sequences, so dev databases count in Redis.
func NewCodeSource(client *db.Client, counter sequenceIncrementer) CodeSource {
	if client.IsSQLite() {
		return NewRedisCodeSource(counter)
	}
	return NewSequenceCodeSource(client.DB())
}

type sequenceCodeSource struct {
	db *gorm.DB
}

// NewSequenceCodeSource reads transaction_code_seq from Postgres.
func NewSequenceCodeSource(db *gorm.DB) CodeSource {
	return &sequenceCodeSource{db: db}
}

func (s *sequenceCodeSource) NextCode(ctx context.Context) (string, error) {
	var n int64
	if err := s.db.WithContext(ctx).Raw(nextCodeSQL).Scan(&n).Error; err != nil {
		return "", fmt.Errorf("next transaction code: %w", err)
	}
	return FormatCode(n), nil
}
