package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveClampsLimit(t *testing.T) {
	for _, tc := range []struct{ in, want int }{{0, DefaultLimit}, {-3, DefaultLimit}, {7, 7}, {500, MaxLimit}} {
		q, err := Params{Limit: tc.in}.Resolve()
		require.NoError(t, err)
		assert.Equal(t, tc.want, q.Limit)
		assert.Nil(t, q.After)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.FixedZone("x", 3600))
	id := uuid.New()

	q, err := Params{Cursor: Encode(Cursor{CreatedAt: at, ID: id})}.Resolve()
	require.NoError(t, err)
	require.NotNil(t, q.After)
	assert.True(t, q.After.CreatedAt.Equal(at))
	assert.Equal(t, id, q.After.ID)
}

func TestResolveRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"%%%", "bm90IGpzb24", "e30"} {
		_, err := Params{Cursor: raw}.Resolve()
		assert.Error(t, err, raw)
	}
}

func TestTrim(t *testing.T) {
	q, _ := Params{Limit: 2}.Resolve()
	base := time.Now()
	rows := []Cursor{
		{CreatedAt: base, ID: uuid.New()},
		{CreatedAt: base.Add(-time.Second), ID: uuid.New()},
		{CreatedAt: base.Add(-2 * time.Second), ID: uuid.New()},
	}
	key := func(c Cursor) Cursor { return c }

	page, next := Trim(q, rows, key)
	assert.Len(t, page, 2)
	require.NotEmpty(t, next)
	after, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, rows[1].ID, after.ID)

	page, next = Trim(q, rows[:2], key)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}
