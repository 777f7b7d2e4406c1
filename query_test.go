package uow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providerWithRows(n int) *fakeProvider {
	p := newFakeProvider("p", &recorder{}, LevelDefault, nil)
	for i := 0; i < n; i++ {
		p.rows = append(p.rows, customer{ID: int64(i + 1), Name: "row"})
	}
	return p
}

func TestQuery(t *testing.T) {
	rows, err := Query[customer](context.Background(), providerWithRows(3), "all")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3), rows[2].ID)
}

func TestQueryFirst(t *testing.T) {
	ctx := context.Background()

	first, err := QueryFirst[customer](ctx, providerWithRows(2), "all")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)

	_, err = QueryFirst[customer](ctx, providerWithRows(0), "all")
	assert.True(t, IsNotFound(err))

	none, err := QueryFirstOrDefault[customer](ctx, providerWithRows(0), "all")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestQuerySingle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		rows    int
		check   func(error) bool
		wantNil bool
	}{
		{"one row", 1, nil, false},
		{"no rows", 0, IsNotFound, true},
		{"two rows", 2, IsMultipleResults, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuerySingle[customer](ctx, providerWithRows(tt.rows), "all")
			if tt.check == nil {
				require.NoError(t, err)
			} else {
				assert.True(t, tt.check(err), "unexpected error %v", err)
			}
			assert.Equal(t, tt.wantNil, got == nil)
		})
	}
}

func TestQuerySingleOrDefault(t *testing.T) {
	ctx := context.Background()

	none, err := QuerySingleOrDefault[customer](ctx, providerWithRows(0), "all")
	require.NoError(t, err)
	assert.Nil(t, none)

	one, err := QuerySingleOrDefault[customer](ctx, providerWithRows(1), "all")
	require.NoError(t, err)
	assert.Equal(t, int64(1), one.ID)

	_, err = QuerySingleOrDefault[customer](ctx, providerWithRows(2), "all")
	assert.True(t, IsMultipleResults(err))
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	p := providerWithRows(2)

	got, err := Get[customer](ctx, p, int64(2))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)

	missing, err := Get[customer](ctx, p, int64(9))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
