package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateTable(t *testing.T) {
	for _, name := range []string{"oura_trends", "_t1", "trends_v2"} {
		require.NoError(t, ValidateTable(name), name)
	}
	for _, name := range []string{"", "Trends", "1trends", "public.trends", `t"x`, "a b"} {
		require.ErrorIs(t, ValidateTable(name), ErrInvalidTable, name)
	}
}

func TestReplaceAllInvalidTableIsStoreWriteError(t *testing.T) {
	err := NewRepository(nil).ReplaceAll(context.Background(), "Bad-Name", nil, nil)
	var writeErr *StoreWriteError
	require.True(t, errors.As(err, &writeErr))
	require.Equal(t, "Bad-Name", writeErr.Table)
	require.Contains(t, err.Error(), "store write to Bad-Name")
}
