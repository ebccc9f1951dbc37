package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_UpdateIconURLClearsErrorState(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.RecordFailure(ctx, "42", "timeout"))
	require.NoError(t, s.UpdateIconURL(ctx, "42", "memory://42.png"))

	entity, err := s.GetEntity(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "memory://42.png", entity.IconURL)
	require.Empty(t, entity.FetchError)
	require.Equal(t, 1, entity.FetchRetries)
}

func TestStore_RecordFailureIncrements(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.RecordFailure(ctx, "7", "first"))
	require.NoError(t, s.RecordFailure(ctx, "7", "second"))

	entity, err := s.GetEntity(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, "second", entity.FetchError)
	require.Equal(t, 2, entity.FetchRetries)
}

func TestStore_GetEntityMissing(t *testing.T) {
	t.Parallel()

	s := NewStore()
	_, err := s.GetEntity(context.Background(), "nope")
	require.ErrorIs(t, err, ErrEntityNotFound)
}
