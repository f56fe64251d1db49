package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskguard/pkg/platform/sentinel"
)

func TestInMemoryTRL(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	trl := NewInMemoryTRL(func() time.Time { return now })

	require.NoError(t, trl.RevokeToken(ctx, "jti-1", time.Minute))

	revoked, err := trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = trl.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	now = now.Add(time.Minute)
	revoked, err = trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "entry lapses with the token")
}

func TestInMemoryTRL_RejectsNonPositiveTTL(t *testing.T) {
	trl := NewInMemoryTRL(nil)
	err := trl.RevokeToken(context.Background(), "jti", 0)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestInMemoryTRL_EmptyJTIIsNoop(t *testing.T) {
	trl := NewInMemoryTRL(nil)
	require.NoError(t, trl.RevokeToken(context.Background(), "", time.Minute))
	revoked, err := trl.IsRevoked(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, revoked)
}
