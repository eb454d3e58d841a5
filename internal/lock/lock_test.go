package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNilLockerGrantsLock(t *testing.T) {
	var l *Locker

	token, ok, err := l.TryLock(context.Background(), GenerationKey("1", "PER_CREDIT"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, token)
	require.NoError(t, l.Release(context.Background(), "k", token))
}

func TestTryLockValidatesArguments(t *testing.T) {
	var l *Locker

	_, _, err := l.TryLock(context.Background(), "", time.Minute)
	require.ErrorIs(t, err, ErrEmptyKey)

	_, _, err = l.TryLock(context.Background(), "k", 0)
	require.ErrorIs(t, err, ErrInvalidTTL)
}

func TestNewLockerWithoutClient(t *testing.T) {
	require.Nil(t, NewLocker(nil))
}

func TestGenerationKey(t *testing.T) {
	require.Equal(t, "bursar:generation:42:FLAT", GenerationKey("42", "FLAT"))
}
