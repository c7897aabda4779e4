package identity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewAccessionIDIsUUIDv7(t *testing.T) {
	id, err := NewAccessionID()
	require.NoError(t, err)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewAccessionIDIsMonotonicallySortable(t *testing.T) {
	a, err := NewAccessionID()
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	b, err := NewAccessionID()
	require.NoError(t, err)
	require.Less(t, a, b)
}

func TestMustNewAccessionIDDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		require.NotEmpty(t, MustNewAccessionID())
	})
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := FixedClock{At: at}
	require.Equal(t, at, c.Now())
	require.Equal(t, at, c.Now(), "fixed clock never advances")
}
