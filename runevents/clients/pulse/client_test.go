package pulse

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresRedisClient(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestNewAcceptsRedisClient(t *testing.T) {
	c, err := New(Options{Redis: redis.NewClient(&redis.Options{Addr: "localhost:6379"})})
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestStreamRequiresName(t *testing.T) {
	c, err := New(Options{Redis: redis.NewClient(&redis.Options{Addr: "localhost:6379"})})
	require.NoError(t, err)

	_, err = c.Stream("")
	require.Error(t, err)
}
