package redisx

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	client, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.Nil(t, client, "empty address disables redis")
	assert.Error(t, ReadyCheck(nil)(ctx))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err = Open(ctx, Options{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, ReadyCheck(client)(ctx))
}
