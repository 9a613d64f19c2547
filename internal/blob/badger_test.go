package blob

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBadger(t *testing.T) *BadgerStore {
	bs, err := NewBadgerStore(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	return bs
}

func TestBadgerStore(t *testing.T) {
	ctx := context.TODO()
	bs := newBadger(t)

	id, err := bs.Put(ctx, &Object{OwnerID: "u1", Name: "a.txt", Mime: "text/plain", Data: []byte("hello")})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	obj, err := bs.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", obj.Name)
	assert.Equal(t, "text/plain", obj.Mime)
	assert.Equal(t, int64(5), obj.Size)
	assert.Equal(t, []byte("hello"), obj.Data)

	// blobs are scoped by owner
	_, err = bs.Get(ctx, "u2", id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, bs.Delete(ctx, "u1", id))
	require.NoError(t, bs.Delete(ctx, "u1", id))

	_, err = bs.Get(ctx, "u1", id)
	assert.ErrorIs(t, err, ErrNotFound)
}
