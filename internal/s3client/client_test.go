package s3client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_PutGetListDelete(t *testing.T) {
	c := TestClient(t, "exports")
	ctx := context.Background()

	require.Equal(t, "exports", c.BucketName())

	_, err := c.GetObject(ctx, "exports/missing.json")
	require.True(t, errors.Is(err, ErrObjectNotFound), "got %v", err)

	require.NoError(t, c.PutObject(ctx, "exports/b.json", []byte(`{"b":1}`), "application/json"))
	require.NoError(t, c.PutObject(ctx, "exports/a.json", []byte(`{"a":1}`), "application/json"))
	require.NoError(t, c.PutObject(ctx, "other/c.json", []byte(`{}`), "application/json"))

	got, err := c.GetObject(ctx, "exports/a.json")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(got))

	keys, err := c.ListKeys(ctx, "exports/")
	require.NoError(t, err)
	require.Equal(t, []string{"exports/a.json", "exports/b.json"}, keys)

	require.NoError(t, c.DeleteObject(ctx, "exports/a.json"))
	keys, err = c.ListKeys(ctx, "exports/")
	require.NoError(t, err)
	require.Equal(t, []string{"exports/b.json"}, keys)
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "auto"})
	require.Error(t, err)
}
