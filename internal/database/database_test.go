package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}
