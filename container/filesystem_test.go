package container_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/fs"
)

// countingFS counts the files opened through it.
type countingFS struct {
	fs.LocalFS
	opened atomic.Int64
}

func (c *countingFS) OpenFile(name string, flag int, perm os.FileMode) (fs.File, error) {
	c.opened.Add(1)
	return c.LocalFS.OpenFile(name, flag, perm)
}

func TestWithFileSystemFromOutside(t *testing.T) {
	name := filepath.Join(t.TempDir(), "wrapped.eidx")
	fsys := &countingFS{}

	c, err := container.Create(name, container.WithFileSystem(fsys))
	require.NoError(t, err)
	_, err = c.Root().CreateDataset("edges/default/source_node_id", 3)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = container.Open(name, container.ReadOnly, container.WithFileSystem(fsys))
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.Root().Exists("edges/default/source_node_id"))
	assert.Equal(t, int64(2), fsys.opened.Load())
}
