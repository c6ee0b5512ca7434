package layout

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/rangeindex"
)

func newPopulation(t *testing.T) *container.Group {
	t.Helper()
	c, err := container.Create(filepath.Join(t.TempDir(), "layout.eidx"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	g, err := c.Root().CreateGroup("edges/default")
	require.NoError(t, err)
	return g
}

func TestCreateOpenRead(t *testing.T) {
	g := newPopulation(t)

	tables, err := Create(g, rangeindex.TargetToSource, Shape{Nodes: 3, Descriptors: 2})
	require.NoError(t, err)
	assert.Equal(t, "edges/default/indices/target_to_source/node_id_to_ranges", tables.Ranges.Path())
	assert.Equal(t, "edges/default/indices/target_to_source/range_to_edge_id", tables.Edges.Path())

	idx := &rangeindex.Index{
		Direction:   rangeindex.TargetToSource,
		Nodes:       []rangeindex.NodeRange{{Start: 0, End: 1}, {Start: 1, End: 1}, {Start: 1, End: 2}},
		Descriptors: []rangeindex.Descriptor{{Lo: 4, Hi: 9}, {Lo: 0, Hi: 4}},
	}
	require.NoError(t, tables.Ranges.Write(0, EncodeRanges(idx.Nodes)))
	require.NoError(t, tables.Edges.Write(0, EncodeDescriptors(idx.Descriptors)))

	got, err := Read(g, rangeindex.TargetToSource)
	require.NoError(t, err)
	assert.Equal(t, idx, got)

	_, err = Open(g, rangeindex.SourceToTarget)
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestCreateExisting(t *testing.T) {
	g := newPopulation(t)

	_, err := Create(g, rangeindex.SourceToTarget, Shape{Nodes: 4, Descriptors: 3})
	require.NoError(t, err)

	again, err := Create(g, rangeindex.SourceToTarget, Shape{Nodes: 4, Descriptors: 3})
	require.NoError(t, err)
	assert.Equal(t, Shape{Nodes: 4, Descriptors: 3}, again.Shape())

	_, err = Create(g, rangeindex.SourceToTarget, Shape{Nodes: 4, Descriptors: 5})
	assert.ErrorIs(t, err, ErrIndexExists)

	// A stray group without tables is not a reusable index.
	_, err = g.CreateGroup(DirectionGroup(rangeindex.TargetToSource))
	require.NoError(t, err)
	_, err = Create(g, rangeindex.TargetToSource, Shape{Nodes: 1, Descriptors: 1})
	assert.ErrorIs(t, err, ErrIndexExists)
}

func TestCreateEmpty(t *testing.T) {
	g := newPopulation(t)

	tables, err := Create(g, rangeindex.SourceToTarget, Shape{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 2}, tables.Ranges.Dims())

	idx, err := Read(g, rangeindex.SourceToTarget)
	require.NoError(t, err)
	assert.Empty(t, idx.Nodes)
	assert.Empty(t, idx.Descriptors)
}

func TestCodecs(t *testing.T) {
	_, err := DecodeRanges([]uint64{1, 2, 3})
	assert.ErrorIs(t, err, container.ErrShape)
	_, err = DecodeDescriptors([]uint64{1})
	assert.ErrorIs(t, err, container.ErrShape)

	assert.Equal(t, []uint64{1, 2, 3, 4}, EncodeDescriptors([]rangeindex.Descriptor{{Lo: 1, Hi: 2}, {Lo: 3, Hi: 4}}))
	assert.Equal(t, "indices/source_to_target", DirectionGroup(rangeindex.SourceToTarget))
}
