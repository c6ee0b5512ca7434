package rangeindex

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edgeidx/edges"
	"github.com/hupe1980/edgeidx/testutil"
)

func mustSlice(t *testing.T, src, tgt []uint64) *edges.Slice {
	t.Helper()
	v, err := edges.NewSlice(src, tgt)
	require.NoError(t, err)
	return v
}

func TestBuildScenario(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	v := mustSlice(t, src, tgt)

	t.Run("source_to_target", func(t *testing.T) {
		idx, err := Build(SourceToTarget, testutil.ScenarioSourceNodes, v)
		require.NoError(t, err)
		require.Len(t, idx.Nodes, 100)
		require.Len(t, idx.Descriptors, 10)

		for n := range uint64(90) {
			assert.Equal(t, uint64(0), idx.Nodes[n].Len(), "node %d", n)
		}
		for k := range uint64(10) {
			assert.Equal(t, NodeRange{Start: k, End: k + 1}, idx.Nodes[90+k])
			assert.Equal(t, Descriptor{Lo: 10 * k, Hi: 10*k + 10}, idx.Descriptors[k])
		}
		require.NoError(t, Verify(idx, v))
	})

	t.Run("target_to_source", func(t *testing.T) {
		idx, err := Build(TargetToSource, testutil.ScenarioTargetNodes, v)
		require.NoError(t, err)
		require.Len(t, idx.Nodes, 10)
		require.Len(t, idx.Descriptors, 100)

		for i := range uint64(10) {
			assert.Equal(t, NodeRange{Start: 10 * i, End: 10*i + 10}, idx.Nodes[i])
			for j := range uint64(10) {
				assert.Equal(t, Descriptor{Lo: 10*j + i, Hi: 10*j + i + 1}, idx.Descriptors[10*i+j])
			}
		}
		require.NoError(t, Verify(idx, v))
	})
}

func TestBuildMatchesReference(t *testing.T) {
	rng := testutil.NewRNG(4711)

	cases := []struct {
		name    string
		edges   int
		nodes   uint64
		shuffle bool
	}{
		{"dense", 2000, 17, true},
		{"sparse", 500, 5000, true},
		{"sorted", 3000, 40, false},
		{"single node", 100, 1, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, tgt := rng.SortedEdges(tc.edges, tc.nodes, tc.nodes)
			if tc.shuffle {
				rng.Shuffle(src, tgt)
			}
			v := mustSlice(t, src, tgt)

			for _, d := range Directions {
				ids := src
				if d == TargetToSource {
					ids = tgt
				}
				want := testutil.EdgesByNode(ids, tc.nodes)

				idx, err := Build(d, tc.nodes, v)
				require.NoError(t, err)
				require.NoError(t, Verify(idx, v))

				assert.Equal(t, uint64(tc.edges), idx.EdgeCount())
				assert.LessOrEqual(t, len(idx.Descriptors), tc.edges)
				for n := range tc.nodes {
					got := idx.EdgeIDs(n)
					if len(want[n]) == 0 {
						assert.Empty(t, got, "%s node %d", d, n)
						continue
					}
					assert.Equal(t, want[n], got, "%s node %d", d, n)
				}
			}
		})
	}
}

func TestBuildCompactness(t *testing.T) {
	// Sorted by source: every source has exactly one descriptor.
	rng := testutil.NewRNG(7)
	src, tgt := rng.SortedEdges(1000, 30, 30)
	v := mustSlice(t, src, tgt)

	idx, err := Build(SourceToTarget, 30, v)
	require.NoError(t, err)
	for n, r := range idx.Nodes {
		if r.Len() > 0 {
			assert.Equal(t, uint64(1), r.Len(), "node %d", n)
		}
	}
}

func TestBuildBoundaries(t *testing.T) {
	t.Run("no nodes no edges", func(t *testing.T) {
		idx, err := Build(SourceToTarget, 0, mustSlice(t, nil, nil))
		require.NoError(t, err)
		assert.Empty(t, idx.Nodes)
		assert.Empty(t, idx.Descriptors)
		assert.NotNil(t, idx.Descriptors)
	})

	t.Run("no nodes with edges", func(t *testing.T) {
		_, err := Build(SourceToTarget, 0, mustSlice(t, []uint64{0}, []uint64{0}))
		assert.ErrorIs(t, err, ErrPrecondition)
	})

	t.Run("node count too large", func(t *testing.T) {
		v := mustSlice(t, []uint64{90}, []uint64{0})
		for _, n := range []uint64{MaxNodeCount + 1, math.MaxUint64} {
			_, err := Build(SourceToTarget, n, v)
			assert.ErrorIs(t, err, ErrPrecondition, "node count %d", n)
		}
	})

	t.Run("node count below max id", func(t *testing.T) {
		v := mustSlice(t, []uint64{0, 5, 1}, []uint64{0, 0, 0})
		_, err := Build(SourceToTarget, 5, v)

		var oor *ErrNodeOutOfRange
		require.ErrorAs(t, err, &oor)
		assert.Equal(t, uint64(1), oor.EdgeID)
		assert.Equal(t, uint64(5), oor.Node)
		assert.Equal(t, uint64(5), oor.NodeCount)
		assert.ErrorIs(t, err, ErrPrecondition)
	})

	t.Run("trailing empty nodes", func(t *testing.T) {
		v := mustSlice(t, []uint64{0, 0, 1}, []uint64{0, 0, 0})
		idx, err := Build(SourceToTarget, 6, v)
		require.NoError(t, err)
		assert.Equal(t, []NodeRange{{0, 1}, {1, 2}, {2, 2}, {2, 2}, {2, 2}, {2, 2}}, idx.Nodes)
		assert.Equal(t, []Descriptor{{0, 2}, {2, 3}}, idx.Descriptors)
	})

	t.Run("shard offsets", func(t *testing.T) {
		full := mustSlice(t, []uint64{1, 1, 0, 1}, []uint64{0, 0, 0, 0})
		shard, err := full.Shard(1, 3)
		require.NoError(t, err)

		idx, err := Build(SourceToTarget, 2, shard)
		require.NoError(t, err)
		assert.Equal(t, []Descriptor{{2, 3}, {1, 2}, {3, 4}}, idx.Descriptors)
	})
}

func TestSliceAndJoin(t *testing.T) {
	rng := testutil.NewRNG(99)
	src, tgt := rng.Edges(800, 50, 50)
	v := mustSlice(t, src, tgt)

	idx, err := Build(TargetToSource, 50, v)
	require.NoError(t, err)

	for _, parts := range []int{1, 3, 7, 64} {
		t.Run(fmt.Sprintf("parts=%d", parts), func(t *testing.T) {
			var slices []*Slice
			for p := range parts {
				off, cnt := split(50, parts, p)
				s, err := idx.Slice(off, cnt)
				require.NoError(t, err)
				require.NoError(t, s.Check())
				slices = append(slices, s)
			}

			joined, err := Join(slices)
			require.NoError(t, err)
			assert.Equal(t, idx, joined)
		})
	}

	_, err = idx.Slice(49, 2)
	assert.ErrorIs(t, err, ErrPrecondition)

	a, _ := idx.Slice(0, 10)
	c, _ := idx.Slice(20, 30)
	_, err = Join([]*Slice{a, c})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestRunsReassemble(t *testing.T) {
	rng := testutil.NewRNG(2024)
	src, tgt := rng.SortedEdges(1200, 25, 25)
	full := mustSlice(t, src, tgt)

	for _, d := range Directions {
		want, err := Build(d, 25, full)
		require.NoError(t, err)

		// Build per edge shard, redistribute runs to node owners.
		const workers = 4
		var runs []Run
		for w := range workers {
			off, cnt := split(1200, workers, w)
			shard, err := full.Shard(off, cnt)
			require.NoError(t, err)
			local, err := Build(d, 25, shard)
			require.NoError(t, err)
			runs = append(runs, local.Runs()...)
		}

		var parts []*Slice
		base := uint64(0)
		for w := range workers {
			off, cnt := split(25, workers, w)
			var owned []Run
			for _, r := range runs {
				if r.Node >= off && r.Node < off+cnt {
					owned = append(owned, r)
				}
			}
			owned = MergeRuns(owned)

			s, err := FromRuns(d, off, cnt, base, owned)
			require.NoError(t, err)
			require.NoError(t, s.Check())
			base += uint64(len(s.Descriptors))
			parts = append(parts, s)
		}

		got, err := Join(parts)
		require.NoError(t, err)
		assert.Equal(t, want, got, "%s", d)
	}
}

func TestMergeRuns(t *testing.T) {
	runs := []Run{
		{Node: 2, Lo: 5, Hi: 6},
		{Node: 1, Lo: 3, Hi: 4},
		{Node: 1, Lo: 0, Hi: 3},
		{Node: 2, Lo: 7, Hi: 9},
		{Node: 2, Lo: 6, Hi: 7},
		{Node: 3, Lo: 9, Hi: 10},
	}
	assert.Equal(t, []Run{
		{Node: 1, Lo: 0, Hi: 4},
		{Node: 2, Lo: 5, Hi: 9},
		{Node: 3, Lo: 9, Hi: 10},
	}, MergeRuns(runs))
}

func TestFromRunsRejectsForeignNodes(t *testing.T) {
	_, err := FromRuns(SourceToTarget, 2, 2, 0, []Run{{Node: 5, Lo: 0, Hi: 1}})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestVerifyDetectsViolations(t *testing.T) {
	v := mustSlice(t, []uint64{0, 0, 1, 0}, []uint64{0, 0, 0, 0})
	good := func() *Index {
		idx, err := Build(SourceToTarget, 2, v)
		require.NoError(t, err)
		return idx
	}
	require.NoError(t, Verify(good(), v))

	cases := map[string]func(idx *Index){
		"gap in ranges": func(idx *Index) { idx.Nodes[1].Start++ },
		"unaddressed descriptors": func(idx *Index) {
			idx.Descriptors = append(idx.Descriptors, Descriptor{Lo: 3, Hi: 4})
		},
		"wrong node": func(idx *Index) { idx.Descriptors[0] = Descriptor{Lo: 1, Hi: 3} },
		"not maximal": func(idx *Index) {
			idx.Descriptors = []Descriptor{{0, 1}, {1, 2}, {3, 4}, {2, 3}}
			idx.Nodes = []NodeRange{{0, 3}, {3, 4}}
		},
		"missing edge": func(idx *Index) {
			idx.Descriptors = []Descriptor{{0, 2}, {2, 3}}
			idx.Nodes = []NodeRange{{0, 1}, {1, 2}}
		},
		"empty descriptor": func(idx *Index) { idx.Descriptors[0].Hi = idx.Descriptors[0].Lo },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			idx := good()
			mutate(idx)
			err := Verify(idx, v)
			var verr *VerifyError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	shard, err := v.Shard(1, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, Verify(good(), shard), ErrPrecondition)
}

func TestDirection(t *testing.T) {
	assert.Equal(t, "source_to_target", SourceToTarget.String())
	assert.Equal(t, "target_to_source", TargetToSource.String())

	d, err := ParseDirection("target_to_source")
	require.NoError(t, err)
	assert.Equal(t, TargetToSource, d)
	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestEstimateMemory(t *testing.T) {
	assert.Equal(t, uint64(8), EstimateMemory(0, 0))
	assert.Greater(t, EstimateMemory(1000, 10), EstimateMemory(100, 10))
	assert.Equal(t, uint64(100*24+10*32+8), EstimateMemory(100, 10))

	// Saturates instead of wrapping.
	assert.Equal(t, uint64(math.MaxInt64), EstimateMemory(100, math.MaxUint64))
	assert.Equal(t, uint64(math.MaxInt64), EstimateMemory(math.MaxUint64, 0))
	assert.Equal(t, uint64(math.MaxInt64), EstimateMemory(1<<59, 1<<59))
}

// split mirrors the node partitioning used by workers.
func split(num uint64, size, rank int) (offset, count uint64) {
	base := num / uint64(size)
	extra := num % uint64(size)
	r := uint64(rank)
	return base*r + min(r, extra), base + boolToUint(r < extra)
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
