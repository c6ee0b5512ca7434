package edgeidx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/edgeidx/cluster"
	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/edges"
	"github.com/hupe1980/edgeidx/partition"
	"github.com/hupe1980/edgeidx/rangeindex"
	"github.com/hupe1980/edgeidx/testutil"
)

const population = "edges/default"

var strategies = []partition.Strategy{partition.Replicated, partition.Sharded}

// runWorkers runs fn on n workers and returns each worker's error.
func runWorkers(n int, fn func(ctx context.Context, comm cluster.Comm) error) []error {
	errs := make([]error, n)
	_ = cluster.Run(context.Background(), n, func(ctx context.Context, comm cluster.Comm) error {
		errs[comm.Rank()] = fn(ctx, comm)
		return nil
	})
	return errs
}

// writeIndex indexes population on n workers, each with its own handle.
func writeIndex(name string, n int, sourceNodes, targetNodes uint64, opts ...Option) []error {
	return runWorkers(n, func(ctx context.Context, comm cluster.Comm) error {
		ix, err := Init(ctx, comm, opts...)
		if err != nil {
			return err
		}
		file, err := container.Open(name, container.ReadWrite)
		if err != nil {
			return err
		}
		defer file.Close()
		return ix.Write(ctx, file, population, sourceNodes, targetNodes)
	})
}

func requireNoErrors(t *testing.T, errs []error) {
	t.Helper()
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
}

func openReader(t *testing.T, name string) *Reader {
	t.Helper()
	c, err := container.Open(name, container.ReadOnly)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	r, err := OpenReader(c, population)
	require.NoError(t, err)
	return r
}

// dump renders both directions of the index, one table row per line.
func dump(t *testing.T, r *Reader) []byte {
	t.Helper()
	var b bytes.Buffer
	for _, d := range rangeindex.Directions {
		idx, err := r.Index(d)
		require.NoError(t, err)
		fmt.Fprintf(&b, "%s node_id_to_ranges %d\n", d, len(idx.Nodes))
		for n, nr := range idx.Nodes {
			fmt.Fprintf(&b, "%d %d %d\n", n, nr.Start, nr.End)
		}
		fmt.Fprintf(&b, "%s range_to_edge_id %d\n", d, len(idx.Descriptors))
		for i, desc := range idx.Descriptors {
			fmt.Fprintf(&b, "%d %d %d\n", i, desc.Lo, desc.Hi)
		}
	}
	return b.Bytes()
}

func TestWriteScenario(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	g := goldie.New(t)

	for _, s := range strategies {
		for workers := 1; workers <= 4; workers++ {
			t.Run(fmt.Sprintf("%s/%d", s, workers), func(t *testing.T) {
				name := testutil.NewContainer(t, population, src, tgt)
				errs := writeIndex(name, workers, testutil.ScenarioSourceNodes, testutil.ScenarioTargetNodes,
					WithStrategy(s), WithChunkRows(7), WithReadChunkRows(13))
				requireNoErrors(t, errs)

				r := openReader(t, name)
				assert.Equal(t, uint64(100), r.NodeCount(rangeindex.SourceToTarget))
				assert.Equal(t, uint64(10), r.DescriptorCount(rangeindex.SourceToTarget))
				assert.Equal(t, uint64(10), r.NodeCount(rangeindex.TargetToSource))
				assert.Equal(t, uint64(100), r.DescriptorCount(rangeindex.TargetToSource))

				nr, err := r.Range(rangeindex.SourceToTarget, 93)
				require.NoError(t, err)
				assert.Equal(t, rangeindex.NodeRange{Start: 3, End: 4}, nr)

				nr, err = r.Range(rangeindex.SourceToTarget, 12)
				require.NoError(t, err)
				assert.Zero(t, nr.Len())

				ids, err := r.EdgeIDs(rangeindex.TargetToSource, 4)
				require.NoError(t, err)
				assert.Equal(t, []uint64{4, 14, 24, 34, 44, 54, 64, 74, 84, 94}, ids)

				g.Assert(t, "scenario", dump(t, r))
			})
		}
	}
}

func TestWriteRandomMatchesEdges(t *testing.T) {
	rng := testutil.NewRNG(11)
	src, tgt := rng.SortedEdges(700, 37, 53)
	rng.Shuffle(src, tgt)

	for _, s := range strategies {
		t.Run(s.String(), func(t *testing.T) {
			name := testutil.NewContainer(t, population, src, tgt)
			requireNoErrors(t, writeIndex(name, 3, 37, 53, WithStrategy(s), WithChunkRows(5)))

			c, err := container.Open(name, container.ReadOnly)
			require.NoError(t, err)
			defer c.Close()

			report, err := Verify(context.Background(), c, population)
			require.NoError(t, err)
			assert.True(t, report.OK())
			assert.Equal(t, uint64(700), report.Edges)

			r, err := OpenReader(c, population)
			require.NoError(t, err)
			for i, want := range testutil.EdgesByNode(src, 37) {
				got, err := r.EdgeIDs(rangeindex.SourceToTarget, uint64(i))
				require.NoError(t, err)
				if len(want) == 0 {
					assert.Empty(t, got)
					continue
				}
				assert.Equal(t, want, got, "source %d", i)
			}
			for i, want := range testutil.EdgesByNode(tgt, 53) {
				got, err := r.EdgeIDs(rangeindex.TargetToSource, uint64(i))
				require.NoError(t, err)
				if len(want) == 0 {
					assert.Empty(t, got)
					continue
				}
				assert.Equal(t, want, got, "target %d", i)
			}
		})
	}
}

func TestStrategiesAgree(t *testing.T) {
	rng := testutil.NewRNG(23)
	src, tgt := rng.Edges(500, 41, 17)

	var got [2][]*rangeindex.Index
	for i, s := range strategies {
		name := testutil.NewContainer(t, population, src, tgt)
		requireNoErrors(t, writeIndex(name, 4, 41, 17, WithStrategy(s)))
		r := openReader(t, name)
		for _, d := range rangeindex.Directions {
			idx, err := r.Index(d)
			require.NoError(t, err)
			got[i] = append(got[i], idx)
		}
	}
	if diff := cmp.Diff(got[0], got[1]); diff != "" {
		t.Errorf("index mismatch (-replicated +sharded):\n%s", diff)
	}
}

func TestWriteRerunIsByteIdentical(t *testing.T) {
	rng := testutil.NewRNG(5)
	src, tgt := rng.Edges(300, 25, 25)
	name := testutil.NewContainer(t, population, src, tgt)

	requireNoErrors(t, writeIndex(name, 3, 25, 25))
	first, err := os.ReadFile(name)
	require.NoError(t, err)

	requireNoErrors(t, writeIndex(name, 2, 25, 25, WithStrategy(partition.Sharded)))
	second, err := os.ReadFile(name)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestWriteEmptyPopulation(t *testing.T) {
	name := testutil.NewContainer(t, population, []uint64{}, []uint64{})
	requireNoErrors(t, writeIndex(name, 3, 4, 2, WithStrategy(partition.Sharded)))

	r := openReader(t, name)
	assert.Equal(t, uint64(4), r.NodeCount(rangeindex.SourceToTarget))
	assert.Zero(t, r.DescriptorCount(rangeindex.SourceToTarget))
	ids, err := r.EdgeIDs(rangeindex.TargetToSource, 1)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestWriteNodeOutOfRange(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	src[len(src)-1] = testutil.ScenarioSourceNodes

	t.Run("replicated", func(t *testing.T) {
		name := testutil.NewContainer(t, population, src, tgt)
		errs := writeIndex(name, 3, testutil.ScenarioSourceNodes, testutil.ScenarioTargetNodes)
		for rank, err := range errs {
			assert.Equal(t, ErrPrecondition, Kind(err), "rank %d", rank)
		}
	})

	t.Run("sharded", func(t *testing.T) {
		name := testutil.NewContainer(t, population, src, tgt)
		errs := writeIndex(name, 3, testutil.ScenarioSourceNodes, testutil.ScenarioTargetNodes,
			WithStrategy(partition.Sharded))

		// Only the last shard holds the offending edge.
		assert.Equal(t, ErrPrecondition, Kind(errs[2]))
		var oor *rangeindex.ErrNodeOutOfRange
		assert.ErrorAs(t, errs[2], &oor)
		assert.Equal(t, ErrGroupAborted, Kind(errs[0]))
		assert.Equal(t, ErrGroupAborted, Kind(errs[1]))
	})
}

func TestWriteMissingPopulation(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, "edges/other", src, tgt)

	errs := writeIndex(name, 2, 100, 10)
	for rank, err := range errs {
		assert.ErrorIs(t, err, ErrShapeMismatch, "rank %d", rank)
		assert.ErrorIs(t, err, container.ErrNotFound, "rank %d", rank)
	}
}

func TestWriteShapeConflict(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, population, src, tgt)

	requireNoErrors(t, writeIndex(name, 1, 100, 10))
	errs := writeIndex(name, 1, 120, 10)
	assert.Equal(t, ErrShapeMismatch, Kind(errs[0]))
}

func TestWriteMemoryLimit(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, population, src, tgt)

	errs := writeIndex(name, 2, 100, 10, WithMemoryLimit(64))
	for rank, err := range errs {
		assert.Equal(t, ErrPrecondition, Kind(err), "rank %d", rank)
	}
}

func TestWriteHugeNodeCount(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()

	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			t.Run("memory limit", func(t *testing.T) {
				name := testutil.NewContainer(t, population, src, tgt)
				errs := writeIndex(name, 2, math.MaxUint64, 10, WithStrategy(strategy), WithMemoryLimit(1<<20))
				for rank, err := range errs {
					assert.Equal(t, ErrPrecondition, Kind(err), "rank %d: %v", rank, err)
				}
			})

			t.Run("unlimited", func(t *testing.T) {
				name := testutil.NewContainer(t, population, src, tgt)
				errs := writeIndex(name, 2, rangeindex.MaxNodeCount+1, 10, WithStrategy(strategy))
				for rank, err := range errs {
					assert.Equal(t, ErrPrecondition, Kind(err), "rank %d: %v", rank, err)
				}
			})
		})
	}
}

func TestWriteContextCanceled(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, population, src, tgt)

	errs := runWorkers(2, func(ctx context.Context, comm cluster.Comm) error {
		ix, err := Init(ctx, comm)
		if err != nil {
			return err
		}
		file, err := container.Open(name, container.ReadWrite)
		if err != nil {
			return err
		}
		defer file.Close()

		ctx, cancel := context.WithCancel(ctx)
		cancel()
		return ix.Write(ctx, file, population, 100, 10)
	})
	for rank, err := range errs {
		assert.Error(t, err, "rank %d", rank)
		assert.NotNil(t, Kind(err), "rank %d", rank)
	}
}

func TestInit(t *testing.T) {
	errs := runWorkers(2, func(ctx context.Context, comm cluster.Comm) error {
		ix, err := Init(ctx, comm, WithStrategy(partition.Sharded))
		if err != nil {
			return err
		}
		if ix.Comm() != comm || ix.Strategy() != partition.Sharded {
			return errors.New("unexpected indexer state")
		}
		_, err = Init(ctx, comm)
		return err
	})
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrPrecondition)
		assert.ErrorIs(t, err, cluster.ErrAlreadyBootstrapped)
	}

	var ix *Indexer
	assert.ErrorIs(t, ix.Write(context.Background(), nil, population, 1, 1), ErrNotInitialized)
	_, err := ix.WriteAll(context.Background(), nil, "edges")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestWriteAll(t *testing.T) {
	name := testutil.NewContainer(t, "edges/a", []uint64{0, 4, 2}, []uint64{1, 1, 0})

	c, err := container.Open(name, container.ReadWrite)
	require.NoError(t, err)
	b, err := c.Root().CreateGroup("edges/b")
	require.NoError(t, err)
	src, tgt := testutil.ScenarioEdges()
	require.NoError(t, edges.Store(b, src, tgt))

	// Datasets of differing length.
	bad, err := c.Root().CreateGroup("edges/bad")
	require.NoError(t, err)
	_, err = bad.CreateDataset(edges.SourceDataset, 3)
	require.NoError(t, err)
	_, err = bad.CreateDataset(edges.TargetDataset, 4)
	require.NoError(t, err)

	_, err = c.Root().CreateGroup("edges/notes")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	results := make([][]*Result, 2)
	errs := runWorkers(2, func(ctx context.Context, comm cluster.Comm) error {
		ix, err := Init(ctx, comm, WithStrategy(partition.Sharded))
		if err != nil {
			return err
		}
		file, err := container.Open(name, container.ReadWrite)
		if err != nil {
			return err
		}
		defer file.Close()

		res, err := ix.WriteAll(ctx, file, "edges")
		results[comm.Rank()] = res
		return err
	})

	for rank, err := range errs {
		var pe *PopulationError
		require.ErrorAs(t, err, &pe, "rank %d", rank)
		assert.Equal(t, "edges/bad", pe.Group)
		assert.NotNil(t, Kind(err))
	}
	var pe *PopulationError
	require.ErrorAs(t, errs[0], &pe)
	assert.ErrorIs(t, pe, ErrShapeMismatch)

	assert.Equal(t, results[0], results[1])
	require.Len(t, results[0], 2)
	assert.Equal(t, &Result{
		Group: "edges/a", Edges: 3, SourceNodes: 5, TargetNodes: 2,
		Descriptors: [2]uint64{3, 2},
	}, results[0][0])
	assert.Equal(t, &Result{
		Group: "edges/b", Edges: 100, SourceNodes: 100, TargetNodes: 10,
		Descriptors: [2]uint64{10, 100},
	}, results[0][1])

	c, err = container.Open(name, container.ReadOnly)
	require.NoError(t, err)
	defer c.Close()
	pops, err := Populations(c, "edges")
	require.NoError(t, err)
	assert.Equal(t, []string{"edges/a", "edges/b", "edges/bad"}, pops)

	report, err := Verify(context.Background(), c, "edges/a")
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestWriteObservability(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, population, src, tgt)

	var logs bytes.Buffer
	metrics := &BasicMetricsCollector{}
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	errs := writeIndex(name, 1, 100, 10,
		WithLogger(NewJSONLogger(&logs, slog.LevelDebug)),
		WithMetricsCollector(metrics),
		WithTracerProvider(tp),
	)
	requireNoErrors(t, errs)

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.BuildCount)
	assert.Equal(t, int64(200), stats.BuildEdges)
	assert.Equal(t, int64(110), stats.BuildDescriptors)
	assert.Equal(t, int64(2), stats.ExchangeCount)
	assert.Equal(t, int64(2), stats.WriteCount)
	assert.Equal(t, int64(10), stats.PhaseCount)
	assert.Zero(t, stats.BuildErrors+stats.ExchangeErrors+stats.WriteErrors+stats.PhaseErrors)

	out := logs.String()
	assert.Contains(t, out, `"rank":0`)
	assert.Contains(t, out, `"population":"edges/default"`)
	assert.Contains(t, out, `"direction":"target_to_source"`)

	var spanNames []string
	for _, s := range exporter.GetSpans() {
		spanNames = append(spanNames, s.Name)
	}
	assert.Contains(t, spanNames, "edgeidx.Write")
	assert.Contains(t, spanNames, "edgeidx.Direction")
	assert.Contains(t, strings.Join(spanNames, ","), "writer.")
}

func TestReaderErrors(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, population, src, tgt)

	c, err := container.Open(name, container.ReadOnly)
	require.NoError(t, err)
	_, err = OpenReader(c, population)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = Verify(context.Background(), c, population)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	require.NoError(t, c.Close())

	requireNoErrors(t, writeIndex(name, 2, 100, 10))
	r := openReader(t, name)

	_, err = r.Range(rangeindex.TargetToSource, 10)
	assert.ErrorIs(t, err, ErrPrecondition)
	_, err = r.EdgeIDs(rangeindex.SourceToTarget, 1000)
	assert.ErrorIs(t, err, ErrPrecondition)

	descs, err := r.Ranges(rangeindex.SourceToTarget, 99)
	require.NoError(t, err)
	assert.Equal(t, []rangeindex.Descriptor{{Lo: 90, Hi: 100}}, descs)

	for _, d := range []rangeindex.Direction{-1, 2} {
		_, err = r.Range(d, 0)
		assert.ErrorIs(t, err, ErrPrecondition, "direction %d", d)
		_, err = r.EdgeIDs(d, 0)
		assert.ErrorIs(t, err, ErrPrecondition, "direction %d", d)
		_, err = r.Index(d)
		assert.ErrorIs(t, err, ErrPrecondition, "direction %d", d)
		assert.Zero(t, r.NodeCount(d))
		assert.Zero(t, r.DescriptorCount(d))
	}
}

func TestReaderIndexSpansBlocks(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, population, src, tgt)
	nodes := uint64(2*indexBlockNodes + 7)
	requireNoErrors(t, writeIndex(name, 2, nodes, 10))

	view, err := edges.NewSlice(src, tgt)
	require.NoError(t, err)
	want, err := rangeindex.Build(rangeindex.SourceToTarget, nodes, view)
	require.NoError(t, err)

	got, err := openReader(t, name).Index(rangeindex.SourceToTarget)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("index mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyDetectsCorruptIndex(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, population, src, tgt)
	requireNoErrors(t, writeIndex(name, 1, 100, 10))

	c, err := container.Open(name, container.ReadWrite)
	require.NoError(t, err)
	ds, err := c.Dataset(population + "/indices/target_to_source/range_to_edge_id")
	require.NoError(t, err)
	// Point one descriptor at a foreign edge.
	require.NoError(t, ds.Write(0, []uint64{1, 2}))
	require.NoError(t, c.Close())

	c, err = container.Open(name, container.ReadOnly)
	require.NoError(t, err)
	defer c.Close()

	report, err := Verify(context.Background(), c, population)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrecondition)
	require.NotNil(t, report)
	assert.False(t, report.OK())
	assert.NoError(t, report.Directions[0].Err)
	assert.Error(t, report.Directions[1].Err)
}
