package testutil

import (
	"math/rand"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/edges"
)

const (
	// ScenarioEdgeCount is the number of edges of ScenarioEdges.
	ScenarioEdgeCount = 100
	// ScenarioSourceNodes is the source node count of ScenarioEdges.
	ScenarioSourceNodes = 100
	// ScenarioTargetNodes is the target node count of ScenarioEdges.
	ScenarioTargetNodes = 10
)

// ScenarioEdges returns 100 edges connecting sources 90..99 to targets 0..9
// in row-major order: edge i goes from 90+i/10 to i%10.
func ScenarioEdges() (sources, targets []uint64) {
	sources = make([]uint64, ScenarioEdgeCount)
	targets = make([]uint64, ScenarioEdgeCount)
	for i := range ScenarioEdgeCount {
		sources[i] = 90 + uint64(i)/10
		targets[i] = uint64(i) % 10
	}
	return sources, targets
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64n returns a pseudo-random number in [0,n).
func (r *RNG) Uint64n(n uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(r.rand.Int63n(int64(n)))
}

// Edges returns n edges with uniformly drawn source and target node ids.
func (r *RNG) Edges(n int, sourceNodes, targetNodes uint64) (sources, targets []uint64) {
	sources = make([]uint64, n)
	targets = make([]uint64, n)
	for i := range n {
		sources[i] = r.Uint64n(sourceNodes)
		targets[i] = r.Uint64n(targetNodes)
	}
	return sources, targets
}

// SortedEdges returns n random edges ordered by source node id, the layout
// of edge files grouped by presynaptic cell.
func (r *RNG) SortedEdges(n int, sourceNodes, targetNodes uint64) (sources, targets []uint64) {
	sources, targets = r.Edges(n, sourceNodes, targetNodes)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case sources[a] < sources[b]:
			return -1
		case sources[a] > sources[b]:
			return 1
		default:
			return 0
		}
	})

	s := make([]uint64, n)
	t := make([]uint64, n)
	for i, j := range order {
		s[i] = sources[j]
		t[i] = targets[j]
	}
	return s, t
}

// Shuffle permutes edges in place, keeping source and target pairs together.
func (r *RNG) Shuffle(sources, targets []uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Shuffle(len(sources), func(i, j int) {
		sources[i], sources[j] = sources[j], sources[i]
		targets[i], targets[j] = targets[j], targets[i]
	})
}

// EdgesByNode returns, for every node id in [0, nodeCount), the ascending
// edge ids whose node id in nodeIDs equals it.
func EdgesByNode(nodeIDs []uint64, nodeCount uint64) [][]uint64 {
	out := make([][]uint64, nodeCount)
	for id, n := range nodeIDs {
		out[n] = append(out[n], uint64(id))
	}
	return out
}

// NewContainer writes the edges into group of a new container in a
// temporary directory and returns the container path.
func NewContainer(tb testing.TB, group string, sources, targets []uint64) string {
	tb.Helper()

	name := filepath.Join(tb.TempDir(), "edges.eidx")
	c, err := container.Create(name)
	require.NoError(tb, err)

	g, err := c.Root().CreateGroup(group)
	require.NoError(tb, err)
	require.NoError(tb, edges.Store(g, sources, targets))
	require.NoError(tb, c.Close())

	return name
}
