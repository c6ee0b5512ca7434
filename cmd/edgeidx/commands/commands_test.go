package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/edgeidx/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIndexLookupVerify(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, "edges/default", src, tgt)
	metrics := filepath.Join(t.TempDir(), "edgeidx.prom")

	out, err := run(t, "index", name,
		"--source-nodes", "100", "--target-nodes", "10",
		"--workers", "3", "--strategy", "sharded", "--chunk-rows", "4",
		"--metrics-file", metrics)
	require.NoError(t, err)
	assert.Equal(t, "indexed edges/default (source nodes 100, target nodes 10)\n", out)

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "edgeidx_phases_total")

	out, err = run(t, "lookup", name, "93", "5")
	require.NoError(t, err)
	assert.Equal(t, "93: 30 31 32 33 34 35 36 37 38 39\n5: \n", out)

	out, err = run(t, "lookup", name, "--direction", "target_to_source", "--ranges", "2")
	require.NoError(t, err)
	assert.Equal(t, "2: [2,3) [12,13) [22,23) [32,33) [42,43) [52,53) [62,63) [72,73) [82,83) [92,93)\n", out)

	out, err = run(t, "verify", name)
	require.NoError(t, err)
	assert.Contains(t, out, "source_to_target: 100 nodes, 10 descriptors: ok")
	assert.Contains(t, out, "target_to_source: 10 nodes, 100 descriptors: ok")

	out, err = run(t, "inspect", name)
	require.NoError(t, err)
	assert.Contains(t, out, "node_id_to_ranges [100 2]")
	assert.Contains(t, out, "range_to_edge_id [100 2]")
}

func TestIndexAll(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, "edges/default", src, tgt)

	out, err := run(t, "index", name, "--all", "--workers", "2")
	require.NoError(t, err)
	assert.Equal(t, "indexed edges/default (source nodes 100, target nodes 10)\n", out)
}

func TestIndexErrors(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, "edges/default", src, tgt)

	// Without counts every node id is out of range.
	_, err := run(t, "index", name)
	assert.ErrorContains(t, err, "precondition")

	_, err = run(t, "index", name, "--source-nodes", "100", "--target-nodes", "10", "--workers", "0")
	assert.ErrorContains(t, err, "invalid config")

	_, err = run(t, "index", name, "--source-nodes", "50", "--target-nodes", "10", "--workers", "2")
	assert.ErrorContains(t, err, "precondition")

	_, err = run(t, "index", name, "--source-nodes", "100", "--target-nodes", "10", "--memory-limit", "lots")
	assert.ErrorContains(t, err, "memory_limit")

	_, err = run(t, "index", name, "--source-nodes", "100", "--target-nodes", "10", "--memory-limit", "10EB")
	assert.ErrorContains(t, err, "memory_limit")
	_, err = run(t, "index", name, "--source-nodes", "100", "--target-nodes", "10", "--io-limit", "10EB")
	assert.ErrorContains(t, err, "io_limit")
}

func TestIndexEmptyPopulation(t *testing.T) {
	name := testutil.NewContainer(t, "edges/default", []uint64{}, []uint64{})

	out, err := run(t, "index", name, "--source-nodes", "0", "--target-nodes", "0", "--workers", "2")
	require.NoError(t, err)
	assert.Equal(t, "indexed edges/default (source nodes 0, target nodes 0)\n", out)

	out, err = run(t, "inspect", name)
	require.NoError(t, err)
	assert.Contains(t, out, "node_id_to_ranges [0 2]")
	assert.Contains(t, out, "range_to_edge_id [0 2]")

	out, err = run(t, "verify", name)
	require.NoError(t, err)
	assert.Contains(t, out, "source_to_target: 0 nodes, 0 descriptors: ok")
}

func TestParseSize(t *testing.T) {
	n, err := parseSize("")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = parseSize("64MiB")
	require.NoError(t, err)
	assert.Equal(t, int64(64<<20), n)

	_, err = parseSize("10EB")
	assert.ErrorContains(t, err, "exceeds")
}

func TestConfigFileAndEnv(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, "edges/default", src, tgt)

	cfg := filepath.Join(t.TempDir(), "edgeidx.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("workers: 0\n"), 0o644))
	_, err := run(t, "--config", cfg, "index", name, "--source-nodes", "100", "--target-nodes", "10")
	assert.ErrorContains(t, err, "invalid config")

	// Flags win over the file.
	_, err = run(t, "--config", cfg, "index", name, "--source-nodes", "100", "--target-nodes", "10", "--workers", "2")
	require.NoError(t, err)

	t.Setenv("EDGEIDX_STRATEGY", "diagonal")
	_, err = run(t, "index", name, "--source-nodes", "100", "--target-nodes", "10")
	assert.ErrorContains(t, err, "invalid config")
}

func TestPublishFetchList(t *testing.T) {
	src, tgt := testutil.ScenarioEdges()
	name := testutil.NewContainer(t, "edges/default", src, tgt)
	_, err := run(t, "index", name, "--source-nodes", "100", "--target-nodes", "10")
	require.NoError(t, err)

	store := "file://" + t.TempDir()
	out, err := run(t, "publish", name, "circuits/v1.eidx", "--store", store, "--compression", "lz4")
	require.NoError(t, err)
	assert.Contains(t, out, "published circuits/v1.eidx (lz4")

	out, err = run(t, "list", "circuits/", "--store", store)
	require.NoError(t, err)
	assert.Equal(t, "circuits/v1.eidx\n", out)

	dst := filepath.Join(t.TempDir(), "v1.eidx")
	out, err = run(t, "fetch", "circuits/v1.eidx", dst, "--store", store)
	require.NoError(t, err)
	assert.Contains(t, out, "fetched circuits/v1.eidx (lz4")

	want, err := os.ReadFile(name)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = run(t, "list")
	assert.ErrorContains(t, err, "--store")

	_, err = run(t, "list", "--store", "ftp://example.com/x")
	assert.ErrorContains(t, err, "unsupported store scheme")
}
