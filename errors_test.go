package edgeidx

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/edgeidx/cluster"
	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/edges"
	"github.com/hupe1980/edgeidx/internal/resource"
	"github.com/hupe1980/edgeidx/layout"
	"github.com/hupe1980/edgeidx/partition"
	"github.com/hupe1980/edgeidx/rangeindex"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"desync", &cluster.ErrMismatch{Seq: 3, Rank: 1, Want: "allreduce", Got: "barrier"}, ErrDesync},
		{"count mismatch", partition.ErrCountMismatch, ErrDesync},
		{"phase order", cluster.ErrPhaseOrder, ErrDesync},
		// A desync aborts the group, the cause wins.
		{"aborted desync", fmt.Errorf("%w: %w", cluster.ErrGroupAborted, cluster.ErrDesync), ErrDesync},
		{"aborted", cluster.ErrGroupAborted, ErrGroupAborted},
		{"canceled", context.Canceled, ErrGroupAborted},
		{"deadline", context.DeadlineExceeded, ErrGroupAborted},
		{"node out of range", &rangeindex.ErrNodeOutOfRange{Direction: rangeindex.SourceToTarget, EdgeID: 4, Node: 9, NodeCount: 9}, ErrPrecondition},
		{"invalid index", &rangeindex.VerifyError{Direction: rangeindex.TargetToSource, Node: 1, Reason: "gap"}, ErrPrecondition},
		{"memory", resource.ErrMemoryLimitExceeded, ErrPrecondition},
		{"not bootstrapped", cluster.ErrNotBootstrapped, ErrPrecondition},
		{"bootstrapped twice", cluster.ErrAlreadyBootstrapped, ErrPrecondition},
		{"group size", cluster.ErrInvalidSize, ErrPrecondition},
		{"invalid path", container.ErrInvalidPath, ErrPrecondition},
		{"edge shape", &edges.ShapeError{Group: "edges/default", Reason: "3 sources, 4 targets"}, ErrShapeMismatch},
		{"index exists", layout.ErrIndexExists, ErrShapeMismatch},
		{"no index", layout.ErrNoIndex, ErrShapeMismatch},
		{"not found", container.ErrNotFound, ErrShapeMismatch},
		{"not group", container.ErrNotGroup, ErrShapeMismatch},
		{"not dataset", container.ErrNotDataset, ErrShapeMismatch},
		{"dataset shape", container.ErrShape, ErrShapeMismatch},
		{"io", container.ErrIO, ErrContainerIO},
		{"corrupt", container.ErrCorrupt, ErrContainerIO},
		{"read only", container.ErrReadOnly, ErrContainerIO},
		{"closed", container.ErrClosed, ErrContainerIO},
		{"out of bounds", container.ErrOutOfBounds, ErrContainerIO},
		{"exists", container.ErrExists, ErrContainerIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateError(fmt.Errorf("wrapped: %w", tt.err))
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.kind, Kind(err))

			// Translating twice keeps a single kind.
			assert.Equal(t, err, translateError(err))
		})
	}

	assert.NoError(t, translateError(nil))

	plain := errors.New("plain")
	assert.Equal(t, plain, translateError(plain))
	assert.Nil(t, Kind(plain))
}

func TestPopulationError(t *testing.T) {
	err := error(&PopulationError{Group: "edges/a", Err: fmt.Errorf("%w: boom", ErrContainerIO)})
	assert.EqualError(t, err, "edgeidx: population edges/a: edgeidx: container i/o failure: boom")
	assert.ErrorIs(t, err, ErrContainerIO)
	assert.Equal(t, ErrContainerIO, Kind(errors.Join(err)))
}
