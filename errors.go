package edgeidx

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/edgeidx/cluster"
	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/edges"
	"github.com/hupe1980/edgeidx/internal/resource"
	"github.com/hupe1980/edgeidx/layout"
	"github.com/hupe1980/edgeidx/partition"
	"github.com/hupe1980/edgeidx/rangeindex"
)

var (
	// ErrPrecondition is returned when the input violates a precondition,
	// for example a node id at or above the supplied node count.
	ErrPrecondition = errors.New("edgeidx: precondition violated")
	// ErrShapeMismatch is returned for missing datasets, differing array
	// lengths or an existing index of a different shape.
	ErrShapeMismatch = errors.New("edgeidx: shape mismatch")
	// ErrDesync is returned when workers disagree on collective calls or
	// exchanged counts.
	ErrDesync = errors.New("edgeidx: collective desynchronization")
	// ErrContainerIO is returned when reading or writing the container fails.
	ErrContainerIO = errors.New("edgeidx: container i/o failure")
	// ErrGroupAborted is returned on healthy workers when a peer failed.
	ErrGroupAborted = errors.New("edgeidx: group aborted")
	// ErrNotInitialized is returned when an Indexer is used without Init.
	ErrNotInitialized = errors.New("edgeidx: indexer not initialized")
)

// Kind returns the error kind of err, or nil if err is not one of the
// package's error kinds.
func Kind(err error) error {
	for _, kind := range []error{ErrPrecondition, ErrShapeMismatch, ErrDesync, ErrContainerIO, ErrGroupAborted} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// translateError attaches exactly one error kind to err. The order matters:
// a desync aborts the group, so it is checked before ErrGroupAborted.
func translateError(err error) error {
	if err == nil || Kind(err) != nil {
		return err
	}

	switch {
	case errors.Is(err, cluster.ErrDesync),
		errors.Is(err, partition.ErrCountMismatch),
		errors.Is(err, cluster.ErrPhaseOrder):
		return fmt.Errorf("%w: %w", ErrDesync, err)

	case errors.Is(err, cluster.ErrGroupAborted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrGroupAborted, err)

	case errors.Is(err, rangeindex.ErrPrecondition),
		errors.Is(err, rangeindex.ErrInvalid),
		errors.Is(err, resource.ErrMemoryLimitExceeded),
		errors.Is(err, cluster.ErrNotBootstrapped),
		errors.Is(err, cluster.ErrAlreadyBootstrapped),
		errors.Is(err, cluster.ErrInvalidSize),
		errors.Is(err, container.ErrInvalidPath):
		return fmt.Errorf("%w: %w", ErrPrecondition, err)

	case errors.Is(err, edges.ErrShapeMismatch),
		errors.Is(err, layout.ErrIndexExists),
		errors.Is(err, layout.ErrNoIndex),
		errors.Is(err, container.ErrNotFound),
		errors.Is(err, container.ErrNotGroup),
		errors.Is(err, container.ErrNotDataset),
		errors.Is(err, container.ErrShape):
		return fmt.Errorf("%w: %w", ErrShapeMismatch, err)

	case errors.Is(err, container.ErrIO),
		errors.Is(err, container.ErrCorrupt),
		errors.Is(err, container.ErrReadOnly),
		errors.Is(err, container.ErrClosed),
		errors.Is(err, container.ErrOutOfBounds),
		errors.Is(err, container.ErrExists):
		return fmt.Errorf("%w: %w", ErrContainerIO, err)
	}
	return err
}

// PopulationError records the failure of one population in WriteAll.
type PopulationError struct {
	Group string
	Err   error
}

func (e *PopulationError) Error() string {
	return fmt.Sprintf("edgeidx: population %s: %v", e.Group, e.Err)
}

func (e *PopulationError) Unwrap() error { return e.Err }
