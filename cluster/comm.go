package cluster

import (
	"context"
	"fmt"
)

// Op is a reduction operator.
type Op int

const (
	OpSum Op = iota
	OpMax
	OpMin
)

func (op Op) String() string {
	switch op {
	case OpSum:
		return "sum"
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

func (op Op) apply(a, b uint64) uint64 {
	switch op {
	case OpMax:
		return max(a, b)
	case OpMin:
		return min(a, b)
	default:
		return a + b
	}
}

// Comm is a worker's handle on its group.
type Comm interface {
	// Rank returns the worker's identity in [0, Size).
	Rank() int
	// Size returns the number of workers in the group.
	Size() int
	// Bootstrap joins the group. It must be called exactly once per worker
	// before any other collective.
	Bootstrap(ctx context.Context) error
	// Barrier blocks until every worker has entered it.
	Barrier(ctx context.Context) error
	// Allreduce combines v from every worker with op and returns the result
	// on every worker.
	Allreduce(ctx context.Context, v uint64, op Op) (uint64, error)
	// Exscan returns the sum of v over all ranks lower than the caller.
	// Rank 0 receives 0.
	Exscan(ctx context.Context, v uint64) (uint64, error)
	// Allgather returns v from every worker, indexed by rank.
	Allgather(ctx context.Context, v uint64) ([]uint64, error)
	// Alltoallv sends send[r] to rank r and returns the payloads received,
	// indexed by source rank. len(send) must equal Size.
	Alltoallv(ctx context.Context, send [][]byte) ([][]byte, error)
	// Abort fails the group. Pending and future collectives on every worker
	// return an error wrapping ErrGroupAborted.
	Abort(err error)
}

// Reduce folds values with op.
func Reduce(values []uint64, op Op) uint64 {
	if len(values) == 0 {
		return 0
	}
	acc := values[0]
	for _, v := range values[1:] {
		acc = op.apply(acc, v)
	}
	return acc
}
