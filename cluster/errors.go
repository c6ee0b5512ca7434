package cluster

import (
	"errors"
	"fmt"
)

var (
	// ErrGroupAborted is returned by collectives after any worker aborted the group.
	ErrGroupAborted = errors.New("cluster: group aborted")
	// ErrDesync is the abort cause when workers issue mismatched collectives.
	ErrDesync = errors.New("cluster: collective desynchronization")
	// ErrAlreadyBootstrapped is returned when a worker bootstraps twice.
	ErrAlreadyBootstrapped = errors.New("cluster: already bootstrapped")
	// ErrNotBootstrapped is returned by collectives issued before Bootstrap.
	ErrNotBootstrapped = errors.New("cluster: not bootstrapped")
	// ErrPhaseOrder is returned when a Lockstep phase is completed out of order.
	ErrPhaseOrder = errors.New("cluster: phase out of order")
	// ErrInvalidSize is returned for groups with fewer than one worker.
	ErrInvalidSize = errors.New("cluster: invalid group size")
)

// ErrMismatch describes two workers issuing different collectives at the
// same position of their call sequences.
type ErrMismatch struct {
	Seq  uint64
	Rank int
	Want string
	Got  string
}

func (e *ErrMismatch) Error() string {
	return fmt.Sprintf("cluster: collective #%d: rank %d called %s, group is in %s", e.Seq, e.Rank, e.Got, e.Want)
}

func (e *ErrMismatch) Unwrap() error { return ErrDesync }

// ErrPeerFailed is the abort cause recorded when a worker leaves the group
// with an error.
type ErrPeerFailed struct {
	Rank int
	Err  error
}

func (e *ErrPeerFailed) Error() string {
	return fmt.Sprintf("cluster: rank %d failed: %v", e.Rank, e.Err)
}

func (e *ErrPeerFailed) Unwrap() error { return e.Err }
