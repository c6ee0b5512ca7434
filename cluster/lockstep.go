package cluster

import (
	"context"
	"fmt"
	"time"
)

// Phase is a step of collective index construction.
type Phase int

const (
	// PhaseIdle precedes the first Build and follows every Fence.
	PhaseIdle Phase = iota
	// PhaseBuild computes the local index.
	PhaseBuild
	// PhaseExchange agrees on sizes and write offsets.
	PhaseExchange
	// PhaseCreate allocates output datasets.
	PhaseCreate
	// PhaseWrite writes owned slices.
	PhaseWrite
	// PhaseFence makes writes durable and visible.
	PhaseFence
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseBuild:
		return "build"
	case PhaseExchange:
		return "exchange"
	case PhaseCreate:
		return "create"
	case PhaseWrite:
		return "write"
	case PhaseFence:
		return "fence"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) next() Phase {
	if p == PhaseFence {
		return PhaseBuild
	}
	return p + 1
}

// PhaseHook observes completed phase transitions.
type PhaseHook func(phase Phase, elapsed time.Duration, err error)

// Lockstep drives a worker through the phases in the same order as its
// peers. Every transition is an agreement: it completes only when all
// workers arrive, and fails on every worker when any worker failed.
type Lockstep struct {
	comm    Comm
	current Phase
	started time.Time
	hooks   []PhaseHook
}

// NewLockstep creates a Lockstep in PhaseIdle.
func NewLockstep(comm Comm, hooks ...PhaseHook) *Lockstep {
	return &Lockstep{
		comm:    comm,
		current: PhaseIdle,
		started: time.Now(),
		hooks:   hooks,
	}
}

// Comm returns the group context.
func (l *Lockstep) Comm() Comm { return l.comm }

// Phase returns the last completed phase.
func (l *Lockstep) Phase() Phase { return l.current }

// Complete finishes phase with the worker's local outcome. It returns nil
// only if every worker completed phase successfully.
//
// After a failed transition the group has agreed to stop; the Lockstep
// must not be used further.
func (l *Lockstep) Complete(ctx context.Context, phase Phase, localErr error) error {
	if localErr == nil && phase != l.current.next() {
		localErr = fmt.Errorf("%w: %s after %s", ErrPhaseOrder, phase, l.current)
	}

	err := Agree(ctx, l.comm, localErr)

	elapsed := time.Since(l.started)
	for _, hook := range l.hooks {
		hook(phase, elapsed, err)
	}

	if err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}
	l.current = phase
	l.started = time.Now()
	return nil
}

// Agree reduces the workers' local outcomes. A worker with a local error
// gets it back; every other worker gets an error wrapping ErrGroupAborted
// once any peer failed.
func Agree(ctx context.Context, comm Comm, localErr error) error {
	var flag uint64
	if localErr != nil {
		flag = uint64(comm.Rank()) + 1
	}

	worst, err := comm.Allreduce(ctx, flag, OpMax)
	if localErr != nil {
		return localErr
	}
	if err != nil {
		return err
	}
	if worst != 0 {
		return fmt.Errorf("%w: rank %d reported a failure", ErrGroupAborted, worst-1)
	}
	return nil
}
