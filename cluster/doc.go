// Package cluster provides the group context for collective index
// construction.
//
// A Comm is one worker's handle on a group of cooperating workers. Every
// collective operation (Barrier, Allreduce, Exscan, Allgather, Alltoallv)
// must be called by all workers in the same relative order. A worker that
// fails, abandons a call through its context, or issues a mismatched call
// aborts the whole group: every pending and future collective on every
// worker returns ErrGroupAborted.
//
// NewLocalGroup runs a group inside one process, one goroutine per worker,
// exchanging copied messages so that workers share no memory. Run launches
// such a group with errgroup.
//
// Lockstep layers explicit phases on top of a Comm. Each phase transition is
// a collective agreement on the workers' local outcomes, so a local failure
// surfaces on every worker before anyone advances.
package cluster
