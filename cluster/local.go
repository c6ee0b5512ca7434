package cluster

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"
)

// LocalGroup is an in-process worker group. Each worker runs on its own
// goroutine and talks to the others only through collectives.
type LocalGroup struct {
	size int

	mu     sync.Mutex
	rounds map[uint64]*round

	aborted   chan struct{}
	abortOnce sync.Once
	abortErr  error

	comms []*localComm
}

type round struct {
	op      string
	parts   [][]byte
	arrived int
	done    chan struct{}
}

// NewLocalGroup creates a group of n workers.
func NewLocalGroup(n int) (*LocalGroup, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}

	g := &LocalGroup{
		size:    n,
		rounds:  make(map[uint64]*round),
		aborted: make(chan struct{}),
	}
	g.comms = make([]*localComm, n)
	for r := range g.comms {
		g.comms[r] = &localComm{group: g, rank: r}
	}
	return g, nil
}

// Size returns the number of workers.
func (g *LocalGroup) Size() int { return g.size }

// Comm returns the handle of worker rank.
func (g *LocalGroup) Comm(rank int) Comm { return g.comms[rank] }

// Abort fails the group with err.
func (g *LocalGroup) Abort(err error) {
	g.abortOnce.Do(func() {
		g.abortErr = fmt.Errorf("%w: %w", ErrGroupAborted, err)
		close(g.aborted)
	})
}

// Err returns the abort cause, or nil while the group is healthy.
func (g *LocalGroup) Err() error {
	select {
	case <-g.aborted:
		return g.abortErr
	default:
		return nil
	}
}

// exchange contributes part to collective seq and waits for every worker.
// It returns all contributions indexed by rank. The returned slices are
// shared and must not be modified.
func (g *LocalGroup) exchange(ctx context.Context, seq uint64, rank int, op string, part []byte) ([][]byte, error) {
	if err := g.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	r, ok := g.rounds[seq]
	if !ok {
		r = &round{op: op, parts: make([][]byte, g.size), done: make(chan struct{})}
		g.rounds[seq] = r
	}
	if r.op != op {
		g.mu.Unlock()
		err := &ErrMismatch{Seq: seq, Rank: rank, Want: r.op, Got: op}
		g.Abort(err)
		return nil, g.abortErr
	}
	r.parts[rank] = part
	r.arrived++
	if r.arrived == g.size {
		delete(g.rounds, seq)
		close(r.done)
	}
	g.mu.Unlock()

	select {
	case <-r.done:
		return r.parts, nil
	default:
	}

	select {
	case <-r.done:
		return r.parts, nil
	case <-g.aborted:
		return nil, g.abortErr
	case <-ctx.Done():
		g.Abort(fmt.Errorf("rank %d: %w", rank, ctx.Err()))
		return nil, g.abortErr
	}
}

type localComm struct {
	group        *LocalGroup
	rank         int
	seq          uint64
	bootstrapped bool
}

func (c *localComm) Rank() int { return c.rank }
func (c *localComm) Size() int { return c.group.size }

func (c *localComm) Abort(err error) {
	c.group.Abort(&ErrPeerFailed{Rank: c.rank, Err: err})
}

func (c *localComm) Bootstrap(ctx context.Context) error {
	if c.bootstrapped {
		return ErrAlreadyBootstrapped
	}
	if _, err := c.collective(ctx, "bootstrap", nil); err != nil {
		return err
	}
	c.bootstrapped = true
	return nil
}

func (c *localComm) Barrier(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	_, err := c.collective(ctx, "barrier", nil)
	return err
}

func (c *localComm) Allreduce(ctx context.Context, v uint64, op Op) (uint64, error) {
	values, err := c.gatherValues(ctx, "allreduce-"+op.String(), v)
	if err != nil {
		return 0, err
	}
	return Reduce(values, op), nil
}

func (c *localComm) Exscan(ctx context.Context, v uint64) (uint64, error) {
	values, err := c.gatherValues(ctx, "exscan", v)
	if err != nil {
		return 0, err
	}
	return Reduce(values[:c.rank], OpSum), nil
}

func (c *localComm) Allgather(ctx context.Context, v uint64) ([]uint64, error) {
	return c.gatherValues(ctx, "allgather", v)
}

func (c *localComm) Alltoallv(ctx context.Context, send [][]byte) ([][]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if len(send) != c.group.size {
		err := fmt.Errorf("%w: alltoallv with %d buffers in group of %d", ErrDesync, len(send), c.group.size)
		c.Abort(err)
		return nil, err
	}

	parts, err := c.collective(ctx, "alltoallv", encodeFrames(send))
	if err != nil {
		return nil, err
	}

	recv := make([][]byte, c.group.size)
	for src, part := range parts {
		frames, err := decodeFrames(part, c.group.size)
		if err != nil {
			return nil, err
		}
		recv[src] = slices.Clone(frames[c.rank])
	}
	return recv, nil
}

func (c *localComm) gatherValues(ctx context.Context, op string, v uint64) ([]uint64, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	parts, err := c.collective(ctx, op, binary.LittleEndian.AppendUint64(nil, v))
	if err != nil {
		return nil, err
	}

	values := make([]uint64, len(parts))
	for i, p := range parts {
		values[i] = binary.LittleEndian.Uint64(p)
	}
	return values, nil
}

func (c *localComm) collective(ctx context.Context, op string, part []byte) ([][]byte, error) {
	seq := c.seq
	c.seq++
	return c.group.exchange(ctx, seq, c.rank, op, part)
}

func (c *localComm) ready() error {
	if !c.bootstrapped {
		return ErrNotBootstrapped
	}
	return nil
}

// encodeFrames packs per-destination buffers as u64 length + bytes each.
func encodeFrames(bufs [][]byte) []byte {
	n := 0
	for _, b := range bufs {
		n += 8 + len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range bufs {
		out = binary.LittleEndian.AppendUint64(out, uint64(len(b)))
		out = append(out, b...)
	}
	return out
}

func decodeFrames(b []byte, n int) ([][]byte, error) {
	frames := make([][]byte, n)
	for i := range frames {
		if len(b) < 8 {
			return nil, fmt.Errorf("%w: truncated frame", ErrDesync)
		}
		l := binary.LittleEndian.Uint64(b)
		b = b[8:]
		if uint64(len(b)) < l {
			return nil, fmt.Errorf("%w: truncated frame", ErrDesync)
		}
		frames[i] = b[:l:l]
		b = b[l:]
	}
	return frames, nil
}
