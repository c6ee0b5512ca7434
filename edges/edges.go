// Package edges provides read-only views of edge shards.
//
// An edge set is a pair of equal-length uint64 arrays, source_node_id and
// target_node_id, stored in one container group. The position of an edge in
// these arrays is its edge id. A View exposes one contiguous shard of the
// edge set together with the global edge count.
package edges

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/edgeidx/container"
)

const (
	// SourceDataset holds the source node id of every edge.
	SourceDataset = "source_node_id"
	// TargetDataset holds the target node id of every edge.
	TargetDataset = "target_node_id"
)

// DefaultChunkRows is the number of edges read per dataset request.
const DefaultChunkRows = 1 << 20

var (
	// ErrShapeMismatch is returned when the edge arrays are missing or disagree
	// in shape.
	ErrShapeMismatch = errors.New("edges: shape mismatch")
	// ErrOutOfRange is returned when a shard exceeds the edge set.
	ErrOutOfRange = errors.New("edges: shard out of range")
)

// ShapeError describes malformed edge arrays.
type ShapeError struct {
	Group  string
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("edges: %s: %s", e.Group, e.Reason)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// View is a read-only shard of an edge set. Local index i in [0, Len)
// addresses edge id Offset+i.
type View interface {
	// EdgeCount returns the number of edges in the whole edge set.
	EdgeCount() uint64
	// Offset returns the edge id of the first local edge.
	Offset() uint64
	// Len returns the number of local edges.
	Len() uint64
	// Source returns the source node id of local edge i.
	Source(i uint64) uint64
	// Target returns the target node id of local edge i.
	Target(i uint64) uint64
}

// Slice is a View backed by in-memory arrays.
type Slice struct {
	sources []uint64
	targets []uint64
	offset  uint64
	total   uint64
}

var _ View = (*Slice)(nil)

// NewSlice returns a View over a complete edge set.
func NewSlice(sources, targets []uint64) (*Slice, error) {
	if len(sources) != len(targets) {
		return nil, &ShapeError{
			Group:  "memory",
			Reason: fmt.Sprintf("%d sources, %d targets", len(sources), len(targets)),
		}
	}
	return &Slice{sources: sources, targets: targets, total: uint64(len(sources))}, nil
}

// Shard returns the sub-view of count local edges starting at global edge id
// offset. The result shares memory with s.
func (s *Slice) Shard(offset, count uint64) (*Slice, error) {
	if offset < s.offset || count > s.Len() || offset-s.offset > s.Len()-count {
		return nil, fmt.Errorf("%w: [%d, %d) not within [%d, %d)", ErrOutOfRange, offset, offset+count, s.offset, s.offset+s.Len())
	}
	lo := offset - s.offset
	return &Slice{
		sources: s.sources[lo : lo+count],
		targets: s.targets[lo : lo+count],
		offset:  offset,
		total:   s.total,
	}, nil
}

func (s *Slice) EdgeCount() uint64      { return s.total }
func (s *Slice) Offset() uint64         { return s.offset }
func (s *Slice) Len() uint64            { return uint64(len(s.sources)) }
func (s *Slice) Source(i uint64) uint64 { return s.sources[i] }
func (s *Slice) Target(i uint64) uint64 { return s.targets[i] }

// Sources returns the local source node ids.
func (s *Slice) Sources() []uint64 { return s.sources }

// Targets returns the local target node ids.
func (s *Slice) Targets() []uint64 { return s.targets }

// Count returns the number of edges stored in group g after checking that
// both edge arrays exist and have the same one-dimensional shape.
func Count(g *container.Group) (uint64, error) {
	src, tgt, err := datasets(g)
	if err != nil {
		return 0, err
	}
	return checkShape(g, src, tgt)
}

// LoadAll reads the complete edge set of group g.
func LoadAll(ctx context.Context, g *container.Group) (*Slice, error) {
	n, err := Count(g)
	if err != nil {
		return nil, err
	}
	return Load(ctx, g, 0, n)
}

// Load reads count edges starting at edge id offset from group g.
func Load(ctx context.Context, g *container.Group, offset, count uint64) (*Slice, error) {
	return LoadChunked(ctx, g, offset, count, DefaultChunkRows)
}

// LoadChunked is Load with an explicit request size. The context is checked
// between requests.
func LoadChunked(ctx context.Context, g *container.Group, offset, count, chunkRows uint64) (*Slice, error) {
	src, tgt, err := datasets(g)
	if err != nil {
		return nil, err
	}
	total, err := checkShape(g, src, tgt)
	if err != nil {
		return nil, err
	}
	if offset > total || count > total-offset {
		return nil, fmt.Errorf("%w: [%d, %d) of %d edges", ErrOutOfRange, offset, offset+count, total)
	}
	if chunkRows == 0 {
		chunkRows = DefaultChunkRows
	}

	s := &Slice{
		sources: make([]uint64, 0, count),
		targets: make([]uint64, 0, count),
		offset:  offset,
		total:   total,
	}

	for done := uint64(0); done < count; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := min(chunkRows, count-done)

		part, err := src.Read(offset+done, n)
		if err != nil {
			return nil, err
		}
		s.sources = append(s.sources, part...)

		part, err = tgt.Read(offset+done, n)
		if err != nil {
			return nil, err
		}
		s.targets = append(s.targets, part...)

		done += n
	}
	return s, nil
}

// Bytes returns the memory held by a loaded shard of count edges.
func Bytes(count uint64) uint64 {
	return 16 * count
}

// MaxNodeIDs returns the largest source and target node ids of v. ok is
// false for an empty view.
func MaxNodeIDs(v View) (maxSource, maxTarget uint64, ok bool) {
	for i := range v.Len() {
		maxSource = max(maxSource, v.Source(i))
		maxTarget = max(maxTarget, v.Target(i))
	}
	return maxSource, maxTarget, v.Len() > 0
}

func datasets(g *container.Group) (*container.Dataset, *container.Dataset, error) {
	src, err := g.Dataset(SourceDataset)
	if err != nil {
		if errors.Is(err, container.ErrNotFound) || errors.Is(err, container.ErrNotDataset) {
			return nil, nil, &ShapeError{Group: g.Path(), Reason: "missing " + SourceDataset}
		}
		return nil, nil, err
	}
	tgt, err := g.Dataset(TargetDataset)
	if err != nil {
		if errors.Is(err, container.ErrNotFound) || errors.Is(err, container.ErrNotDataset) {
			return nil, nil, &ShapeError{Group: g.Path(), Reason: "missing " + TargetDataset}
		}
		return nil, nil, err
	}
	return src, tgt, nil
}

func checkShape(g *container.Group, src, tgt *container.Dataset) (uint64, error) {
	if len(src.Dims()) != 1 || len(tgt.Dims()) != 1 {
		return 0, &ShapeError{
			Group:  g.Path(),
			Reason: fmt.Sprintf("edge arrays must be one-dimensional, got %v and %v", src.Dims(), tgt.Dims()),
		}
	}
	if src.Len() != tgt.Len() {
		return 0, &ShapeError{
			Group:  g.Path(),
			Reason: fmt.Sprintf("%d sources, %d targets", src.Len(), tgt.Len()),
		}
	}
	return src.Len(), nil
}

// Store creates the edge arrays in group g and writes sources and targets.
func Store(g *container.Group, sources, targets []uint64) error {
	if len(sources) != len(targets) {
		return &ShapeError{
			Group:  g.Path(),
			Reason: fmt.Sprintf("%d sources, %d targets", len(sources), len(targets)),
		}
	}
	n := uint64(len(sources))

	src, err := g.CreateDataset(SourceDataset, n)
	if err != nil {
		return err
	}
	tgt, err := g.CreateDataset(TargetDataset, n)
	if err != nil {
		return err
	}
	if err := src.Write(0, sources); err != nil {
		return err
	}
	return tgt.Write(0, targets)
}
