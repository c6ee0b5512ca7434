package edgeidx

import (
	"context"
	"errors"

	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/edges"
	"github.com/hupe1980/edgeidx/rangeindex"
)

// DirectionReport is the verification result of one direction.
type DirectionReport struct {
	Direction   rangeindex.Direction
	Nodes       uint64
	Descriptors uint64
	// Err is nil if the direction passed.
	Err error
}

// Report is the verification result of one population.
type Report struct {
	Group      string
	Edges      uint64
	Directions []DirectionReport
}

// OK reports whether every direction passed.
func (r *Report) OK() bool {
	for _, d := range r.Directions {
		if d.Err != nil {
			return false
		}
	}
	return true
}

// Verify checks the written index of the population at groupPath against
// its edges: every edge id is reachable from exactly its node, descriptors
// are maximal and the tables are tiled without gaps. It is not collective.
//
// The returned error joins the failures of both directions; the Report is
// returned whenever the index could be read.
func Verify(ctx context.Context, file *container.File, groupPath string) (*Report, error) {
	g, err := file.Group(groupPath)
	if err != nil {
		return nil, translateError(err)
	}
	view, err := edges.LoadAll(ctx, g)
	if err != nil {
		return nil, translateError(err)
	}
	r, err := OpenReader(file, groupPath)
	if err != nil {
		return nil, err
	}

	report := &Report{Group: r.Group(), Edges: view.EdgeCount()}
	var errs []error
	for _, d := range rangeindex.Directions {
		if err := ctx.Err(); err != nil {
			return nil, translateError(err)
		}
		dr := DirectionReport{Direction: d, Nodes: r.NodeCount(d), Descriptors: r.DescriptorCount(d)}
		idx, err := r.Index(d)
		if err == nil {
			err = translateError(rangeindex.Verify(idx, view))
		}
		dr.Err = err
		if err != nil {
			errs = append(errs, err)
		}
		report.Directions = append(report.Directions, dr)
	}
	return report, errors.Join(errs...)
}
