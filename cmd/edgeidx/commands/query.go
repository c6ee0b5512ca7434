package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/edgeidx"
	"github.com/hupe1980/edgeidx/container"
	"github.com/hupe1980/edgeidx/rangeindex"
)

func newLookupCmd(a *app) *cobra.Command {
	var (
		population string
		direction  string
		ranges     bool
	)

	cmd := &cobra.Command{
		Use:   "lookup FILE NODE...",
		Short: "Print the edge ids of nodes",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := rangeindex.ParseDirection(direction)
			if err != nil {
				return err
			}
			file, err := container.Open(args[0], container.ReadOnly)
			if err != nil {
				return err
			}
			defer file.Close()

			r, err := edgeidx.OpenReader(file, population)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, arg := range args[1:] {
				node, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("node %q: %w", arg, err)
				}
				if ranges {
					descs, err := r.Ranges(d, node)
					if err != nil {
						return err
					}
					parts := make([]string, len(descs))
					for i, desc := range descs {
						parts[i] = fmt.Sprintf("[%d,%d)", desc.Lo, desc.Hi)
					}
					fmt.Fprintf(out, "%d: %s\n", node, strings.Join(parts, " "))
					continue
				}
				ids, err := r.EdgeIDs(d, node)
				if err != nil {
					return err
				}
				parts := make([]string, len(ids))
				for i, id := range ids {
					parts[i] = strconv.FormatUint(id, 10)
				}
				fmt.Fprintf(out, "%d: %s\n", node, strings.Join(parts, " "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&population, "population", "p", "edges/default", "population group")
	cmd.Flags().StringVarP(&direction, "direction", "d", rangeindex.SourceToTarget.String(), "source_to_target or target_to_source")
	cmd.Flags().BoolVar(&ranges, "ranges", false, "print descriptors instead of edge ids")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var population string

	cmd := &cobra.Command{
		Use:   "verify FILE",
		Short: "Check a written index against its edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := container.Open(args[0], container.ReadOnly)
			if err != nil {
				return err
			}
			defer file.Close()

			report, err := edgeidx.Verify(cmd.Context(), file, population)
			if report == nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d edges\n", report.Group, report.Edges)
			for _, d := range report.Directions {
				status := "ok"
				if d.Err != nil {
					status = d.Err.Error()
				}
				fmt.Fprintf(out, "  %s: %d nodes, %d descriptors: %s\n", d.Direction, d.Nodes, d.Descriptors, status)
			}
			if !report.OK() {
				a.log.Error("verification failed", "population", report.Group, "error", err)
				return errors.New("verification failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&population, "population", "p", "edges/default", "population group")
	return cmd
}

func newInspectCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "List the groups and datasets of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := container.Open(args[0], container.ReadOnly)
			if err != nil {
				return err
			}
			defer file.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id %s, %s\n", file.ID(), humanize.IBytes(file.Size()))
			return walk(file.Root(), 0, func(depth int, name string, ds *container.Dataset) {
				indent := strings.Repeat("  ", depth)
				if ds == nil {
					fmt.Fprintf(out, "%s%s/\n", indent, name)
					return
				}
				fmt.Fprintf(out, "%s%s %v (%s)\n", indent, name, ds.Dims(), humanize.IBytes(ds.Bytes()))
			})
		},
	}
}

// walk visits the children of g in name order, groups before their
// members. ds is nil for groups.
func walk(g *container.Group, depth int, visit func(depth int, name string, ds *container.Dataset)) error {
	for _, name := range g.List() {
		if ds, err := g.Dataset(name); err == nil {
			visit(depth, name, ds)
			continue
		}
		child, err := g.Group(name)
		if err != nil {
			return err
		}
		visit(depth, name, nil)
		if err := walk(child, depth+1, visit); err != nil {
			return err
		}
	}
	return nil
}
