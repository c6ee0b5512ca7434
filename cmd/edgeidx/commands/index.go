package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hupe1980/edgeidx"
	"github.com/hupe1980/edgeidx/cluster"
	"github.com/hupe1980/edgeidx/container"
)

type indexFlags struct {
	population  string
	parent      string
	all         bool
	sourceNodes uint64
	targetNodes uint64
}

func newIndexCmd(a *app) *cobra.Command {
	var f indexFlags

	cmd := &cobra.Command{
		Use:   "index FILE",
		Short: "Build the range indices of edge populations",
		Long: `Build the source_to_target and target_to_source indices of one population,
or of every population below a parent group with --all, using a group of
in-process workers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIndex(cmd, args[0], f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.population, "population", "p", "edges/default", "population group")
	fl.StringVar(&f.parent, "parent", "edges", "parent group of the populations indexed with --all")
	fl.BoolVar(&f.all, "all", false, "index every population below --parent, inferring node counts")
	fl.Uint64Var(&f.sourceNodes, "source-nodes", 0, "source node count, ignored with --all")
	fl.Uint64Var(&f.targetNodes, "target-nodes", 0, "target node count, ignored with --all")
	addIndexFlags(fl)
	return cmd
}

func (a *app) runIndex(cmd *cobra.Command, path string, f indexFlags) (err error) {
	ctx := cmd.Context()

	opts, err := a.indexOptions()
	if err != nil {
		return err
	}

	var reg *prometheus.Registry
	if a.cfg.MetricsFile != "" {
		reg = prometheus.NewRegistry()
		collector, err := edgeidx.NewPrometheusCollector(reg)
		if err != nil {
			return err
		}
		opts = append(opts, edgeidx.WithMetricsCollector(collector))
	}

	if a.cfg.Trace {
		tp, tpErr := newTracerProvider(cmd.ErrOrStderr())
		if tpErr != nil {
			return tpErr
		}
		defer func() { err = errors.Join(err, tp.Shutdown(context.WithoutCancel(ctx))) }()
		opts = append(opts, edgeidx.WithTracerProvider(tp))
	}

	results := make([][]*edgeidx.Result, a.cfg.Workers)
	runErr := cluster.Run(ctx, a.cfg.Workers, func(ctx context.Context, comm cluster.Comm) error {
		ix, err := edgeidx.Init(ctx, comm, opts...)
		if err != nil {
			return err
		}
		file, err := container.Open(path, container.ReadWrite)
		if err != nil {
			return err
		}
		defer file.Close()

		if f.all {
			res, err := ix.WriteAll(ctx, file, f.parent)
			results[comm.Rank()] = res
			return err
		}
		if err := ix.Write(ctx, file, f.population, f.sourceNodes, f.targetNodes); err != nil {
			return err
		}
		results[comm.Rank()] = []*edgeidx.Result{{
			Group:       f.population,
			SourceNodes: f.sourceNodes,
			TargetNodes: f.targetNodes,
		}}
		return nil
	})

	out := cmd.OutOrStdout()
	for _, r := range results[0] {
		fmt.Fprintf(out, "indexed %s (source nodes %d, target nodes %d)\n", r.Group, r.SourceNodes, r.TargetNodes)
	}

	if reg != nil {
		if err := prometheus.WriteToTextfile(a.cfg.MetricsFile, reg); err != nil {
			return errors.Join(runErr, fmt.Errorf("write metrics: %w", err))
		}
	}
	return runErr
}

func newTracerProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter)), nil
}
