package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"

	"github.com/hupe1980/edgeidx"
	"github.com/hupe1980/edgeidx/blobstore"
	miniostore "github.com/hupe1980/edgeidx/blobstore/minio"
	s3store "github.com/hupe1980/edgeidx/blobstore/s3"
)

// openStore resolves a store URL. A URL without scheme is a local
// directory.
func openStore(ctx context.Context, sc StoreConfig) (blobstore.BlobStore, error) {
	if sc.URL == "" {
		return nil, errors.New("no blob store configured, set --store")
	}
	u, err := url.Parse(sc.URL)
	if err != nil {
		return nil, fmt.Errorf("store url: %w", err)
	}
	prefix := strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "", "file":
		return blobstore.NewLocalStore(u.Path), nil
	case "s3":
		opts := []s3store.Option{s3store.WithPrefix(prefix)}
		if sc.Region != "" {
			opts = append(opts, s3store.WithRegion(sc.Region))
		}
		if sc.Endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(sc.Endpoint))
		}
		return s3store.New(ctx, u.Host, opts...)
	case "minio":
		if sc.Endpoint == "" {
			return nil, errors.New("minio store requires --store-endpoint")
		}
		client, err := minio.New(sc.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(sc.AccessKey, sc.SecretKey, ""),
			Secure: !sc.Insecure,
			Region: sc.Region,
		})
		if err != nil {
			return nil, err
		}
		return miniostore.NewStore(client, u.Host, prefix), nil
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}

func newPublishCmd(a *app) *cobra.Command {
	var (
		compression string
		blockSize   int
	)

	cmd := &cobra.Command{
		Use:   "publish FILE NAME",
		Short: "Upload a finished container to the blob store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := edgeidx.ParseCompression(compression)
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), a.cfg.Store)
			if err != nil {
				return err
			}

			stats, err := edgeidx.Publish(cmd.Context(), store, args[1], args[0],
				edgeidx.WithCompression(c), edgeidx.WithBlockSize(blockSize))
			if err != nil {
				return err
			}
			a.log.Info("published", "name", stats.Name, "compression", stats.Compression.String(),
				"raw", humanize.IBytes(uint64(stats.RawBytes)), "stored", humanize.IBytes(uint64(stats.StoredBytes)))
			fmt.Fprintf(cmd.OutOrStdout(), "published %s (%s, %s stored)\n",
				stats.Name, stats.Compression, humanize.IBytes(uint64(stats.StoredBytes)))
			return nil
		},
	}

	cmd.Flags().StringVar(&compression, "compression", "zstd", "none, lz4 or zstd")
	cmd.Flags().IntVar(&blockSize, "block-size", 0, "uncompressed block size in bytes (default if 0)")
	return cmd
}

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch NAME FILE",
		Short: "Download a published container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), a.cfg.Store)
			if err != nil {
				return err
			}
			stats, err := edgeidx.Fetch(cmd.Context(), store, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched %s (%s, %s)\n",
				stats.Name, stats.Compression, humanize.IBytes(uint64(stats.RawBytes)))
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [PREFIX]",
		Short: "List published containers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), a.cfg.Store)
			if err != nil {
				return err
			}
			var prefix string
			if len(args) == 1 {
				prefix = args[0]
			}
			names, err := store.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
