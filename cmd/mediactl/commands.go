package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mkrupp/mediapipe/internal/infra/transport/http"
	"github.com/mkrupp/mediapipe/internal/svc/flushsvc"
)

func newRootCommand(cfg Config) *cobra.Command {
	var a *app

	cmd := &cobra.Command{
		Use:           svcName,
		Short:         "Transform, publish and remove media",
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			a, err = newApp(cmd.Context(), cfg)

			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.Close()
		},
	}

	appFn := func() *app { return a }

	cmd.AddCommand(
		newTransformCommand(appFn),
		newRemoveCommand(appFn),
		newURLCommand(appFn),
		newReconcileCommand(appFn),
		newCDNWorkerCommand(appFn),
	)

	return cmd
}

func newTransformCommand(appFn func() *app) *cobra.Command {
	var (
		opts   transformOptions
		record string
	)

	cmd := &cobra.Command{
		Use:   "transform <file>",
		Short: "Store a file as new media, or as new content of --media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			opts.content = content
			opts.name = filepath.Base(args[0])

			if record != "" {
				if opts.existing, err = readMedia(record); err != nil {
					return err
				}
			} else if opts.id == "" {
				return errMissingID
			}

			media, err := appFn().transform(cmd.Context(), opts)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), media)
		},
	}

	cmd.Flags().StringVar(&opts.provider, "provider", "image", "provider handling the media")
	cmd.Flags().StringVar(&opts.context, "context", "", "media context (default from the pool file)")
	cmd.Flags().StringVar(&opts.id, "id", "", "identifier of the new media")
	cmd.Flags().StringVar(&record, "media", "", "media record to replace the content of")

	return cmd
}

func newRemoveCommand(appFn func() *app) *cobra.Command {
	var record string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete the thumbnails and reference file of a media",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			media, err := readMedia(record)
			if err != nil {
				return err
			}

			return appFn().remove(cmd.Context(), media)
		},
	}

	cmd.Flags().StringVar(&record, "media", "", "media record")
	_ = cmd.MarkFlagRequired("media")

	return cmd
}

func newURLCommand(appFn func() *app) *cobra.Command {
	var (
		record string
		format string
	)

	cmd := &cobra.Command{
		Use:   "url",
		Short: "Print the storage key and public URL of a media format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			media, err := readMedia(record)
			if err != nil {
				return err
			}

			urls, err := appFn().urls(media, format)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), urls)
		},
	}

	cmd.Flags().StringVar(&record, "media", "", "media record")
	cmd.Flags().StringVar(&format, "format", "reference", "format name, with or without context")
	_ = cmd.MarkFlagRequired("media")

	return cmd
}

func newReconcileCommand(appFn func() *app) *cobra.Command {
	var records string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Update the CDN status of flushed media and print the changed records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			medias, err := readMedias(records)
			if err != nil {
				return err
			}

			changed, err := appFn().reconcile(cmd.Context(), medias)
			if werr := writeJSON(cmd.OutOrStdout(), changed); werr != nil {
				return werr
			}

			return err
		},
	}

	cmd.Flags().StringVar(&records, "media", "", "file holding a JSON array of media records")
	_ = cmd.MarkFlagRequired("media")

	return cmd
}

func newCDNWorkerCommand(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cdn-worker",
		Short: "Poll pending CDN flushes and serve /metrics and /healthz",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFn()
			group, ctx := errgroup.WithContext(cmd.Context())

			group.Go(func() error {
				return flushsvc.NewWorker(a.cfg.Worker, a.cdn).Run(ctx)
			})

			group.Go(func() error {
				return http.ListenAndServe(ctx, http.NewOpsHandler(a.healthChecks()), a.cfg.HTTP)
			})

			//nolint:wrapcheck
			return group.Wait()
		},
	}
}
