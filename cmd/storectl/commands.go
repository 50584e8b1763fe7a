package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jmgilman/go/storage"
)

func (a *app) storeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "store <file>",
		Short: "Stage a local file in the cache and upload it",
		Long: `Stage a local file in the cache and upload it.

The file is moved, not copied: after a successful run it no longer exists at
its original path and lives in the staging cache instead. Copy it first if
you need to keep it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			backend, err := a.backend(filepath.Base(src))
			if err != nil {
				return err
			}

			cached, err := backend.Cache(storage.NewLocalFile(backend.Filesystem(), src))
			if err != nil {
				return fmt.Errorf("failed to cache %s: %w", src, err)
			}

			f, err := backend.Store(cmd.Context(), cached)
			if err != nil {
				return fmt.Errorf("failed to store %s: %w", src, err)
			}

			a.log.WithField("url", f.URL()).Info("file stored")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), f.URL())
			return err
		},
	}
}

func (a *app) fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <identifier> [dest]",
		Short: "Download a stored file",
		Long:  "Download a stored file to dest, or to its base name in the working directory.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			identifier := args[0]
			dest := identifierName(identifier)
			if len(args) == 2 {
				dest = args[1]
			}

			backend, err := a.backend(identifierName(identifier))
			if err != nil {
				return err
			}

			tmp, err := backend.Retrieve(identifier).FetchToLocalTemp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = tmp.Close() }()

			out, err := os.Create(dest)
			if err != nil {
				return err
			}
			n, err := io.Copy(out, tmp)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", dest, err)
			}

			a.log.WithFields(logrus.Fields{"dest": dest, "bytes": n}).Info("file fetched")
			return nil
		},
	}
}

func (a *app) catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <identifier>",
		Short: "Print a stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := a.backend(identifierName(args[0]))
			if err != nil {
				return err
			}

			data, err := backend.Retrieve(args[0]).Read(cmd.Context())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func (a *app) statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <identifier>",
		Short: "Show the size, content type and URL of a stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := a.backend(identifierName(args[0]))
			if err != nil {
				return err
			}

			f := backend.Retrieve(args[0])
			size, err := f.Size(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, err = fmt.Fprintf(w, "path:         %s\nsize:         %d\ncontent type: %s\nurl:          %s\n",
				f.RemotePath(), size, f.ContentType(), f.URL())
			return err
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <identifier>",
		Short: "Delete a stored file",
		Long:  "Delete a stored file. Missing files and remote failures are logged, not reported.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := a.backend(identifierName(args[0]))
			if err != nil {
				return err
			}

			f := backend.Retrieve(args[0])
			f.Delete(cmd.Context())
			a.log.WithField("path", f.RemotePath()).Info("file deleted")
			return nil
		},
	}
}

func (a *app) cacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cache <file>",
		Short: "Move a local file into the staging cache",
		Long: `Move a local file into the staging cache and print its cached path.

The source file is removed from its original location. Copy it first if you
need to keep it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := a.backend(filepath.Base(args[0]))
			if err != nil {
				return err
			}

			cached, err := backend.Cache(storage.NewLocalFile(backend.Filesystem(), args[0]))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cached.Path())
			return err
		},
	}
}

func (a *app) cleanCacheCmd() *cobra.Command {
	olderThan := storage.ReclaimThreshold

	cmd := &cobra.Command{
		Use:   "clean-cache",
		Short: "Remove staging entries older than a threshold",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			backend, err := a.backend("")
			if err != nil {
				return err
			}
			return backend.CleanCache(olderThan)
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", storage.ReclaimThreshold, "minimum age of removed entries")
	return cmd
}

func (a *app) rmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <path>",
		Short: "Remove an empty local directory, such as a drained cache entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			backend, err := a.backend("")
			if err != nil {
				return err
			}
			return backend.DeleteDir(args[0])
		},
	}
}
