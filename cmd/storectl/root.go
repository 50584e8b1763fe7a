package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jmgilman/go/storage"
	"github.com/jmgilman/go/storage/internal/config"
)

// backendFactory builds the backend a command runs against.
type backendFactory func(cfg *config.Config, uploader storage.Uploader, opts ...storage.Option) (*storage.Backend, error)

func defaultBackend(cfg *config.Config, uploader storage.Uploader, opts ...storage.Option) (*storage.Backend, error) {
	return cfg.NewBackend(uploader, opts...)
}

// app holds the state shared by every command.
type app struct {
	configPath  string
	protocol    string
	verbose     bool
	logFile     string
	metricsFile string

	stdout, stderr io.Writer
	newBackend     backendFactory

	cfg      *config.Config
	log      *logrus.Logger
	registry *prometheus.Registry
	metrics  *storage.Metrics
	closers  []io.Closer
}

func newApp(stdout, stderr io.Writer, factory backendFactory) *app {
	return &app{stdout: stdout, stderr: stderr, newBackend: factory}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "storectl",
		Short: "Store, fetch and stage uploaded files on FTP, SFTP or S3 servers",
		Long: `storectl moves uploaded files between a local staging cache and a remote
server. Files are staged with "cache", uploaded with "store" and read back
with "fetch", "cat" or "stat". Stale staging entries are reclaimed with
"clean-cache".`,
		Example: `  # Stage and upload a file over SFTP
  storectl --config storectl.yaml --protocol sftp store ./avatar.png

  # Print a stored file
  storectl --config storectl.yaml cat avatar.png

  # Remove staging entries older than an hour
  storectl --config storectl.yaml clean-cache --older-than 1h`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.setup() },
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to a YAML configuration file")
	flags.StringVarP(&a.protocol, "protocol", "p", "", "transport to use: ftp, sftp or s3 (overrides the config file)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging and FTP command tracing")
	flags.StringVar(&a.logFile, "log-file", "", "also append logs to this file")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.AddCommand(
		a.storeCmd(),
		a.fetchCmd(),
		a.catCmd(),
		a.statCmd(),
		a.rmCmd(),
		a.cacheCmd(),
		a.cleanCacheCmd(),
		a.rmdirCmd(),
	)
	return root
}

func (a *app) setup() error {
	log, closer, err := newLogger(a.stderr, a.verbose, a.logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	a.log = log
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.protocol != "" {
		cfg.Protocol = a.protocol
	}
	if a.verbose {
		w := log.WriterLevel(logrus.DebugLevel)
		a.closers = append(a.closers, w)
		cfg.FTP.Trace = w
	}
	a.cfg = cfg

	a.registry = prometheus.NewRegistry()
	a.metrics, err = storage.NewMetrics(a.registry)
	return err
}

func (a *app) teardown() error {
	var err error
	if a.metricsFile != "" && a.registry != nil {
		err = prometheus.WriteToTextfile(a.metricsFile, a.registry)
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
	return err
}

// backend builds a backend whose uploader's current file is filename.
func (a *app) backend(filename string) (*storage.Backend, error) {
	return a.newBackend(a.cfg, a.cfg.NewUploader(filename),
		storage.WithLogger(a.log),
		storage.WithMetrics(a.metrics),
	)
}

// identifierName is the uploader filename for an identifier, which may
// contain directories relative to the store directory.
func identifierName(identifier string) string {
	return filepath.Base(identifier)
}
