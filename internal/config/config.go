// Package config loads storectl configuration files.
//
// A configuration file selects a protocol, carries one section per transport
// and describes the uploader:
//
//	protocol: sftp
//	sftp:
//	  host: files.example.com
//	  user: deploy
//	  folder: /var/www/uploads
//	  options:
//	    keys: ~/.ssh/id_ed25519
//	uploader:
//	  root: /srv/app
//	  store_dir: avatars
//	  cache_dir: tmp/uploads
//	  permissions: "0640"
//
// Sections that are omitted keep their defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmgilman/go/storage"
	"github.com/jmgilman/go/storage/ftp"
	"github.com/jmgilman/go/storage/internal/errs"
	"github.com/jmgilman/go/storage/s3"
	"github.com/jmgilman/go/storage/sftp"
)

// Config is the top-level configuration file.
type Config struct {
	// Protocol selects the transport: ftp, sftp or s3.
	Protocol string `yaml:"protocol"`

	FTP  ftp.Config  `yaml:"ftp"`
	SFTP sftp.Config `yaml:"sftp"`
	S3   s3.Config   `yaml:"s3"`

	Uploader Uploader `yaml:"uploader"`

	// FollowSymlinks makes caching copy symlinked sources instead of
	// moving the link.
	FollowSymlinks bool `yaml:"follow_symlinks"`

	// TempDir is where fetched files are downloaded to.
	TempDir string `yaml:"temp_dir"`
}

// Uploader describes where files live locally and remotely.
type Uploader struct {
	Root                 string `yaml:"root"`
	StoreDir             string `yaml:"store_dir"`
	CacheDir             string `yaml:"cache_dir"`
	Permissions          Mode   `yaml:"permissions"`
	DirectoryPermissions Mode   `yaml:"directory_permissions"`
}

// Mode is a file mode written as an octal string such as "0644" or "0o755".
type Mode os.FileMode

// UnmarshalYAML parses an octal permission string.
func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected an octal file mode", value.Line)
	}

	s := strings.TrimPrefix(strings.TrimPrefix(value.Value, "0o"), "0O")
	parsed, err := strconv.ParseUint(s, 8, 32)
	if err != nil || parsed > 0o7777 {
		return fmt.Errorf("line %d: invalid file mode %q", value.Line, value.Value)
	}
	*m = Mode(parsed)
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Protocol: ftp.Protocol,
		FTP:      ftp.DefaultConfig(),
		SFTP:     sftp.DefaultConfig(),
		S3:       s3.DefaultConfig(),
		Uploader: Uploader{
			CacheDir:             "uploads/tmp",
			Permissions:          Mode(storage.DefaultPermissions),
			DirectoryPermissions: Mode(storage.DefaultDirectoryPermissions),
		},
		TempDir: os.TempDir(),
	}
}

// Load reads the file at path onto the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, "failed to read config")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errs.Config("failed to parse config %s: %v", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Protocol {
	case ftp.Protocol, sftp.Protocol, s3.Protocol:
		return nil
	}
	return errs.Config("unknown protocol %q: must be one of ftp, sftp, s3", c.Protocol)
}

// NewUploader returns an uploader for filename.
func (c *Config) NewUploader(filename string) *storage.DefaultUploader {
	return &storage.DefaultUploader{
		RootDir:        c.Uploader.Root,
		StoreDir:       c.Uploader.StoreDir,
		CacheDirectory: c.Uploader.CacheDir,
		Filename:       filename,
		FileMode:       os.FileMode(c.Uploader.Permissions),
		DirMode:        os.FileMode(c.Uploader.DirectoryPermissions),
	}
}

// NewBackend builds a backend for the configured protocol.
func (c *Config) NewBackend(uploader storage.Uploader, opts ...storage.Option) (*storage.Backend, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	all := append([]storage.Option{
		storage.WithFollowSymlinks(c.FollowSymlinks),
		storage.WithTempDir(c.TempDir),
	}, opts...)

	switch c.Protocol {
	case sftp.Protocol:
		return sftp.New(uploader, c.SFTP, all...)
	case s3.Protocol:
		return s3.New(uploader, c.S3, all...)
	default:
		return ftp.New(uploader, c.FTP, all...)
	}
}
