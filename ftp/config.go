package ftp

import (
	"io"
	"time"

	"github.com/jmgilman/go/storage/internal/errs"
)

// Config contains configuration for the FTP backend.
type Config struct {
	// Host is the server hostname or IP address.
	Host string `yaml:"host"`

	// Port is the control connection port.
	Port int `yaml:"port"`

	// User is the login name.
	User string `yaml:"user"`

	// Password is the login password.
	Password string `yaml:"password"`

	// Folder is the remote directory stored paths are relative to.
	Folder string `yaml:"folder"`

	// URL is the public base URL files are served from.
	URL string `yaml:"url"`

	// Passive selects passive data connections. Active is the default.
	Passive bool `yaml:"passive"`

	// TLS enables explicit FTPS (AUTH TLS). Server certificates are not
	// verified.
	TLS bool `yaml:"tls"`

	// Chmod applies the uploader's permissions with SITE CHMOD after
	// every store.
	Chmod bool `yaml:"chmod"`

	// Timeout bounds connection setup and each command.
	Timeout time.Duration `yaml:"timeout"`

	// Trace receives the raw control connection dialogue when set.
	Trace io.Writer `yaml:"-"`
}

// DefaultConfig returns the default FTP configuration.
func DefaultConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     21,
		User:     "anonymous",
		Password: "",
		Folder:   "/",
		URL:      "http://localhost",
		Passive:  false,
		TLS:      false,
		Chmod:    true,
		Timeout:  30 * time.Second,
	}
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Host == "" {
		return errs.Config("ftp: host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errs.Config("ftp: port %d is out of range", c.Port)
	}
	if c.Timeout < 0 {
		return errs.Config("ftp: timeout must not be negative")
	}
	return nil
}
