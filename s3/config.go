package s3

import (
	"github.com/minio/minio-go/v7"

	"github.com/jmgilman/go/storage/internal/errs"
)

// Config contains configuration for the S3 backend.
type Config struct {
	// Endpoint is the S3 server address (e.g., "localhost:9000").
	Endpoint string `yaml:"endpoint"`

	// Bucket is the bucket objects are stored in.
	Bucket string `yaml:"bucket"`

	// AccessKey is the access key ID for authentication.
	AccessKey string `yaml:"access_key"`

	// SecretKey is the secret access key for authentication.
	SecretKey string `yaml:"secret_key"`

	// UseSSL enables HTTPS connections.
	UseSSL bool `yaml:"use_ssl"`

	// Region is the bucket region. Optional for most S3-compatible servers.
	Region string `yaml:"region"`

	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`

	// URL is the public base URL objects are served from.
	URL string `yaml:"url"`

	// Client is an optional pre-configured client.
	// If provided, Endpoint, AccessKey, SecretKey, UseSSL and Region are ignored.
	Client *minio.Client `yaml:"-"`
}

// DefaultConfig returns the default S3 configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint: "localhost:9000",
		URL:      "http://localhost",
	}
}

// validate checks if the configuration is valid.
// Either Client OR (Endpoint + Bucket + AccessKey + SecretKey) must be provided.
func (c *Config) validate() error {
	if c.Bucket == "" {
		return errs.Config("s3: bucket is required")
	}

	if c.Client != nil {
		return nil
	}

	if c.Endpoint == "" {
		return errs.Config("s3: endpoint is required when client is not provided")
	}
	if c.AccessKey == "" {
		return errs.Config("s3: access key is required when client is not provided")
	}
	if c.SecretKey == "" {
		return errs.Config("s3: secret key is required when client is not provided")
	}

	return nil
}
