package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*S3Options)(nil)

// S3Options configures the object store that holds firmware binaries.
type S3Options struct {
	Endpoint        string        `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string        `json:"access-key-id" mapstructure:"access-key-id"`
	SecretAccessKey string        `json:"secret-access-key" mapstructure:"secret-access-key"`
	UseSSL          bool          `json:"use-ssl" mapstructure:"use-ssl"`
	BucketName      string        `json:"bucket-name" mapstructure:"bucket-name"`
	Region          string        `json:"region" mapstructure:"region"`
	URLExpiry       time.Duration `json:"url-expiry" mapstructure:"url-expiry"`

	// InsecureSkipVerify disables certificate verification, for self-signed development endpoints.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

func NewS3Options() *S3Options {
	return &S3Options{
		Endpoint:   "localhost:9000",
		UseSSL:     false,
		BucketName: "firmware",
		Region:     "us-east-1",
		URLExpiry:  time.Hour,
	}
}

func (o *S3Options) Validate() []error {
	var errs []error

	if o.Endpoint == "" {
		errs = append(errs, fmt.Errorf("--s3.endpoint must be set"))
	}
	if o.BucketName == "" {
		errs = append(errs, fmt.Errorf("--s3.bucket-name must be set"))
	}
	// Presigned URLs are capped at 7 days by the S3 protocol.
	if o.URLExpiry <= 0 || o.URLExpiry > 7*24*time.Hour {
		errs = append(errs, fmt.Errorf("--s3.url-expiry must be within (0, 168h], got %s", o.URLExpiry))
	}

	return errs
}

func (o *S3Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Endpoint, "s3.endpoint", o.Endpoint, "S3 service endpoint (e.g. s3.amazonaws.com or minio.local:9000)")
	fs.StringVar(&o.AccessKeyID, "s3.access-key-id", o.AccessKeyID, "S3 access key ID")
	fs.StringVar(&o.SecretAccessKey, "s3.secret-access-key", o.SecretAccessKey, "S3 secret access key")
	fs.BoolVar(&o.UseSSL, "s3.use-ssl", o.UseSSL, "Enable SSL for S3 connection")
	fs.StringVar(&o.BucketName, "s3.bucket-name", o.BucketName, "S3 bucket name for firmware storage")
	fs.StringVar(&o.Region, "s3.region", o.Region, "S3 region")
	fs.DurationVar(&o.URLExpiry, "s3.url-expiry", o.URLExpiry, "Lifetime of presigned firmware download URLs")
	fs.BoolVar(&o.InsecureSkipVerify, "s3.insecure-skip-verify", o.InsecureSkipVerify, "Skip TLS certificate verification of the S3 endpoint")
}
