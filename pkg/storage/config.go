package storage

// S3Option configures the S3 backend.
type S3Option func(*S3Config)

// S3Config holds S3 configuration.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// WithS3Prefix sets the key prefix inside the bucket.
func WithS3Prefix(prefix string) S3Option {
	return func(c *S3Config) {
		c.Prefix = prefix
	}
}

// WithS3Region sets the AWS region.
func WithS3Region(region string) S3Option {
	return func(c *S3Config) {
		c.Region = region
	}
}

// WithS3Endpoint points the client at an S3 compatible endpoint (MinIO, LocalStack).
func WithS3Endpoint(endpoint string, pathStyle bool) S3Option {
	return func(c *S3Config) {
		c.Endpoint = endpoint
		c.UsePathStyle = pathStyle
	}
}

// GCSOption configures the GCS backend.
type GCSOption func(*GCSConfig)

// GCSConfig holds GCS configuration.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// WithGCSPrefix sets the object prefix inside the bucket.
func WithGCSPrefix(prefix string) GCSOption {
	return func(c *GCSConfig) {
		c.Prefix = prefix
	}
}
