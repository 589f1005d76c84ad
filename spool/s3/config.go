package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig describes how to reach an S3-compatible endpoint.
type ClientConfig struct {
	// Region is the AWS region. Required.
	Region string

	// Endpoint overrides the service URL for S3-compatible stores,
	// e.g. "http://localhost:4566" for LocalStack.
	Endpoint string

	// UsePathStyle addresses buckets as path segments instead of host names.
	// LocalStack and a default MinIO need it.
	UsePathStyle bool

	// Credentials overrides the default credential chain when non-nil.
	Credentials aws.CredentialsProvider
}

// LocalStackConfig returns the configuration for a LocalStack on its
// default port with the test/test credentials.
func LocalStackConfig() ClientConfig {
	return ClientConfig{
		Region:       "us-east-1",
		Endpoint:     "http://localhost:4566",
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
	}
}

// MinIOConfig returns the configuration for a MinIO on its default port with
// the minioadmin credentials.
func MinIOConfig() ClientConfig {
	return ClientConfig{
		Region:       "us-east-1",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("minioadmin", "minioadmin", ""),
	}
}

// R2Config returns the configuration for Cloudflare R2 under accountID,
// authenticated with an R2 API token pair.
func R2Config(accountID, accessKeyID, secretAccessKey string) ClientConfig {
	return ClientConfig{
		Region:      "auto",
		Endpoint:    "https://" + accountID + ".r2.cloudflarestorage.com",
		Credentials: credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
	}
}

// ConfigFromEnv overlays environment variables named prefix+"_REGION",
// "_ENDPOINT", "_PATH_STYLE", "_ACCESS_KEY" and "_SECRET_KEY" on base.
// Unset variables keep the base value. Static credentials replace the base
// provider only when both keys are set.
func ConfigFromEnv(prefix string, base ClientConfig) (ClientConfig, error) {
	cfg := base
	if v := os.Getenv(prefix + "_REGION"); v != "" {
		cfg.Region = v
	}
	if v := os.Getenv(prefix + "_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv(prefix + "_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return ClientConfig{}, fmt.Errorf("s3: %s_PATH_STYLE: %w", prefix, err)
		}
		cfg.UsePathStyle = b
	}
	key, secret := os.Getenv(prefix+"_ACCESS_KEY"), os.Getenv(prefix+"_SECRET_KEY")
	if key != "" && secret != "" {
		cfg.Credentials = credentials.NewStaticCredentialsProvider(key, secret, "")
	}
	return cfg, nil
}

// NewClient builds an S3 client from cfg on top of the shared AWS config.
//
//	client, err := s3store.NewClient(ctx, s3store.ClientConfig{Region: "us-east-1"})
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	if cfg.Region == "" {
		return nil, errors.New("s3: region is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Credentials != nil {
		opts = append(opts, config.WithCredentialsProvider(cfg.Credentials))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, clientOptions(cfg)...), nil
}

func clientOptions(cfg ClientConfig) []func(*s3.Options) {
	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		opts = append(opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return opts
}

// NewLocalStackClient builds a client from LocalStackConfig.
func NewLocalStackClient(ctx context.Context) (*s3.Client, error) {
	return NewClient(ctx, LocalStackConfig())
}

// NewMinIOClient builds a client from MinIOConfig.
func NewMinIOClient(ctx context.Context) (*s3.Client, error) {
	return NewClient(ctx, MinIOConfig())
}

// NewR2Client builds a client from R2Config.
func NewR2Client(ctx context.Context, accountID, accessKeyID, secretAccessKey string) (*s3.Client, error) {
	return NewClient(ctx, R2Config(accountID, accessKeyID, secretAccessKey))
}
