package aws

import (
	"context"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
)

// Config selects the region and client behaviour shared by every adapter.
type Config struct {
	Region         string
	MaxRetries     int
	ConnectTimeout time.Duration
	// Endpoint overrides service endpoints, for LocalStack
	Endpoint     string
	Bucket       string
	UsePathStyle bool
}

// LoadConfig resolves credentials from the default chain and applies
// region, retry and timeout settings.
func LoadConfig(ctx context.Context, cfg Config) (awssdk.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, awsconfig.WithRetryer(func() awssdk.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), cfg.MaxRetries+1)
		}))
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, awsconfig.WithHTTPClient(newHTTPClient(cfg.ConnectTimeout)))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return awssdk.Config{}, errors.NewInternalError("failed to load AWS config").WithCause(err)
	}
	return awsCfg, nil
}

// CredentialsConfigured reports whether the credential chain yields usable
// credentials.
func CredentialsConfigured(ctx context.Context, awsCfg awssdk.Config) bool {
	if awsCfg.Credentials == nil {
		return false
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	return err == nil && creds.HasKeys()
}
