// Package client builds S3 clients whose HTTP requests are retried by a retrying transport.
package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultRetryMax is the number of times a failed request is retried.
const DefaultRetryMax = 4

// Config ...
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Endpoint overrides the S3 endpoint, e.g. for MinIO or a local gateway.
	Endpoint     string
	UsePathStyle bool

	// RetryMax is the number of retries of a failed request. Zero means DefaultRetryMax,
	// a negative value disables retries.
	RetryMax int
}

// New creates an S3 client for cfg.
//
// Requests are retried by the HTTP client, not by the SDK, so that every transfer in the module
// shares one retry policy and every retry is logged.
func New(ctx context.Context, cfg Config, logger log.Logger) (*s3.Client, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// ResolveRegion returns the region bucket lives in.
func ResolveRegion(ctx context.Context, client manager.HeadBucketAPIClient, bucket string) (string, error) {
	if bucket == "" {
		return "", fmt.Errorf("bucket must not be empty")
	}

	region, err := manager.GetBucketRegion(ctx, client, bucket)
	if err != nil {
		return "", fmt.Errorf("get region of bucket %s: %w", bucket, err)
	}
	return region, nil
}

func loadAWSConfig(ctx context.Context, cfg Config, logger log.Logger) (*aws.Config, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryer(func() aws.Retryer {
			return aws.NopRetryer{}
		}),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	// The SDK applies AWS_CA_BUNDLE and the like to its own buildable client, the retrying client
	// sends its requests through that client's transport.
	var transport http.RoundTripper
	if buildable, ok := awsCfg.HTTPClient.(*awshttp.BuildableClient); ok {
		transport = buildable.GetTransport()
	}
	awsCfg.HTTPClient = newHTTPClient(cfg.RetryMax, transport, logger)

	return &awsCfg, nil
}

func newHTTPClient(retryMax int, transport http.RoundTripper, logger log.Logger) *http.Client {
	retryableHTTPClient := retryhttp.NewClient(logger)
	if transport != nil {
		retryableHTTPClient.HTTPClient.Transport = transport
	}
	retryableHTTPClient.CheckRetry = createCustomRetryFunction(logger)
	// The SDK parses the error of the last response itself.
	retryableHTTPClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	switch {
	case retryMax == 0:
		retryableHTTPClient.RetryMax = DefaultRetryMax
	case retryMax < 0:
		retryableHTTPClient.RetryMax = 0
	default:
		retryableHTTPClient.RetryMax = retryMax
	}

	return retryableHTTPClient.StandardClient()
}

func createCustomRetryFunction(logger log.Logger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, requestErr error) (bool, error) {
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, requestErr)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; requestErr=%+v", retry, err, requestErr)
		return retry, err
	}
}
