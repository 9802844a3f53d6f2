package cdnsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/oklog/ulid/v2"

	"github.com/mkrupp/mediapipe/internal/domain"
	"github.com/mkrupp/mediapipe/internal/infra/logging"
	"github.com/mkrupp/mediapipe/internal/infra/metrics"
)

// ErrCloudFrontNotConfigured is returned when no distribution is configured.
var ErrCloudFrontNotConfigured = errors.New("cloudfront distribution is not configured")

// CloudFront invalidation states.
const (
	invalidationInProgress = "InProgress"
	invalidationCompleted  = "Completed"
)

// CloudFrontConfig holds configuration for the CloudFront CDN.
type CloudFrontConfig struct {
	// Path is the public base URL of the distribution
	Path            string `env:"PATH" default:""`
	DistributionID  string `env:"DISTRIBUTION_ID" default:""`
	Region          string `env:"REGION" default:"us-east-1"`
	AccessKeyID     string `env:"ACCESS_KEY_ID" default:""`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" default:""`
}

// CloudFrontAPI is the subset of the CloudFront client used by CloudFront.
type CloudFrontAPI interface {
	CreateInvalidation(
		ctx context.Context,
		in *cloudfront.CreateInvalidationInput,
		opts ...func(*cloudfront.Options),
	) (*cloudfront.CreateInvalidationOutput, error)
	GetInvalidation(
		ctx context.Context,
		in *cloudfront.GetInvalidationInput,
		opts ...func(*cloudfront.Options),
	) (*cloudfront.GetInvalidationOutput, error)
}

// CloudFront invalidates paths on an AWS CloudFront distribution.
type CloudFront struct {
	client CloudFrontAPI
	cfg    CloudFrontConfig
	log    logging.Logger
}

var _ CDN = (*CloudFront)(nil)

// NewCloudFrontFromConfig builds a CloudFront CDN with an AWS client. Static
// credentials are used when configured, the default chain otherwise.
func NewCloudFrontFromConfig(ctx context.Context, cfg CloudFrontConfig) (*CloudFront, error) {
	if cfg.DistributionID == "" {
		return nil, ErrCloudFrontNotConfigured
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewCloudFront(cloudfront.NewFromConfig(awsCfg), cfg), nil
}

// NewCloudFront creates a CloudFront CDN on the given client.
func NewCloudFront(client CloudFrontAPI, cfg CloudFrontConfig) *CloudFront {
	return &CloudFront{
		client: client,
		cfg:    cfg,
		log: logging.GetLogger("svc.cdnsvc.cloudfront").With(
			logging.Group("cdn", "distribution", cfg.DistributionID),
		),
	}
}

func (cf *CloudFront) FlushPaths(ctx context.Context, paths []string) (id string, err error) {
	defer func() {
		metrics.RecordCDNFlush("cloudfront", len(paths), err)

		if err != nil {
			cf.log.ErrorContext(ctx, "cdn flush failed", "error", err, "paths", len(paths))
		} else {
			cf.log.DebugContext(ctx, "cdn flush submitted", "id", id, "paths", len(paths))
		}
	}()

	if len(paths) == 0 {
		return "", ErrNoPaths
	}

	items := make([]string, 0, len(paths))
	for _, path := range paths {
		items = append(items, "/"+strings.TrimLeft(path, "/"))
	}

	out, err := cf.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(cf.cfg.DistributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(ulid.Make().String()),
			Paths: &types.Paths{
				Quantity: aws.Int32(int32(len(items))), //nolint:gosec
				Items:    items,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: create invalidation: %w", domain.ErrCDNFlushFailed, err)
	}

	if out.Invalidation == nil || aws.ToString(out.Invalidation.Id) == "" {
		return "", fmt.Errorf("%w: empty invalidation id", domain.ErrCDNFlushFailed)
	}

	return aws.ToString(out.Invalidation.Id), nil
}

func (cf *CloudFront) FlushByString(ctx context.Context, path string) (string, error) {
	return cf.FlushPaths(ctx, []string{path})
}

func (cf *CloudFront) Path(relative string, _ bool) string {
	return joinURL(cf.cfg.Path, relative)
}

func (cf *CloudFront) FlushStatus(ctx context.Context, id string) (domain.CDNStatus, error) {
	out, err := cf.client.GetInvalidation(ctx, &cloudfront.GetInvalidationInput{
		DistributionId: aws.String(cf.cfg.DistributionID),
		Id:             aws.String(id),
	})
	if err != nil {
		return domain.CDNStatusError, fmt.Errorf("get invalidation: %w", err)
	}

	if out.Invalidation == nil {
		return domain.CDNStatusError, fmt.Errorf("%w: missing invalidation", domain.ErrUnknownCDNStatus)
	}

	switch status := aws.ToString(out.Invalidation.Status); status {
	case invalidationInProgress:
		return domain.CDNStatusWaiting, nil
	case invalidationCompleted:
		return domain.CDNStatusFlushed, nil
	default:
		return domain.CDNStatusError, fmt.Errorf("%w: %q", domain.ErrUnknownCDNStatus, status)
	}
}
