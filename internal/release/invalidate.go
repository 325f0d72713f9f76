package release

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"

	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
)

// InvalidationPaths are the CDN paths refreshed after a release.
var InvalidationPaths = []string{"/script*", "/version"}

// CloudFrontAPI is the subset of the CloudFront client used here.
type CloudFrontAPI interface {
	CreateInvalidation(ctx context.Context, in *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

// Invalidator clears cached script responses from one distribution.
type Invalidator struct {
	client         CloudFrontAPI
	distributionID string
	now            func() time.Time
	log            *logger.Entry
}

func NewInvalidator(client CloudFrontAPI, distributionID string) *Invalidator {
	return &Invalidator{
		client:         client,
		distributionID: distributionID,
		now:            time.Now,
		log:            logger.Component("release"),
	}
}

// Invalidate requests invalidation of InvalidationPaths and returns the
// invalidation id.
func (i *Invalidator) Invalidate(ctx context.Context, version string) (string, error) {
	out, err := i.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(i.distributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(fmt.Sprintf("release-%s-%d", version, i.now().Unix())),
			Paths: &types.Paths{
				Quantity: aws.Int32(int32(len(InvalidationPaths))),
				Items:    InvalidationPaths,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating CloudFront invalidation: %w", err)
	}

	id := ""
	if out.Invalidation != nil {
		id = aws.ToString(out.Invalidation.Id)
	}
	i.log.Info("CloudFront invalidation created", "distribution", i.distributionID, "id", id, "version", version)
	return id, nil
}
