package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/ignite/klaviyo-webflow/internal/config"
)

// LoadAWSConfig loads the default credential chain for region, using the
// shared profile when one is set.
func LoadAWSConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// Usage record kinds.
const (
	KindUsage = "usage"
	KindError = "error"
)

const skTimeFormat = "2006-01-02T15:04:05Z"

// DynamoAPI is the subset of the DynamoDB client used by UsageTable.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// UsageRecord is one script load or script error.
type UsageRecord struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Kind      string `dynamodbav:"Kind"`
	Version   string `dynamodbav:"Version"`
	Referrer  string `dynamodbav:"Referrer,omitempty"`
	UserAgent string `dynamodbav:"UserAgent,omitempty"`
	Message   string `dynamodbav:"Message,omitempty"`
	Timestamp string `dynamodbav:"Timestamp"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// UsageTable writes usage records keyed by SCRIPT#<version>.
type UsageTable struct {
	client    DynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

func NewUsageTable(client DynamoAPI, cfg config.AnalyticsConfig) *UsageTable {
	days := cfg.TTLDays
	if days <= 0 {
		days = 90
	}
	return &UsageTable{
		client:    client,
		tableName: cfg.DynamoDBTable,
		ttl:       time.Duration(days) * 24 * time.Hour,
		now:       time.Now,
	}
}

func usagePK(version string) string { return "SCRIPT#" + version }

// RecordUsage stores one script load.
func (t *UsageTable) RecordUsage(ctx context.Context, version, referrer, userAgent string) error {
	return t.put(ctx, UsageRecord{Kind: KindUsage, Version: version, Referrer: referrer, UserAgent: userAgent})
}

// RecordError stores one script delivery error.
func (t *UsageTable) RecordError(ctx context.Context, version, message, referrer string) error {
	return t.put(ctx, UsageRecord{Kind: KindError, Version: version, Message: message, Referrer: referrer})
}

func (t *UsageTable) put(ctx context.Context, rec UsageRecord) error {
	now := t.now().UTC()
	rec.PK = usagePK(rec.Version)
	rec.SK = now.Format(skTimeFormat) + "#" + uuid.NewString()
	rec.Timestamp = now.Format(time.RFC3339)
	rec.TTL = now.Add(t.ttl).Unix()

	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling usage record: %w", err)
	}
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

// Records returns the records for version between from and to.
func (t *UsageTable) Records(ctx context.Context, version string, from, to time.Time) ([]UsageRecord, error) {
	result, err := t.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(t.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: usagePK(version)},
			":from": &types.AttributeValueMemberS{Value: from.UTC().Format(skTimeFormat)},
			":to":   &types.AttributeValueMemberS{Value: to.UTC().Format(skTimeFormat) + "~"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}

	var records []UsageRecord
	for _, item := range result.Items {
		var rec UsageRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
