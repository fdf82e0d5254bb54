package repositories

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
)

type DynamoDBAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoDBClient mirrors the job-level status into a summary table keyed by
// job_id. With no table configured every update is a no-op.
type DynamoDBClient struct {
	client    DynamoDBAPI
	tableName string
}

func NewDynamoDBClient(client DynamoDBAPI, tableName string) *DynamoDBClient {
	return &DynamoDBClient{
		client:    client,
		tableName: tableName,
	}
}

func (d *DynamoDBClient) jobKey(jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"job_id": &types.AttributeValueMemberS{Value: jobID},
	}
}

func (d *DynamoDBClient) UpdateJobStatus(ctx context.Context, jobID, companyID, status string) error {
	if d.tableName == "" {
		return nil
	}

	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(d.tableName),
		Key:              d.jobKey(jobID),
		UpdateExpression: aws.String("SET #s = :status, company_id = :company"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: status},
			":company": &types.AttributeValueMemberS{Value: companyID},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update job status in DynamoDB for job %s: %w", jobID, err)
	}
	return nil
}

// UpdateJobSummary records the final status and outcome counts of a run.
func (d *DynamoDBClient) UpdateJobSummary(ctx context.Context, summary domain.JobSummary, status, completedAt string) error {
	if d.tableName == "" {
		return nil
	}

	num := func(n int) types.AttributeValue {
		return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
	}
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(d.tableName),
		Key:              d.jobKey(summary.JobID),
		UpdateExpression: aws.String("SET #s = :status, completed_at = :cat, finished_count = :fin, stored_count = :stored, failed_count = :failed, not_found_count = :nf, abort_reason = :reason"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: status},
			":cat":    &types.AttributeValueMemberS{Value: completedAt},
			":fin":    num(summary.Finished()),
			":stored": num(summary.Stored),
			":failed": num(summary.Failed),
			":nf":     num(summary.NotFound),
			":reason": &types.AttributeValueMemberS{Value: summary.AbortReason},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update job summary in DynamoDB for job %s: %w", summary.JobID, err)
	}
	return nil
}
