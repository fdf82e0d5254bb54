package repositories

import (
	"bytes"
	"context"
	"fmt"
	"mime"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
)

type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Repository keeps an object copy of every newly stored document.
type S3Repository struct {
	client S3API
	bucket string
}

func NewS3Client(cfg aws.Config) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

func NewS3Repository(client S3API, bucket string) *S3Repository {
	return &S3Repository{client: client, bucket: bucket}
}

// ArchiveKey is the object key of a document: <company>/<identity>.<ext>.
func ArchiveKey(companyID string, id domain.Identity, ext string) string {
	if ext == "" {
		return fmt.Sprintf("%s/%s", companyID, id)
	}
	return fmt.Sprintf("%s/%s.%s", companyID, id, ext)
}

// ArchiveDocument uploads the draft content and returns its s3:// location.
func (r *S3Repository) ArchiveDocument(ctx context.Context, draft *domain.DocumentDraft) (string, error) {
	key := ArchiveKey(draft.CompanyID, draft.Identity, draft.FileExtension)
	contentType := mime.TypeByExtension("." + draft.FileExtension)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(draft.Content),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"saved-file-name": draft.SavedFileName,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", key, r.bucket, err)
	}
	return fmt.Sprintf("s3://%s/%s", r.bucket, key), nil
}
