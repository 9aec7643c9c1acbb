package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dmorgan81/textimage/internal/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("minio-client")

type MinioUploader struct {
	client *minio.Client
	bucket string
}

func NewMinioUploader(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioUploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &MinioUploader{client: client, bucket: bucket}, nil
}

func (u *MinioUploader) Upload(ctx context.Context, params UploadParams) error {
	ctx, span := tracer.Start(ctx, "minio_upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("minio.bucket", u.bucket),
		attribute.String("minio.key", params.Name),
		attribute.Int("minio.size", len(params.Data)),
	)
	log.FromContextOrDiscard(ctx).WithGroup("minio").Info("uploading to minio", "bucket", u.bucket, "name", params.Name)

	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	_, err = u.client.PutObject(ctx, u.bucket, params.Name, bytes.NewReader(params.Data), int64(len(params.Data)), minio.PutObjectOptions{
		ContentType:  params.ContentType,
		UserMetadata: params.Metadata,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upload to MinIO: %w", err)
	}
	return nil
}
