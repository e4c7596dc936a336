// Package storage archives raw user uploads to object storage so the
// original inputs of a conversation remain available after the text has
// been distilled into prompt context.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"promptforge/pkg/domain"
)

// UploadArchive stores the raw uploaded files of a conversation.
type UploadArchive interface {
	ArchiveUploads(ctx context.Context, conversationID string, files []domain.UploadedFile) error
	PresignUpload(ctx context.Context, conversationID, uploadID string, expiry time.Duration) (string, error)
}

// MinioArchive implements UploadArchive for MinIO/S3 compatible storage.
type MinioArchive struct {
	client *minio.Client
	bucket string
}

// NewMinioArchive connects to MinIO and ensures the bucket exists.
func NewMinioArchive(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioArchive{client: client, bucket: bucket}, nil
}

// ArchiveUploads writes each uploaded file under the conversation's prefix.
func (m *MinioArchive) ArchiveUploads(ctx context.Context, conversationID string, files []domain.UploadedFile) error {
	for _, file := range files {
		contentType := file.Type
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		reader := strings.NewReader(file.Content)
		key := archiveKey(conversationID, file.ID)
		_, err := m.client.PutObject(ctx, m.bucket, key, reader, int64(reader.Len()), minio.PutObjectOptions{
			ContentType: contentType,
			UserMetadata: map[string]string{
				"original-name": file.Name,
			},
		})
		if err != nil {
			return fmt.Errorf("archive upload %s: %w", file.Name, err)
		}
	}
	return nil
}

// PresignUpload generates a pre-signed GET URL for one archived upload.
func (m *MinioArchive) PresignUpload(ctx context.Context, conversationID, uploadID string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, archiveKey(conversationID, uploadID), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}
	return url.String(), nil
}

func archiveKey(conversationID, uploadID string) string {
	return fmt.Sprintf("uploads/%s/%s", conversationID, uploadID)
}
