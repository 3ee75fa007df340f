package prescriptions

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3API is the subset of the S3 client used by FileStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// FileStore keeps uploaded prescription documents in S3, keyed by patient
// and upload time.
type FileStore struct {
	bucket   string
	s3Client S3API
}

// NewFileStore creates a FileStore. If bucket is empty, uploads are
// rejected rather than silently dropped.
func NewFileStore(s3Client S3API, bucket string) *FileStore {
	return &FileStore{bucket: bucket, s3Client: s3Client}
}

// Enabled returns true if document storage is configured.
func (f *FileStore) Enabled() bool {
	return f != nil && f.bucket != "" && f.s3Client != nil
}

// Upload stores a prescription document and returns its object key, which
// becomes the record's file reference.
func (f *FileStore) Upload(ctx context.Context, patientID string, contentType string, body []byte) (string, error) {
	if !f.Enabled() {
		return "", fmt.Errorf("prescriptions: document storage not configured")
	}
	if len(body) == 0 {
		return "", fmt.Errorf("prescriptions: empty document")
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("prescriptions/%s/%d/%02d/%s",
		patientID, now.Year(), now.Month(), uuid.NewString())

	_, err := f.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(f.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("prescriptions: s3 put %s: %w", key, err)
	}
	return key, nil
}
