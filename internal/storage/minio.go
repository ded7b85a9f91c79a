package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MailDrop stores rendered RFC 5322 messages in a bucket that the outbound
// mail relay drains. Object keys are <document>/<event>.eml.
type MailDrop struct {
	client *minio.Client
	bucket string
}

func NewMailDrop(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*MailDrop, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &MailDrop{client: client, bucket: bucket}, nil
}

func MessageKey(documentID, eventID string) string {
	return path.Join(documentID, eventID+".eml")
}

// PutMessage overwrites any earlier upload under the same key, so a retried
// activity leaves exactly one message behind.
func (m *MailDrop) PutMessage(ctx context.Context, documentID, eventID string, message []byte) (string, error) {
	objectKey := MessageKey(documentID, eventID)
	_, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(message), int64(len(message)), minio.PutObjectOptions{
		ContentType: "message/rfc822",
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", objectKey, err)
	}
	return objectKey, nil
}

func (m *MailDrop) GetMessage(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data.Bytes(), nil
}
