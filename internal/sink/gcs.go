package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"github.com/scrapemonster/catalog-crawler/internal/catalog"
)

// GCSSink uploads the JSONL artifact to a Google Cloud Storage bucket.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink creates a GCS-backed sink.
func NewGCSSink(client *storage.Client, bucket, prefix string) (*GCSSink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSSink{client: client, bucket: bucket, prefix: prefix}, nil
}

// Write uploads records as one object and returns its gs:// URI.
func (s *GCSSink) Write(ctx context.Context, name string, records []catalog.ProductRecord) (string, error) {
	data, err := encodeJSONL(records)
	if err != nil {
		return "", err
	}
	object := path.Join(s.prefix, name)
	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/x-ndjson"
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("upload artifact: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("upload artifact: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}
