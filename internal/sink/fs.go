package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/scrapemonster/catalog-crawler/internal/catalog"
)

// FileSystemSink writes the JSONL artifact into a fixed output directory,
// creating the directory if absent and overwriting any prior artifact of
// the same name.
type FileSystemSink struct {
	root   string
	logger *zap.Logger
}

// NewFileSystemSink returns a sink rooted at dir.
func NewFileSystemSink(root string, logger *zap.Logger) (*FileSystemSink, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", root, err)
	}
	return &FileSystemSink{root: root, logger: logger}, nil
}

// Write persists records to <root>/<name>.
func (s *FileSystemSink) Write(ctx context.Context, name string, records []catalog.ProductRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	data, err := encodeJSONL(records)
	if err != nil {
		return "", err
	}
	target := filepath.Join(s.root, name)
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", target, err)
	}
	s.logger.Info("wrote artifact",
		zap.String("path", target), zap.Int("records", len(records)))
	return target, nil
}
