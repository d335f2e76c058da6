// Package sink persists the final record collection as one
// newline-delimited JSON artifact per run.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/scrapemonster/catalog-crawler/internal/catalog"
)

// Sink writes one run's records under name and returns the artifact URI.
// A repeated name fully replaces the prior artifact.
type Sink interface {
	Write(ctx context.Context, name string, records []catalog.ProductRecord) (string, error)
}

// encodeJSONL renders records as newline-delimited JSON objects.
func encodeJSONL(records []catalog.ProductRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
