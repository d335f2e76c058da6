package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrapemonster/catalog-crawler/internal/catalog"
)

func sampleRecords() []catalog.ProductRecord {
	qty := "1L"
	barcode := "EAN-13 4006381333931"
	return []catalog.ProductRecord{
		{
			Name:     "Fresh Milk",
			Quantity: &qty,
			Price:    59.5,
			Images:   []string{"https://img.example/1.jpg"},
			Barcode:  &barcode,
			Labels:   []string{"Chilled"},
			StoreURL: "https://www.tops.co.th/en/fresh-milk-1l",
		},
		{
			Name:     "Organic Eggs",
			Price:    120,
			Images:   []string{},
			Labels:   []string{},
			StoreURL: "https://www.tops.co.th/en/organic-eggs",
		},
	}
}

func TestFileSystemSink_WritesJSONL(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "data") // exercises dir creation
	s, err := NewFileSystemSink(root, zap.NewNop())
	require.NoError(t, err)

	uri, err := s.Write(context.Background(), "products.jsonl", sampleRecords())
	require.NoError(t, err)

	data, err := os.ReadFile(uri)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "Fresh Milk", first["name"])
	require.Equal(t, "1L", first["quantity"])
	require.Equal(t, "EAN-13 4006381333931", first["barcode"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "Organic Eggs", second["name"])
	require.Nil(t, second["quantity"])
	require.Nil(t, second["barcode"])
}

func TestFileSystemSink_OverwritesPriorArtifact(t *testing.T) {
	t.Parallel()

	s, err := NewFileSystemSink(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Write(ctx, "products.jsonl", sampleRecords())
	require.NoError(t, err)

	uri, err := s.Write(ctx, "products.jsonl", sampleRecords()[:1])
	require.NoError(t, err)

	data, err := os.ReadFile(uri)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(data), "\n"))
}

func TestMemorySink_CapturesArtifact(t *testing.T) {
	t.Parallel()

	s := NewMemorySink()
	uri, err := s.Write(context.Background(), "run.jsonl", sampleRecords())
	require.NoError(t, err)
	require.Equal(t, "memory://run.jsonl", uri)

	data, ok := s.Artifact("run.jsonl")
	require.True(t, ok)
	require.Contains(t, string(data), `"store_url":"https://www.tops.co.th/en/fresh-milk-1l"`)
}
