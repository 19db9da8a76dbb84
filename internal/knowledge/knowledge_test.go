package knowledge_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"leaf-backend/internal/core/types"
	"leaf-backend/internal/knowledge"
	"leaf-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownLabel(t *testing.T) {
	table, err := knowledge.LoadFile("testdata/knowledge_db.json")
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"basella_alba", "jasminum"}, table.Labels())

	rec := table.Lookup("jasminum")
	assert.True(t, rec.Available)
	assert.Equal(t, "Jasminum officinale", rec.ScientificName)
	assert.Equal(t, []string{"Linalool", "Benzyl acetate"}, rec.ActiveCompounds)
	assert.Equal(t, "Avoid during pregnancy.", rec.Precautions)
}

func TestLookupMissingFields(t *testing.T) {
	table, err := knowledge.LoadFile("testdata/knowledge_db.json")
	require.NoError(t, err)

	rec := table.Lookup("basella_alba")
	assert.True(t, rec.Available)
	assert.Equal(t, []string{"Laxative"}, rec.MedicinalUses)
	assert.Equal(t, "N/A", rec.Precautions)
	assert.NotNil(t, rec.ActiveCompounds)
	assert.Empty(t, rec.ActiveCompounds)
	assert.NotNil(t, rec.Sources)
}

func TestLookupUnknownLabel(t *testing.T) {
	table, err := knowledge.Parse([]byte(`{}`))
	require.NoError(t, err)

	rec := table.Lookup("nerium_oleander")
	assert.Equal(t, types.PlaceholderRecord(), rec)
	assert.False(t, rec.Available)
	assert.Equal(t, types.Unavailable, rec.ScientificName)
	assert.Equal(t, []string{}, rec.MedicinalUses)

	var nilTable *knowledge.Table
	assert.Equal(t, types.PlaceholderRecord(), nilTable.Lookup("jasminum"))
}

func TestLoadErrorsNameThePath(t *testing.T) {
	_, err := knowledge.LoadFile("testdata/does_not_exist.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "testdata/does_not_exist.json")

	corrupt := filepath.Join(t.TempDir(), "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0644))
	_, err = knowledge.LoadFile(corrupt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), corrupt)
}

func TestLoadFromObjectStore(t *testing.T) {
	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	f, err := os.Open("testdata/knowledge_db.json")
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, store.PutObject(context.Background(), "artifacts", "kb/knowledge_db.json", f))

	table, err := knowledge.Load(context.Background(), "s3://artifacts/kb/knowledge_db.json", store)
	require.NoError(t, err)
	assert.True(t, table.Lookup("jasminum").Available)

	_, err = knowledge.Load(context.Background(), "s3://artifacts/kb/missing.json", store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://artifacts/kb/missing.json")

	_, err = knowledge.Load(context.Background(), "s3://artifacts/kb/knowledge_db.json", nil)
	assert.Error(t, err)

	table, err = knowledge.Load(context.Background(), "testdata/knowledge_db.json", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
}

func TestLookupReturnsCopies(t *testing.T) {
	table, err := knowledge.LoadFile("testdata/knowledge_db.json")
	require.NoError(t, err)

	rec := table.Lookup("jasminum")
	require.NotEmpty(t, rec.MedicinalUses)
	require.NotEmpty(t, rec.ActiveCompounds)
	want := append([]string(nil), rec.MedicinalUses...)

	rec.MedicinalUses[0] = "overwritten"
	rec.ActiveCompounds[0] = "overwritten"
	rec.Sources = append(rec.Sources, "https://example.org")

	again := table.Lookup("jasminum")
	assert.Equal(t, want, again.MedicinalUses)
	assert.Equal(t, []string{"Linalool", "Benzyl acetate"}, again.ActiveCompounds)
	assert.NotContains(t, again.Sources, "https://example.org")
}
