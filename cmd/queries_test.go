package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/directory-crawler/internal/site"
)

func writeQueries(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCollectQueries_MergesAndDedupes(t *testing.T) {
	path := writeQueries(t, `
queries:
  - category: Plumbers
    location: Montreal, QC
  - category: Roofers
    location: Laval, QC
`)

	got, err := collectQueries([]string{"Plumbers@Montreal, QC", "Dentists@Austin, TX"}, path)
	require.NoError(t, err)
	assert.Equal(t, []site.Query{
		{Category: "Plumbers", Location: "Montreal, QC"},
		{Category: "Dentists", Location: "Austin, TX"},
		{Category: "Roofers", Location: "Laval, QC"},
	}, got)
}

func TestCollectQueries_Errors(t *testing.T) {
	_, err := collectQueries(nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one query")

	_, err = collectQueries([]string{"Plumbers"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Category@Location")
}
