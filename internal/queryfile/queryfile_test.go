package queryfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/directory-crawler/internal/site"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Queries")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "queries.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

var want = []site.Query{
	{Category: "Plumbers", Location: "Montreal, QC"},
	{Category: "Dentists", Location: "Austin, TX"},
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "queries.yaml", `
queries:
  - category: Plumbers
    location: Montreal, QC
  - category: " Dentists "
    location: Austin, TX
`)

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_YAMLMissingLocation(t *testing.T) {
	path := writeFile(t, "queries.yml", "queries:\n  - category: Plumbers\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 0")
}

func TestLoad_CSVWithHeader(t *testing.T) {
	path := writeFile(t, "queries.csv", "location,category\n\"Montreal, QC\",Plumbers\n# comment\n\n\"Austin, TX\",Dentists\n")

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_CSVWithoutHeader(t *testing.T) {
	path := writeFile(t, "queries.csv", "Plumbers,\"Montreal, QC\"\nDentists,\"Austin, TX\"\n")

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_CSVMissingColumn(t *testing.T) {
	path := writeFile(t, "queries.csv", "Plumbers\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}

func TestLoad_XLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Category", "Location"},
		{"Plumbers", "Montreal, QC"},
		{"Dentists", "Austin, TX"},
	})

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "queries.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestHeaderColumns(t *testing.T) {
	cat, loc, ok := headerColumns([]string{"City", "Keyword", "Notes"})
	assert.True(t, ok)
	assert.Equal(t, 1, cat)
	assert.Equal(t, 0, loc)

	_, _, ok = headerColumns([]string{"Plumbers", "Montreal"})
	assert.False(t, ok)
}
