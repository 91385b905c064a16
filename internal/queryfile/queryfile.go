// Package queryfile loads crawl query lists from YAML, CSV, or XLSX files.
//
// YAML files hold a top-level queries list of category/location pairs.
// Tabular files use the first row as a header when it names a category and
// a location column; otherwise the first two columns are read as
// category and location.
package queryfile

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/directory-crawler/internal/site"
)

type yamlFile struct {
	Queries []site.Query `yaml:"queries"`
}

// Load reads the queries in path, choosing the format by file extension.
func Load(path string) ([]site.Query, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAML(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "queryfile: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		rows, err := readCSV(f)
		if err != nil {
			return nil, eris.Wrapf(err, "queryfile: %s", path)
		}
		return fromRows(path, rows)
	case ".xlsx":
		rows, err := readXLSX(path)
		if err != nil {
			return nil, err
		}
		return fromRows(path, rows)
	default:
		return nil, eris.Errorf("queryfile: unsupported format %q (valid: .yaml, .yml, .csv, .xlsx)", filepath.Ext(path))
	}
}

func loadYAML(path string) ([]site.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "queryfile: read %s", path)
	}
	var yf yamlFile
	if err := yaml.Unmarshal(data, &yf); err != nil {
		return nil, eris.Wrapf(err, "queryfile: parse %s", path)
	}
	for i, q := range yf.Queries {
		q.Category, q.Location = strings.TrimSpace(q.Category), strings.TrimSpace(q.Location)
		if q.Category == "" || q.Location == "" {
			return nil, eris.Errorf("queryfile: %s: entry %d needs category and location", path, i)
		}
		yf.Queries[i] = q
	}
	return yf.Queries, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		rows = append(rows, record)
	}
}

// readXLSX returns the rows of the first sheet.
func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "queryfile: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("queryfile: %s has no sheets", path)
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// fromRows maps tabular rows to queries. Blank rows are skipped.
func fromRows(path string, rows [][]string) ([]site.Query, error) {
	catCol, locCol := 0, 1
	if len(rows) > 0 {
		if c, l, ok := headerColumns(rows[0]); ok {
			catCol, locCol = c, l
			rows = rows[1:]
		}
	}

	var out []site.Query
	for i, row := range rows {
		if blank(row) {
			continue
		}
		q := site.Query{Category: cell(row, catCol), Location: cell(row, locCol)}
		if q.Category == "" || q.Location == "" {
			return nil, eris.Errorf("queryfile: %s: row %d needs category and location", path, i+1)
		}
		out = append(out, q)
	}
	return out, nil
}

func headerColumns(row []string) (cat, loc int, ok bool) {
	cat, loc = -1, -1
	for i, h := range row {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "category", "keyword", "query":
			cat = i
		case "location", "city", "where":
			loc = i
		}
	}
	return cat, loc, cat >= 0 && loc >= 0
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
