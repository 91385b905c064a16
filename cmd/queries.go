package main

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-crawler/internal/queryfile"
	"github.com/sells-group/directory-crawler/internal/site"
)

// collectQueries merges --query flags and the queries file, dropping repeats.
func collectQueries(flags []string, path string) ([]site.Query, error) {
	var all []site.Query
	for _, s := range flags {
		q, err := site.ParseQuery(s)
		if err != nil {
			return nil, err
		}
		all = append(all, q)
	}
	if path != "" {
		fromFile, err := queryfile.Load(path)
		if err != nil {
			return nil, err
		}
		all = append(all, fromFile...)
	}

	seen := make(map[site.Query]bool, len(all))
	out := all[:0]
	for _, q := range all {
		if seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, eris.New("at least one query is required (--query or --queries-file)")
	}
	return out, nil
}
