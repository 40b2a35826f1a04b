package search

import (
	"strings"

	"github.com/mkoziy/antigen/sequencing/internal/corpus"
)

// CDR3 returns the records whose CDR3 contains query, ignoring case.
// Records without a CDR3 never match.
func CDR3(records []corpus.Record, query string) []corpus.Record {
	q := strings.ToUpper(query)
	var out []corpus.Record
	for _, r := range records {
		if r.CDR3AA == "" {
			continue
		}
		if strings.Contains(strings.ToUpper(r.CDR3AA), q) {
			out = append(out, r)
		}
	}
	return out
}
