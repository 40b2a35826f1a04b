package blast

import (
	"encoding/json"
	"fmt"
)

// Report is the subset of the BLAST JSON report the searches read.
type Report struct {
	BlastOutput2 []struct {
		Report struct {
			Results struct {
				Search Search `json:"search"`
			} `json:"results"`
		} `json:"report"`
	} `json:"BlastOutput2"`
}

// Search holds the hits of one query sequence.
type Search struct {
	QueryTitle string `json:"query_title"`
	QueryLen   int    `json:"query_len"`
	Hits       []Hit  `json:"hits"`
}

// Hit is one subject sequence matched by the query.
type Hit struct {
	Description []struct {
		Title string `json:"title"`
	} `json:"description"`
	HSPs []HSP `json:"hsps"`
}

// Title returns the subject title.
func (h Hit) Title() string {
	if len(h.Description) == 0 {
		return ""
	}
	return h.Description[0].Title
}

// HSP is a high-scoring segment pair.
type HSP struct {
	Num      int     `json:"num"`
	BitScore float64 `json:"bit_score"`
	Evalue   float64 `json:"evalue"`
	Identity int     `json:"identity"`
	AlignLen int     `json:"align_len"`
	QSeq     string  `json:"qseq"`
	HSeq     string  `json:"hseq"`
	Midline  string  `json:"midline"`
}

// ParseReport decodes a JSON report and returns one Search per query.
func ParseReport(data []byte) ([]Search, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode blast report: %w", err)
	}
	out := make([]Search, 0, len(r.BlastOutput2))
	for _, o := range r.BlastOutput2 {
		out = append(out, o.Report.Results.Search)
	}
	return out, nil
}
