// Package sequences loads per-well nucleotide sequences from a results
// upload and trims them to the coding region.
package sequences

import (
	"path"
	"strings"
)

// Suffixes lists the file extensions recognised as single-sequence files.
var Suffixes = []string{".seq", ".fa", ".fasta"}

// Collection is an insertion-ordered mapping of sequence id to trimmed
// nucleotides. A repeated id replaces the earlier sequence but keeps its
// original position, and is recorded in Duplicates.
type Collection struct {
	order []string
	seqs  map[string]string
	dups  []string
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{seqs: make(map[string]string)}
}

// Add stores seq under id and reports whether an earlier entry was replaced.
func (c *Collection) Add(id, seq string) bool {
	_, exists := c.seqs[id]
	if exists {
		c.dups = append(c.dups, id)
	} else {
		c.order = append(c.order, id)
	}
	c.seqs[id] = seq
	return exists
}

// Get returns the sequence stored for id.
func (c *Collection) Get(id string) (string, bool) {
	s, ok := c.seqs[id]
	return s, ok
}

// IDs returns the ids in first-seen order.
func (c *Collection) IDs() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of distinct ids.
func (c *Collection) Len() int { return len(c.order) }

// Duplicates returns ids that appeared more than once, in the order the
// repeats were encountered.
func (c *Collection) Duplicates() []string {
	return append([]string(nil), c.dups...)
}

// Load reads every recognised file from src. File names are reduced to
// their base name without suffix to form the sequence id.
func Load(src Source) (*Collection, error) {
	out := NewCollection()
	err := src.Walk(func(name string, content []byte) error {
		id, ok := SequenceID(name)
		if !ok {
			return nil
		}
		seq, err := Trim(content)
		if err != nil {
			return &FileError{Name: name, Err: err}
		}
		out.Add(id, seq)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SequenceID derives the id for a file name, reporting false when the
// suffix is not recognised.
func SequenceID(name string) (string, bool) {
	base := path.Base(name)
	ext := path.Ext(base)
	for _, s := range Suffixes {
		if strings.EqualFold(ext, s) {
			return strings.TrimSuffix(base, ext), true
		}
	}
	return "", false
}
