// Package autoname derives display names for sequenced wells from the ELISA
// assay that selected them.
//
// A name has the form
//
//	{antigen}_{concentration}_{well}{.plate}_C{N}{cohort}{sublibrary}
//
// where {.plate} is only present when two ELISA plates in the same run share
// an antigen and pan-round concentration, and N marks a naive cohort.
package autoname

import (
	"strconv"
	"strings"

	"github.com/mkoziy/antigen/sequencing/internal/wells"
)

// Placeholder names for rows that cannot be traced back to an ELISA well.
const (
	Unparseable   = "n/a (well unparseable)"
	IndexNotFound = "n/a (index not found)"
)

// ManifestWell maps a sequencing plate position to the ELISA well it came from.
type ManifestWell struct {
	Page          int
	Location      int
	ElisaPlate    int64
	ElisaLocation int
}

// ElisaWell carries the assay metadata a name is built from.
type ElisaWell struct {
	Plate         int64
	Location      int
	Antigen       string
	Concentration float64
	CohortNum     int
	Naive         bool
	Sublibrary    string
}

type seqPos struct {
	page     int
	location int
}

type elisaPos struct {
	plate    int64
	location int
}

// Namer resolves result rows to names for one sequencing run.
type Namer struct {
	names        map[seqPos]string
	disambiguate bool
	plateOrder   []int64
}

// New builds a Namer from the run manifest and every ELISA well on the
// plates the manifest references. Plate suffixes are numbered in the order
// plates first appear in the manifest.
func New(manifest []ManifestWell, elisa []ElisaWell) *Namer {
	toSeq := make(map[elisaPos]seqPos, len(manifest))
	plateIdx := make(map[int64]int)
	var order []int64
	for _, m := range manifest {
		toSeq[elisaPos{m.ElisaPlate, m.ElisaLocation}] = seqPos{m.Page, m.Location}
		if _, ok := plateIdx[m.ElisaPlate]; !ok {
			plateIdx[m.ElisaPlate] = len(order) + 1
			order = append(order, m.ElisaPlate)
		}
	}

	type group struct {
		antigen       string
		concentration float64
	}
	platesPerGroup := make(map[group]map[int64]bool)
	for _, w := range elisa {
		if _, ok := plateIdx[w.Plate]; !ok {
			continue
		}
		g := group{w.Antigen, w.Concentration}
		if platesPerGroup[g] == nil {
			platesPerGroup[g] = make(map[int64]bool)
		}
		platesPerGroup[g][w.Plate] = true
	}
	ambiguous := false
	for _, plates := range platesPerGroup {
		if len(plates) > 1 {
			ambiguous = true
			break
		}
	}

	n := &Namer{names: make(map[seqPos]string), disambiguate: ambiguous, plateOrder: order}
	for _, w := range elisa {
		pos, ok := toSeq[elisaPos{w.Plate, w.Location}]
		if !ok {
			continue
		}
		suffix := ""
		if ambiguous {
			suffix = "." + strconv.Itoa(plateIdx[w.Plate])
		}
		n.names[pos] = Format(w, suffix)
	}
	return n
}

// Disambiguated reports whether names carry a plate suffix.
func (n *Namer) Disambiguated() bool { return n.disambiguate }

// Lookup returns the name for a sequencing plate position.
func (n *Namer) Lookup(page, location int) (string, bool) {
	s, ok := n.names[seqPos{page, location}]
	return s, ok
}

// Name resolves a result row from page, uploaded with the given offset,
// to its name. The well is read from the part of sequenceID after the last
// underscore. Unresolvable rows get a placeholder instead of an error.
func (n *Namer) Name(page, offset int, sequenceID string) string {
	wn := sequenceID
	if i := strings.LastIndexByte(sequenceID, '_'); i >= 0 {
		wn = sequenceID[i+1:]
	}
	label, err := wells.Extract(wn)
	if err != nil {
		return Unparseable
	}
	idx, _ := wells.Index(label)
	name, ok := n.Lookup(page, idx+1-offset)
	if !ok {
		return IndexNotFound
	}
	return name
}

// Format renders the name of one ELISA well with an optional plate suffix.
func Format(w ElisaWell, plateSuffix string) string {
	label, err := wells.ForLocation(w.Location)
	if err != nil {
		label = strconv.Itoa(w.Location)
	}
	var sb strings.Builder
	sb.WriteString(w.Antigen)
	sb.WriteByte('_')
	sb.WriteString(strconv.FormatFloat(w.Concentration, 'g', -1, 64))
	sb.WriteByte('_')
	sb.WriteString(label)
	sb.WriteString(plateSuffix)
	sb.WriteString("_C")
	if w.Naive {
		sb.WriteByte('N')
	}
	sb.WriteString(strconv.Itoa(w.CohortNum))
	sb.WriteString(w.Sublibrary)
	return sb.String()
}
