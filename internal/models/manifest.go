package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mkoziy/antigen/sequencing/internal/wells"
)

// ElisaWellRef points at an ELISA well by plate id and 1-based location.
type ElisaWellRef struct {
	Plate    int64 `json:"plate" yaml:"plate"`
	Location int   `json:"location" yaml:"location"`
}

// WellEntry maps one sequencing plate position to the ELISA well whose
// clone was sent for sequencing. Plate is the 0-based sequencing page.
type WellEntry struct {
	Plate     int          `json:"plate" yaml:"plate"`
	Location  int          `json:"location" yaml:"location"`
	ElisaWell ElisaWellRef `json:"elisa_well" yaml:"elisa_well"`
}

// WellEntries is the manifest of a sequencing run, stored as JSON.
type WellEntries []WellEntry

// PlateThreshold is the optical density cut-off for one ELISA plate.
type PlateThreshold struct {
	ElisaPlate              int64   `json:"elisa_plate" yaml:"elisa_plate"`
	OpticalDensityThreshold float64 `json:"optical_density_threshold" yaml:"optical_density_threshold"`
}

// PlateThresholds is stored as JSON.
type PlateThresholds []PlateThreshold

// ValidationError describes an invalid manifest or threshold entry.
type ValidationError struct {
	Field string
	Index int
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s[%d]: %s", e.Field, e.Index, e.Msg)
}

func invalid(field string, idx int, format string, args ...any) error {
	return &ValidationError{Field: field, Index: idx, Msg: fmt.Sprintf(format, args...)}
}

func (w WellEntries) Value() (driver.Value, error) {
	if len(w) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]WellEntry(w))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (w *WellEntries) Scan(value interface{}) error {
	return scanJSON(value, w)
}

func (p PlateThresholds) Value() (driver.Value, error) {
	if len(p) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]PlateThreshold(p))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *PlateThresholds) Scan(value interface{}) error {
	return scanJSON(value, p)
}

func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", value)
	}
}

// DecodeWells parses and validates a raw JSON manifest. Every entry must
// carry exactly the plate, location and elisa_well keys with integer values.
// The result is sorted by page and location.
func DecodeWells(data []byte) (WellEntries, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("wells must be a list of objects: %w", err)
	}
	out := make(WellEntries, 0, len(raw))
	for idx, m := range raw {
		if err := exactKeys(m, "plate", "location", "elisa_well"); err != nil {
			return nil, invalid("wells", idx, "%v", err)
		}
		plate, err := intField(m, "plate")
		if err != nil {
			return nil, invalid("wells", idx, "%v", err)
		}
		loc, err := intField(m, "location")
		if err != nil {
			return nil, invalid("wells", idx, "%v", err)
		}
		var ew map[string]json.RawMessage
		if err := json.Unmarshal(m["elisa_well"], &ew); err != nil || ew == nil {
			return nil, invalid("wells", idx, "elisa_well is not an object")
		}
		if err := exactKeys(ew, "plate", "location"); err != nil {
			return nil, invalid("wells", idx, "elisa_well: %v", err)
		}
		ePlate, err := intField(ew, "plate")
		if err != nil {
			return nil, invalid("wells", idx, "elisa_well: %v", err)
		}
		eLoc, err := intField(ew, "location")
		if err != nil {
			return nil, invalid("wells", idx, "elisa_well: %v", err)
		}
		out = append(out, WellEntry{
			Plate:     int(plate),
			Location:  int(loc),
			ElisaWell: ElisaWellRef{Plate: ePlate, Location: int(eLoc)},
		})
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	out.Sort()
	return out, nil
}

// Validate checks page numbering, locations and uniqueness. Entry i must be
// on page i/96 so pages fill in order.
func (w WellEntries) Validate() error {
	type pos struct{ page, loc int }
	seen := make(map[pos]int, len(w))
	for idx, e := range w {
		if want := idx / wells.PlateSize; e.Plate != want {
			return invalid("wells", idx, "plate should be %d (found: %d)", want, e.Plate)
		}
		if e.Location < 1 || e.Location > wells.PlateSize {
			return invalid("wells", idx, "location must be between 1 and %d inclusive", wells.PlateSize)
		}
		if e.ElisaWell.Location < 1 || e.ElisaWell.Location > wells.PlateSize {
			return invalid("wells", idx, "elisa_well location must be between 1 and %d inclusive", wells.PlateSize)
		}
		p := pos{e.Plate, e.Location}
		if prev, dup := seen[p]; dup {
			return invalid("wells", idx, "location %d on plate %d already used by well %d", e.Location, e.Plate, prev)
		}
		seen[p] = idx
	}
	return nil
}

// Sort orders entries by page then location.
func (w WellEntries) Sort() {
	sort.SliceStable(w, func(i, j int) bool {
		if w[i].Plate != w[j].Plate {
			return w[i].Plate < w[j].Plate
		}
		return w[i].Location < w[j].Location
	})
}

// DecodePlateThresholds parses and validates raw JSON thresholds.
func DecodePlateThresholds(data []byte) (PlateThresholds, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("plate_thresholds must be a list of objects: %w", err)
	}
	out := make(PlateThresholds, 0, len(raw))
	for idx, m := range raw {
		if err := exactKeys(m, "elisa_plate", "optical_density_threshold"); err != nil {
			return nil, invalid("plate_thresholds", idx, "%v", err)
		}
		plate, err := intField(m, "elisa_plate")
		if err != nil {
			return nil, invalid("plate_thresholds", idx, "%v", err)
		}
		var thr float64
		if err := json.Unmarshal(m["optical_density_threshold"], &thr); err != nil {
			return nil, invalid("plate_thresholds", idx, "optical_density_threshold is not a number")
		}
		out = append(out, PlateThreshold{ElisaPlate: plate, OpticalDensityThreshold: thr})
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks thresholds are non-negative and plates are unique.
func (p PlateThresholds) Validate() error {
	seen := make(map[int64]int, len(p))
	for idx, t := range p {
		if t.OpticalDensityThreshold < 0 {
			return invalid("plate_thresholds", idx, "optical_density_threshold must be at least 0")
		}
		if prev, dup := seen[t.ElisaPlate]; dup {
			return invalid("plate_thresholds", idx, "elisa_plate %d already listed at %d", t.ElisaPlate, prev)
		}
		seen[t.ElisaPlate] = idx
	}
	return nil
}

// For returns the threshold configured for an ELISA plate.
func (p PlateThresholds) For(plate int64) (float64, bool) {
	for _, t := range p {
		if t.ElisaPlate == plate {
			return t.OpticalDensityThreshold, true
		}
	}
	return 0, false
}

func exactKeys(m map[string]json.RawMessage, keys ...string) error {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return fmt.Errorf("missing %s", k)
		}
	}
	if len(m) != len(keys) {
		return errors.New("extraneous keys")
	}
	return nil
}

func intField(m map[string]json.RawMessage, key string) (int64, error) {
	raw := bytes.TrimSpace(m[key])
	if len(raw) == 0 || raw[0] == '"' {
		return 0, fmt.Errorf("%s is not an integer", key)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return 0, fmt.Errorf("%s is not an integer", key)
	}
	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("%s is not an integer", key)
	}
	return v, nil
}
