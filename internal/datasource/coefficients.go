package datasource

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LoadCoefficients reads the sector weight table (columns sector and
// coefficient; the legacy header he_so is accepted for the weight). A sector
// listed twice keeps its last weight. Rows with an empty sector are ignored.
func LoadCoefficients(path string) (map[string]float64, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}

	sectorCol, ok := t.column("sector")
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing column \"sector\"", ErrMalformed, path)
	}
	weightCol, ok := t.column("coefficient", "he_so", "weight")
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing column \"coefficient\"", ErrMalformed, path)
	}

	table := make(map[string]float64, len(t.rows))
	for i, row := range t.rows {
		sector := cell(row, sectorCol)
		if sector == "" {
			continue
		}
		raw := strings.ReplaceAll(cell(row, weightCol), ",", ".")
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: %s row %d: coefficient %q", ErrMalformed, path, i+2, raw)
		}
		table[sector] = w
	}
	return table, nil
}
