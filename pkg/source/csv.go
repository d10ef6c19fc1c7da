package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"cortexmap/pkg/errdefs"
)

// ReadCSV parses sources from a CSV stream. The header row names the
// columns: x, y and z are required; name, value and masked are
// optional. The same format with value omitted serves as a plain point
// list for localization.
func ReadCSV(r io.Reader, log *zap.Logger) (*Set, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"x", "y", "z"} {
		if _, ok := cols[required]; !ok {
			return nil, errdefs.Config("header", "missing required column %q", required)
		}
	}

	var sources []Source
	row := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row %d: %w", row, err)
		}
		row++

		var src Source
		for c, axis := range []string{"x", "y", "z"} {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[cols[axis]]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: parsing %s: %w", row, axis, err)
			}
			src.Pos[c] = v
		}
		if i, ok := cols["name"]; ok && i < len(record) {
			src.Name = strings.TrimSpace(record[i])
		}
		if i, ok := cols["value"]; ok && i < len(record) && strings.TrimSpace(record[i]) != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: parsing value: %w", row, err)
			}
			src.Value = v
		}
		if i, ok := cols["masked"]; ok && i < len(record) {
			src.Masked = truthy(record[i])
		}
		sources = append(sources, src)
	}
	return New(sources, log)
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}
