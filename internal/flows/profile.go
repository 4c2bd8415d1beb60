package flows

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var labelColumns = []string{"label", "class", "attack", "attack_cat", "outcome"}

// DatasetProfile summarises a labelled CSV dataset.
type DatasetProfile struct {
	TotalRecords      int            `json:"total_records"`
	Features          int            `json:"features"`
	Columns           []string       `json:"columns"`
	LabelColumn       string         `json:"label_column"`
	MissingValues     map[string]int `json:"missing_values"`
	LabelDistribution map[string]int `json:"label_distribution"`
}

func isMissing(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "?", "nan", "null", "na":
		return true
	}
	return false
}

// ProfileCSV scans a dataset with a header row. The label column is the first
// header named like a label (label, class, attack...), otherwise the last column.
func ProfileCSV(r io.Reader) (*DatasetProfile, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	labelIdx := len(columns) - 1
	found := false
	for _, want := range labelColumns {
		for i, c := range columns {
			if strings.EqualFold(c, want) {
				labelIdx, found = i, true
				break
			}
		}
		if found {
			break
		}
	}

	p := &DatasetProfile{
		Columns:           columns,
		LabelColumn:       columns[labelIdx],
		Features:          len(columns) - 1,
		MissingValues:     make(map[string]int),
		LabelDistribution: make(map[string]int),
	}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset line %d: %w", line, err)
		}
		p.TotalRecords++
		for i, v := range row {
			if isMissing(v) {
				p.MissingValues[columns[i]]++
			}
		}
		p.LabelDistribution[strings.TrimSpace(row[labelIdx])]++
	}
	return p, nil
}
