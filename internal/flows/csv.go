package flows

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/flowguard/flowguard/internal/models"
)

var baseColumns = map[string]string{
	"source_ip":        "source_ip",
	"src_ip":           "source_ip",
	"sourceip":         "source_ip",
	"destination_ip":   "destination_ip",
	"dst_ip":           "destination_ip",
	"destinationip":    "destination_ip",
	"source_port":      "source_port",
	"src_port":         "source_port",
	"sourceport":       "source_port",
	"destination_port": "destination_port",
	"dst_port":         "destination_port",
	"destinationport":  "destination_port",
	"protocol":         "protocol",
	"duration":         "duration",
	"bytes_sent":       "bytes_sent",
	"bytessent":        "bytes_sent",
	"src_bytes":        "bytes_sent",
	"bytes_received":   "bytes_received",
	"bytesreceived":    "bytes_received",
	"dst_bytes":        "bytes_received",
	"packets":          "packets",
}

// ReadCSV reads flows from a CSV export with a header row. Known columns map
// onto flow fields; every other column becomes an extra feature, numeric when it parses.
func ReadCSV(r io.Reader) ([]models.FlowRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	fields := make([]string, len(header))
	for i, h := range header {
		fields[i] = baseColumns[strings.ToLower(strings.TrimSpace(h))]
	}

	var out []models.FlowRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		rec, err := recordFromRow(header, fields, row)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func recordFromRow(header, fields, row []string) (models.FlowRecord, error) {
	var rec models.FlowRecord
	for i, raw := range row {
		val := strings.TrimSpace(raw)
		var err error
		switch fields[i] {
		case "source_ip":
			rec.SourceIP = val
		case "destination_ip":
			rec.DestinationIP = val
		case "protocol":
			rec.Protocol = strings.ToUpper(val)
		case "source_port":
			rec.SourcePort, err = atoiOrZero(val)
		case "destination_port":
			rec.DestinationPort, err = atoiOrZero(val)
		case "duration":
			rec.Duration, err = floatOrZero(val)
		case "bytes_sent":
			rec.BytesSent, err = int64OrZero(val)
		case "bytes_received":
			rec.BytesReceived, err = int64OrZero(val)
		case "packets":
			rec.Packets, err = int64OrZero(val)
		default:
			name := strings.TrimSpace(header[i])
			if f, perr := strconv.ParseFloat(val, 64); perr == nil {
				rec.Features.Set(name, models.Number(f))
			} else {
				rec.Features.Set(name, models.Text(val))
			}
		}
		if err != nil {
			return models.FlowRecord{}, fmt.Errorf("column %s: %w", header[i], err)
		}
	}
	return rec, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func int64OrZero(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	return int64(f), err
}

func floatOrZero(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
