// Package flows turns flow exports and packet captures into flow records.
package flows

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowguard/flowguard/internal/models"
)

// Format names an input encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatCSV    Format = "csv"
	FormatPCAP   Format = "pcap"
	FormatPCAPNG Format = "pcapng"
)

// DetectFormat guesses the format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".ndjson", ".jsonl":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	case ".pcap", ".cap":
		return FormatPCAP, nil
	case ".pcapng":
		return FormatPCAPNG, nil
	default:
		return "", fmt.Errorf("unrecognised flow file extension %q", filepath.Ext(path))
	}
}

// ReadFile loads every flow in path.
func ReadFile(path string) ([]models.FlowRecord, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, format)
}

// Read decodes flows in the given format.
func Read(r io.Reader, format Format) ([]models.FlowRecord, error) {
	switch format {
	case FormatJSON:
		return ReadJSON(r)
	case FormatCSV:
		return ReadCSV(r)
	case FormatPCAP:
		return ReadPCAP(r)
	case FormatPCAPNG:
		return ReadPCAPNG(r)
	default:
		return nil, fmt.Errorf("unsupported flow format %q", format)
	}
}

// ReadJSON accepts a single flow object, an array of flows, or newline-delimited flows.
func ReadJSON(r io.Reader) ([]models.FlowRecord, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var out []models.FlowRecord
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode flow array: %w", err)
		}
		return out, nil
	}

	var out []models.FlowRecord
	for {
		var rec models.FlowRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode flow %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsAny(b, " \t\r\n") {
			return b[0], nil
		}
		if _, err := br.ReadByte(); err != nil {
			return 0, err
		}
	}
}
