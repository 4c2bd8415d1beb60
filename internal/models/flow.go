package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// FeatureValue is a single named feature: either a number or a string.
type FeatureValue struct {
	num   float64
	str   string
	isStr bool
}

func Number(v float64) FeatureValue { return FeatureValue{num: v} }

func Text(v string) FeatureValue { return FeatureValue{str: v, isStr: true} }

func (v FeatureValue) IsText() bool { return v.isStr }

// Float returns the numeric value; ok is false for text features.
func (v FeatureValue) Float() (float64, bool) { return v.num, !v.isStr }

// Text returns the string value; ok is false for numeric features.
func (v FeatureValue) Text() (string, bool) { return v.str, v.isStr }

func (v FeatureValue) Any() any {
	if v.isStr {
		return v.str
	}
	return v.num
}

func (v FeatureValue) String() string {
	if v.isStr {
		return v.str
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

func (v FeatureValue) MarshalJSON() ([]byte, error) {
	if v.isStr {
		return json.Marshal(v.str)
	}
	return json.Marshal(v.num)
}

func (v *FeatureValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty feature value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		if b {
			*v = Number(1)
		} else {
			*v = Number(0)
		}
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("feature value must be a number or string: %w", err)
		}
		*v = Number(f)
	}
	return nil
}

// FeatureMap is an insertion-ordered map of named features. The zero value is empty and ready to use.
type FeatureMap struct {
	keys   []string
	values map[string]FeatureValue
}

// Set stores a feature. Overwriting keeps the original position.
func (m *FeatureMap) Set(name string, v FeatureValue) {
	if m.values == nil {
		m.values = make(map[string]FeatureValue)
	}
	if _, ok := m.values[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.values[name] = v
}

func (m FeatureMap) Get(name string) (FeatureValue, bool) {
	v, ok := m.values[name]
	return v, ok
}

func (m FeatureMap) Len() int { return len(m.keys) }

// Keys returns feature names in insertion order.
func (m FeatureMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Snapshot converts the map into plain values for storage.
func (m FeatureMap) Snapshot() map[string]any {
	if len(m.keys) == 0 {
		return nil
	}
	out := make(map[string]any, len(m.keys))
	for _, k := range m.keys {
		out[k] = m.values[k].Any()
	}
	return out
}

func (m FeatureMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := m.values[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *FeatureMap) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*m = FeatureMap{}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("features must be a JSON object")
	}
	out := FeatureMap{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected feature key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v FeatureValue
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("feature %q: %w", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// FlowRecord is one observed network flow submitted for analysis.
// Duration is in seconds; byte counts are totals per direction.
type FlowRecord struct {
	SourceIP        string     `json:"source_ip"`
	DestinationIP   string     `json:"destination_ip"`
	SourcePort      int        `json:"source_port"`
	DestinationPort int        `json:"destination_port"`
	Protocol        string     `json:"protocol"`
	Duration        float64    `json:"duration"`
	BytesSent       int64      `json:"bytes_sent"`
	BytesReceived   int64      `json:"bytes_received"`
	Packets         int64      `json:"packets,omitempty"`
	Features        FeatureMap `json:"features"`
}

// EngineFeatures is the feature map handed to the inference engine: the base
// flow fields first, followed by any extra features in their original order.
func (f FlowRecord) EngineFeatures() FeatureMap {
	var out FeatureMap
	out.Set("sourceIP", Text(f.SourceIP))
	out.Set("destinationIP", Text(f.DestinationIP))
	out.Set("sourcePort", Number(float64(f.SourcePort)))
	out.Set("destinationPort", Number(float64(f.DestinationPort)))
	out.Set("protocol", Text(f.Protocol))
	out.Set("duration", Number(f.Duration))
	out.Set("bytesSent", Number(float64(f.BytesSent)))
	out.Set("bytesReceived", Number(float64(f.BytesReceived)))
	for _, k := range f.Features.keys {
		out.Set(k, f.Features.values[k])
	}
	return out
}

// Validate rejects flows that cannot be analysed.
func (f FlowRecord) Validate() error {
	switch {
	case f.SourceIP == "":
		return errors.New("source_ip is required")
	case f.DestinationIP == "":
		return errors.New("destination_ip is required")
	case f.Duration < 0:
		return errors.New("duration must not be negative")
	case f.BytesSent < 0 || f.BytesReceived < 0:
		return errors.New("byte counts must not be negative")
	case f.SourcePort < 0 || f.SourcePort > 65535 || f.DestinationPort < 0 || f.DestinationPort > 65535:
		return errors.New("ports must be within 0-65535")
	}
	return nil
}
