package plugin

/*
	JSONKey

	Lets any JSON payload be used as a sample, as long as
	each axis can be found at a dotted key path.

	Keys are "t", "ax", "ay", "az" and optionally "lx", "ly", "lz".
	Numeric path segments index into arrays, "accX.buffer.0".
	A missing acceleration axis decodes to a nil reading and the analyzer drops it.
	A linear reading is only attached when all three of its axes resolve.
*/

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	Pt "github.com/maroda/pogo/types"
)

var ErrKeyNotFound = errors.New("key not found")

type JSONKeyDecoder struct {
	Keys map[string]string
}

// NewJSONKeyDecoder returns a decoder for the given axis paths
func NewJSONKeyDecoder(keys map[string]string) *JSONKeyDecoder {
	return &JSONKeyDecoder{Keys: keys}
}

// Decode extracts one sample from the payload.
// Without a "t" path the receive time is used.
func (jd *JSONKeyDecoder) Decode(payload []byte, received time.Time) ([]Pt.Sample, error) {
	var data interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		slog.Error("Error unmarshalling json",
			slog.String("json", string(payload)),
			slog.Any("Error", err))
		return nil, fmt.Errorf("error unmarshalling json sample: %w", err)
	}

	s := Pt.Sample{TimestampMs: received.UnixMilli()}
	if path, ok := jd.Keys["t"]; ok {
		t, err := ExtractValue(data, path)
		if err != nil {
			return nil, fmt.Errorf("error extracting timestamp: %w", err)
		}
		s.TimestampMs = int64(t)
	}

	s.Accel = jd.reading(data, "ax", "ay", "az")
	if jd.hasLinear() {
		lin := jd.reading(data, "lx", "ly", "lz")
		if lin.X != nil && lin.Y != nil && lin.Z != nil {
			s.Linear = &lin
		}
	}

	return []Pt.Sample{s}, nil
}

func (jd *JSONKeyDecoder) hasLinear() bool {
	_, x := jd.Keys["lx"]
	_, y := jd.Keys["ly"]
	_, z := jd.Keys["lz"]
	return x || y || z
}

func (jd *JSONKeyDecoder) reading(data interface{}, kx, ky, kz string) Pt.Reading {
	return Pt.Reading{
		X: jd.axis(data, kx),
		Y: jd.axis(data, ky),
		Z: jd.axis(data, kz),
	}
}

func (jd *JSONKeyDecoder) axis(data interface{}, k string) *float64 {
	path, ok := jd.Keys[k]
	if !ok {
		return nil
	}
	v, err := ExtractValue(data, path)
	if err != nil {
		slog.Debug("Axis missing from payload",
			slog.String("axis", k),
			slog.String("path", path),
			slog.Any("Error", err))
		return nil
	}
	return &v
}

// ExtractValue walks a dotted key path through decoded JSON
// and returns the number found there
func ExtractValue(data interface{}, path string) (float64, error) {
	keys := strings.Split(path, ".")
	current := data

	for _, key := range keys {
		switch v := current.(type) {
		case map[string]interface{}:
			var ok bool
			current, ok = v[key]
			if !ok {
				return 0, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
			}
		case []interface{}:
			i, err := strconv.Atoi(key)
			if err != nil {
				return 0, fmt.Errorf("array index %q is not a number", key)
			}
			if i < 0 {
				i += len(v) // -1 is the newest entry
			}
			if i < 0 || i >= len(v) {
				return 0, fmt.Errorf("%w: index %s out of range", ErrKeyNotFound, key)
			}
			current = v[i]
		default:
			return 0, fmt.Errorf("cannot traverse into type %T at key %s", v, key)
		}
	}

	switch v := current.(type) {
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q not numeric: %w", v, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("value not numeric, cannot use %T", v)
	}
}

func (jd *JSONKeyDecoder) Type() string { return "json_key" }

// NativeDecoder reads the wire format directly,
// either one sample object or an array of them
type NativeDecoder struct{}

// wireSample tells an absent "t" apart from t = 0
type wireSample struct {
	T      *int64      `json:"t"`
	Accel  Pt.Reading  `json:"acc"`
	Linear *Pt.Reading `json:"lin,omitempty"`
}

// Decode stamps the receive time only on samples that carry no "t"
func (NativeDecoder) Decode(payload []byte, received time.Time) ([]Pt.Sample, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return nil, errors.New("empty payload")
	}

	var wire []wireSample
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(payload, &wire); err != nil {
			return nil, fmt.Errorf("error unmarshalling samples: %w", err)
		}
	} else {
		var ws wireSample
		if err := json.Unmarshal(payload, &ws); err != nil {
			return nil, fmt.Errorf("error unmarshalling sample: %w", err)
		}
		wire = []wireSample{ws}
	}

	samples := make([]Pt.Sample, 0, len(wire))
	for _, ws := range wire {
		s := Pt.Sample{
			TimestampMs: received.UnixMilli(),
			Accel:       ws.Accel,
			Linear:      ws.Linear,
		}
		if ws.T != nil {
			s.TimestampMs = *ws.T
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func (NativeDecoder) Type() string { return "native" }
