package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 form used on the wire: UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// ErrMalformed is returned by ParseFields for payloads that are not a reading.
var ErrMalformed = errors.New("malformed reading")

// Reading is the latest known vital signs. Nil fields are absent.
type Reading struct {
	Heart     *float64
	SpO2      *float64
	TempC     *float64
	Timestamp *time.Time
}

// Fields is the device-supplied part of a reading.
type Fields struct {
	Heart *float64 `json:"heart"`
	SpO2  *float64 `json:"spo2"`
	TempC *float64 `json:"temp_c"`
}

type wireReading struct {
	Heart     *float64 `json:"heart"`
	SpO2      *float64 `json:"spo2"`
	TempC     *float64 `json:"temp_c"`
	Timestamp *string  `json:"timestamp"`
}

// Empty returns the reading served before any device has reported.
func Empty() Reading {
	return Reading{}
}

// IsEmpty reports whether no reading has been ingested yet.
func (r Reading) IsEmpty() bool {
	return r.Timestamp == nil
}

// Clone returns a deep copy of r.
func (r Reading) Clone() Reading {
	out := Reading{
		Heart: cloneFloat(r.Heart),
		SpO2:  cloneFloat(r.SpO2),
		TempC: cloneFloat(r.TempC),
	}
	if r.Timestamp != nil {
		ts := *r.Timestamp
		out.Timestamp = &ts
	}
	return out
}

// String returns the JSON form of r, for logging.
func (r Reading) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid reading: %v>", err)
	}
	return string(b)
}

// MarshalJSON encodes absent fields as null and the timestamp as ISO-8601.
func (r Reading) MarshalJSON() ([]byte, error) {
	w := wireReading{Heart: r.Heart, SpO2: r.SpO2, TempC: r.TempC}
	if r.Timestamp != nil {
		ts := r.Timestamp.UTC().Format(TimestampLayout)
		w.Timestamp = &ts
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the form produced by MarshalJSON.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var w wireReading
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Reading{Heart: w.Heart, SpO2: w.SpO2, TempC: w.TempC}
	if w.Timestamp != nil {
		ts, err := time.Parse(time.RFC3339Nano, *w.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		out.Timestamp = &ts
	}
	*r = out
	return nil
}

// ParseFields decodes a device message. The payload must be one JSON object whose
// heart, spo2 and temp_c members, when present, are numbers or null. Member names
// match exactly; other members are ignored.
func ParseFields(payload []byte) (Fields, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Fields{}, fmt.Errorf("%w: payload is not a JSON object", ErrMalformed)
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &members); err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var f Fields
	for name, dst := range map[string]**float64{
		"heart":  &f.Heart,
		"spo2":   &f.SpO2,
		"temp_c": &f.TempC,
	} {
		raw, ok := members[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return Fields{}, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
		}
	}
	return f, nil
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
