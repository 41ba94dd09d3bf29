package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultDeviceID is used when a node publishes without a device field
const DefaultDeviceID = "Smart Home Health Ecosystem"

// TimestampLayout is the fixed-width layout readings are ordered by.
// Ordering compares timestamps as strings, so every producer must emit
// zero-padded values in exactly this layout.
const TimestampLayout = "2006-01-02 15:04:05"

// Heart rate outside this range is treated as unmeasured
const (
	MinValidHeartRate = 30.0
	MaxValidHeartRate = 220.0
)

// ErrInvalidPayload is returned when an inbound telemetry message cannot be decoded
var ErrInvalidPayload = errors.New("invalid telemetry payload")

// Number is a JSON value that accepts a number, a numeric string or null
type Number struct {
	Value float64
	Set   bool // present and not null
	Valid bool // parsed as a number
}

// UnmarshalJSON implements json.Unmarshaler
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}

	n.Set = true
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		n.Valid = false
		return nil
	}
	n.Value = v
	n.Valid = true
	return nil
}

// Float returns the parsed value or 0 when absent
func (n Number) Float() float64 {
	if !n.Set || !n.Valid {
		return 0
	}
	return n.Value
}

// TelemetryPayload is the raw JSON published on the telemetry topic
type TelemetryPayload struct {
	Device    *string `json:"device"`
	Timestamp *string `json:"ts"`
	Temp      Number  `json:"temp"`
	Hum       Number  `json:"hum"`
	Gas       Number  `json:"gas"`
	HeartRate Number  `json:"heartrate"`
}

// Reading is a decoded, normalized telemetry sample
type Reading struct {
	DeviceID  string
	Timestamp string
	Temp      float64
	Hum       float64
	Gas       float64
	HeartRate float64 // 0 when unmeasured
}

// DecodeReading parses a telemetry payload and applies field defaults.
// now supplies the wall clock for readings published without a timestamp.
func DecodeReading(payload []byte, now func() time.Time) (*Reading, error) {
	var p TelemetryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	channels := []struct {
		name string
		n    Number
	}{{"temp", p.Temp}, {"hum", p.Hum}, {"gas", p.Gas}}
	for _, c := range channels {
		if c.n.Set && !c.n.Valid {
			return nil, fmt.Errorf("%w: field %s is not numeric", ErrInvalidPayload, c.name)
		}
	}

	device := DefaultDeviceID
	if p.Device != nil && *p.Device != "" {
		device = *p.Device
	}

	ts := ""
	if p.Timestamp != nil {
		ts = *p.Timestamp
	}
	if ts == "" {
		ts = now().UTC().Format(TimestampLayout)
	}

	return &Reading{
		DeviceID:  device,
		Timestamp: ts,
		Temp:      p.Temp.Float(),
		Hum:       p.Hum.Float(),
		Gas:       p.Gas.Float(),
		HeartRate: NormalizeHeartRate(p.HeartRate.Float()),
	}, nil
}

// NormalizeHeartRate coerces out-of-range heart rate to 0 (unmeasured)
func NormalizeHeartRate(hr float64) float64 {
	if math.IsNaN(hr) || hr > MaxValidHeartRate || hr < MinValidHeartRate {
		return 0
	}
	return hr
}

// InboundMessage is a raw telemetry message handed from the transport to ingestion
type InboundMessage struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}
