package models

import (
	"fmt"
	"strings"
)

// Label is the risk tier assigned to a reading. Values are ordered.
type Label int

const (
	LabelGood Label = iota
	LabelAlert
	LabelDanger
)

// StatusNone is reported before any reading has been classified
const StatusNone = "N/A"

var labelNames = [...]string{"GOOD", "ALERT", "DANGER"}

func (l Label) String() string {
	if l < LabelGood || l > LabelDanger {
		return "UNKNOWN"
	}
	return labelNames[l]
}

// ParseLabel converts GOOD/ALERT/DANGER (case-insensitive) to a Label
func ParseLabel(s string) (Label, error) {
	for i, name := range labelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Label(i), nil
		}
	}
	return LabelGood, fmt.Errorf("unknown label %q", s)
}

// MaxLabel returns the more severe of two labels
func MaxLabel(a, b Label) Label {
	if b > a {
		return b
	}
	return a
}

// MarshalText implements encoding.TextMarshaler
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *Label) UnmarshalText(text []byte) error {
	parsed, err := ParseLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Feature positions inside a FeatureVector. The order must match the
// order the scaler and model were fit with.
const (
	FeatTemp = iota
	FeatHum
	FeatGas
	FeatDeltaTemp
	FeatDeltaHum
	FeatDeltaGas
	FeatRollingTemp
	FeatRollingHum
	FeatRollingGas
	FeatHeartRate
	FeatTrendTemp
	FeatTrendGas

	NumFeatures
)

// FeatureNames lists the canonical feature order
var FeatureNames = [NumFeatures]string{
	"temp", "hum", "gas",
	"d_temp", "d_hum", "d_gas",
	"r_temp", "r_hum", "r_gas",
	"heartrate",
	"trend_temp", "trend_gas",
}

// FeatureVector is the classifier input for one reading
type FeatureVector [NumFeatures]float64

// ClassifiedRecord is one accepted, classified reading. It is the unit of persistence.
type ClassifiedRecord struct {
	Timestamp string  `json:"ts"`
	DeviceID  string  `json:"device"`
	Temp      float64 `json:"temp"`
	Hum       float64 `json:"hum"`
	Gas       float64 `json:"gas"`
	HeartRate float64 `json:"heartrate"`
	Label     Label   `json:"ai"`
}

// StatusEvent is published on the status topic when the global label changes
type StatusEvent struct {
	Status string `json:"status"`
}

// SchedulePayload is published on the scheduler topic
type SchedulePayload struct {
	Schedules []string `json:"schedules"`
}
