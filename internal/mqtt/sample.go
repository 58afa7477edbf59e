package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/rest-monitor/internal/logic"
)

// SamplePayload is the wire form of a telemetry sample.
//
//	{"timestamp":"2026-01-01T22:00:00Z","speed":0,"voltage":2,
//	 "soc":81,"est_range":212.4,"latitude":51.5,"longitude":-0.12}
type SamplePayload struct {
	Timestamp string  `json:"timestamp"`
	Speed     float64 `json:"speed"`
	Voltage   float64 `json:"voltage"`
	SOC       float64 `json:"soc"`
	EstRange  float64 `json:"est_range"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ParseSample decodes a telemetry payload. The timestamp is required.
func ParseSample(data []byte) (logic.Sample, error) {
	var p SamplePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return logic.Sample{}, fmt.Errorf("decode sample: %w", err)
	}
	if p.Timestamp == "" {
		return logic.Sample{}, errors.New("decode sample: missing timestamp")
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return logic.Sample{}, fmt.Errorf("decode sample: timestamp: %w", err)
	}
	return logic.Sample{
		Timestamp: ts,
		Speed:     p.Speed,
		Voltage:   p.Voltage,
		SOC:       p.SOC,
		EstRange:  p.EstRange,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
	}, nil
}
