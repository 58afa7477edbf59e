package web

import (
	"encoding/json"

	"github.com/sweeney/rest-monitor/internal/logic"
	"github.com/sweeney/rest-monitor/internal/status"
)

// CyclesJSON is the JSON representation of archived rest cycles.
type CyclesJSON struct {
	VehicleID string             `json:"vehicle_id"`
	Count     int                `json:"count"`
	Cycles    []status.CycleJSON `json:"cycles"`
}

func formatCycles(vehicleID string, cycles []logic.RestCycle) []byte {
	cj := CyclesJSON{
		VehicleID: vehicleID,
		Count:     len(cycles),
		Cycles:    make([]status.CycleJSON, 0, len(cycles)),
	}
	for _, c := range cycles {
		cj.Cycles = append(cj.Cycles, status.NewCycleJSON(c))
	}

	data, _ := json.MarshalIndent(cj, "", "  ")
	return data
}
