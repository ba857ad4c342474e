package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// EquipmentRecord is one equipment unit: a device connection plus the
// points synchronized through it. One JSON file per equipment unit.
type EquipmentRecord struct {
	DeviceAddress string        `json:"device_address"`
	EquipmentName string        `json:"equipment_name"`
	Points        []PointRecord `json:"points"`
}

// PointRecord configures a single synchronized point.
type PointRecord struct {
	Name                    string   `json:"name"`
	ObjectType              string   `json:"object_type"`
	SimulatorKey            string   `json:"simulator_key"`
	SimulatorOverrideKey    string   `json:"simulator_override_key,omitempty"`
	Unit                    string   `json:"unit,omitempty"`
	AlternateUnit           string   `json:"alternate_unit,omitempty"`
	ConvertToAlternateUnits bool     `json:"convert_to_alternate_units,omitempty"`
	Threshold               *float64 `json:"threshold,omitempty"`
	Priority                *int     `json:"priority,omitempty"`
	Activate                bool     `json:"activate,omitempty"`
}

// LoadEquipmentRecord reads and validates one equipment configuration file.
func LoadEquipmentRecord(path string) (*EquipmentRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var rec EquipmentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if rec.DeviceAddress == "" {
		return nil, fmt.Errorf("%s: missing device_address", path)
	}
	if rec.EquipmentName == "" {
		rec.EquipmentName = "UnnamedEquipment"
	}
	return &rec, nil
}
