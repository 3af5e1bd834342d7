package types

import (
	"github.com/google/uuid"
)

// SensorProfileDefinition describes one sensor model: its identity, how to
// reach it and the table of measurement modes it supports.
type SensorProfileDefinition struct {
	SensorProfile SensorProfileInfo `json:"sensor_profile" yaml:"sensor_profile"`
	Connection    *ConnectionConfig `json:"connection,omitempty" yaml:"connection,omitempty"`
	Modes         []ModeDefinition  `json:"modes" yaml:"modes"`
}

type SensorProfileInfo struct {
	ID          string `json:"id" yaml:"id"`
	Vendor      string `json:"vendor" yaml:"vendor"`
	Model       string `json:"model" yaml:"model"`
	TypeID      int    `json:"type_id" yaml:"type_id"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ConnectionConfig is only used by bus attached sensors.
type ConnectionConfig struct {
	Protocol       string `json:"protocol" yaml:"protocol"`
	Port           int    `json:"port,omitempty" yaml:"port,omitempty"`
	UnitID         int    `json:"unit_id,omitempty" yaml:"unit_id,omitempty"`
	ModeRegister   uint16 `json:"mode_register,omitempty" yaml:"mode_register,omitempty"`
	PollIntervalMs int    `json:"poll_interval_ms,omitempty" yaml:"poll_interval_ms,omitempty"`
	TimeoutMs      int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// ModeDefinition is the profile form of a msensor.Mode. Ranges are given as
// real numbers and stored as float bit patterns when the table is built.
type ModeDefinition struct {
	Name     string     `json:"name" yaml:"name"`
	Decimals uint       `json:"decimals" yaml:"decimals"`
	DataSets int        `json:"data_sets" yaml:"data_sets"`
	Format   DataFormat `json:"format" yaml:"format"`
	RawMin   float32    `json:"raw_min" yaml:"raw_min"`
	RawMax   float32    `json:"raw_max" yaml:"raw_max"`
	PctMin   float32    `json:"pct_min" yaml:"pct_min"`
	PctMax   float32    `json:"pct_max" yaml:"pct_max"`
	SIMin    float32    `json:"si_min" yaml:"si_min"`
	SIMax    float32    `json:"si_max" yaml:"si_max"`
	Units    string     `json:"units,omitempty" yaml:"units,omitempty"`
	Register uint16     `json:"register,omitempty" yaml:"register,omitempty"`
	Writable bool       `json:"writable,omitempty" yaml:"writable,omitempty"`
}

type DataFormat string

const (
	DataFormatS8    DataFormat = "s8"
	DataFormatS16   DataFormat = "s16"
	DataFormatS32   DataFormat = "s32"
	DataFormatFloat DataFormat = "float"
)

type DriverKind string

const (
	DriverSim    DriverKind = "sim"
	DriverModbus DriverKind = "modbus"
)

// Sensor Runtime Info
type SensorInfo struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Profile   string     `json:"profile"`
	Driver    DriverKind `json:"driver"`
	Address   string     `json:"address,omitempty"`
	TypeID    int        `json:"type_id"`
	Mode      string     `json:"mode,omitempty"`
	Connected bool       `json:"connected"`
}
