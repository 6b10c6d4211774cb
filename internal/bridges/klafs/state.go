package klafs

import "fmt"

// Mode is the appliance operating mode as the cloud encodes it.
type Mode int

const (
	ModeSauna    Mode = 1
	ModeSanarium Mode = 2
	ModeInfrared Mode = 3
)

// String returns the lower-case mode name used in configuration.
func (m Mode) String() string {
	switch m {
	case ModeSauna:
		return "sauna"
	case ModeSanarium:
		return "sanarium"
	case ModeInfrared:
		return "infrared"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a configuration mode name. The empty string is sauna.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "sauna":
		return ModeSauna, nil
	case "sanarium":
		return ModeSanarium, nil
	case "infrared", "ir":
		return ModeInfrared, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// Scene is a saved appliance configuration addressed by bus scene number.
type Scene struct {
	ID                  int  `json:"id"`
	IsPoweredOn         bool `json:"is_powered_on"`
	Mode                Mode `json:"mode"`
	SaunaTemperature    int  `json:"sauna_temperature"`
	SanariumTemperature int  `json:"sanarium_temperature"`
	IRTemperature       int  `json:"ir_temperature"`
	HumidityLevel       int  `json:"humidity_level"`
	IRLevel             int  `json:"ir_level"`
	ShowBathingHour     bool `json:"show_bathing_hour"`
	BathingHours        int  `json:"bathing_hours"`
	BathingMinutes      int  `json:"bathing_minutes"`
	SelectedHour        int  `json:"selected_hour"`
	SelectedMinute      int  `json:"selected_minute"`
}

// Temperature returns the target temperature belonging to the scene's mode.
func (s Scene) Temperature() int {
	switch s.Mode {
	case ModeSanarium:
		return s.SanariumTemperature
	case ModeInfrared:
		return s.IRTemperature
	default:
		return s.SaunaTemperature
	}
}

// DeviceState is the last known appliance state as reported by the cloud.
type DeviceState struct {
	IsPoweredOn                 bool    `json:"isPoweredOn"`
	IsConnected                 bool    `json:"isConnected"`
	IsReadyForUse               bool    `json:"isReadyForUse"`
	SaunaSelected               bool    `json:"saunaSelected"`
	SanariumSelected            bool    `json:"sanariumSelected"`
	IRSelected                  bool    `json:"irSelected"`
	SelectedSaunaTemperature    int     `json:"selectedSaunaTemperature"`
	SelectedSanariumTemperature int     `json:"selectedSanariumTemperature"`
	SelectedIRTemperature       int     `json:"selectedIrTemperature"`
	SelectedHumLevel            int     `json:"selectedHumLevel"`
	SelectedIRLevel             int     `json:"selectedIrLevel"`
	ShowBathingHour             bool    `json:"showBathingHour"`
	SelectedHour                int     `json:"selectedHour"`
	SelectedMinute              int     `json:"selectedMinute"`
	BathingHours                int     `json:"bathingHours"`
	BathingMinutes              int     `json:"bathingMinutes"`
	CurrentTemperature          float64 `json:"currentTemperature"`
	CurrentHumidity             float64 `json:"currentHumidity"`
}

// Mode derives the selected mode from the selection flags.
func (d DeviceState) Mode() Mode {
	switch {
	case d.SanariumSelected:
		return ModeSanarium
	case d.IRSelected:
		return ModeInfrared
	default:
		return ModeSauna
	}
}

// Snapshot converts the state into a scene with the given number.
func (d DeviceState) Snapshot(id int) Scene {
	return Scene{
		ID:                  id,
		IsPoweredOn:         d.IsPoweredOn,
		Mode:                d.Mode(),
		SaunaTemperature:    d.SelectedSaunaTemperature,
		SanariumTemperature: d.SelectedSanariumTemperature,
		IRTemperature:       d.SelectedIRTemperature,
		HumidityLevel:       d.SelectedHumLevel,
		IRLevel:             d.SelectedIRLevel,
		ShowBathingHour:     d.ShowBathingHour,
		BathingHours:        d.BathingHours,
		BathingMinutes:      d.BathingMinutes,
		SelectedHour:        d.SelectedHour,
		SelectedMinute:      d.SelectedMinute,
	}
}

// apply stores one status field. Field names are matched exactly, the way
// the cloud spells them.
func (d *DeviceState) apply(name string, raw any) bool {
	var b *bool
	var i *int
	var f *float64

	switch name {
	case "isPoweredOn":
		b = &d.IsPoweredOn
	case "isConnected":
		b = &d.IsConnected
	case "isReadyForUse":
		b = &d.IsReadyForUse
	case "saunaSelected":
		b = &d.SaunaSelected
	case "sanariumSelected":
		b = &d.SanariumSelected
	case "irSelected":
		b = &d.IRSelected
	case "showBathingHour":
		b = &d.ShowBathingHour
	case "selectedSaunaTemperature":
		i = &d.SelectedSaunaTemperature
	case "selectedSanariumTemperature":
		i = &d.SelectedSanariumTemperature
	case "selectedIrTemperature":
		i = &d.SelectedIRTemperature
	case "selectedHumLevel":
		i = &d.SelectedHumLevel
	case "selectedIrLevel":
		i = &d.SelectedIRLevel
	case "selectedHour":
		i = &d.SelectedHour
	case "selectedMinute":
		i = &d.SelectedMinute
	case "bathingHours":
		i = &d.BathingHours
	case "bathingMinutes":
		i = &d.BathingMinutes
	case "currentTemperature":
		f = &d.CurrentTemperature
	case "currentHumidity":
		f = &d.CurrentHumidity
	default:
		return false
	}

	switch {
	case b != nil:
		if v, ok := asBool(raw); ok {
			*b = v
		}
	case i != nil:
		if v, ok := asInt(raw); ok {
			*i = v
		}
	case f != nil:
		if v, ok := asFloat(raw); ok {
			*f = v
		}
	}
	return true
}
