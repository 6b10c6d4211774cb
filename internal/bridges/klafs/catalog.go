package klafs

import "strings"

// DynamicPrefix is the prefix the bus puts in front of dynamic action ids.
const DynamicPrefix = "dynamic."

// Action is a named appliance program exposed as a bus dynamic action.
type Action struct {
	ID    string
	Title string

	// Mode is zero for plain power and mode-select actions.
	Mode        Mode
	Temperature int
	Humidity    int

	PowerOn  bool
	PowerOff bool
}

// preset reports whether the action is a mode + temperature program.
func (a Action) preset() bool {
	return a.Temperature > 0
}

// Actions is the fixed catalog, in bus presentation order.
var Actions = []Action{
	{ID: "ActTurnOn", Title: "01-Starten", PowerOn: true},
	{ID: "ActTurnOff", Title: "02-Beenden", PowerOff: true},
	{ID: "ActModeSauna", Title: "03-Sauna wählen", Mode: ModeSauna},
	{ID: "ActModeSanarium", Title: "04-Sanarium wählen", Mode: ModeSanarium},
	{ID: "ActModeIR", Title: "05-Infrarot wählen", Mode: ModeInfrared},
	{ID: "ActSommerSaunaClassic", Title: "06-Sommer Sauna Classic", Mode: ModeSauna, Temperature: 75, PowerOn: true},
	{ID: "ActChilloutSauna", Title: "07-Chillout Sauna", Mode: ModeSauna, Temperature: 80},
	{ID: "ActAfterFitnessSauna", Title: "08-After-Fitness Sauna", Mode: ModeSauna, Temperature: 85, PowerOn: true},
	{ID: "ActClassicSauna", Title: "09-Classic Sauna", Mode: ModeSauna, Temperature: 90, PowerOn: true},
	{ID: "ActSoftSauna", Title: "10-Soft Sauna", Mode: ModeSauna, Temperature: 65, PowerOn: true},
	{ID: "ActSummerSaunaSoft", Title: "11-Sommer Sauna Soft", Mode: ModeSauna, Temperature: 70, PowerOn: true},
	{ID: "ActRelaxSanarium", Title: "12-Relax Sanarium", Mode: ModeSanarium, Temperature: 50, Humidity: 4, PowerOn: true},
	{ID: "ActBeautySanarium", Title: "13-Beauty Sanarium", Mode: ModeSanarium, Temperature: 55, Humidity: 8, PowerOn: true},
	{ID: "ActFamilySanarium", Title: "14-Family Sanarium", Mode: ModeSanarium, Temperature: 50, Humidity: 8, PowerOn: true},
	{ID: "ActImmunPowerSanarium", Title: "15-Immun Power Sanarium", Mode: ModeSanarium, Temperature: 50, Humidity: 6, PowerOn: true},
	{ID: "ActVitalSanarium", Title: "16-Vital Sanarium", Mode: ModeSanarium, Temperature: 45, Humidity: 6, PowerOn: true},
	{ID: "ActTropenSanarium", Title: "17-Tropen Sanarium", Mode: ModeSanarium, Temperature: 60, Humidity: 10, PowerOn: true},
	{ID: "ActSubtropenSanarium", Title: "18-Subtropen Sanarium", Mode: ModeSanarium, Temperature: 60, Humidity: 8, PowerOn: true},
	{ID: "ActFitnessSanarium", Title: "19-Fitness Sanarium", Mode: ModeSanarium, Temperature: 55, Humidity: 10, PowerOn: true},
}

var actionIndex = func() map[string]int {
	m := make(map[string]int, len(Actions))
	for i, a := range Actions {
		m[strings.ToLower(a.ID)] = i
	}
	return m
}()

// LookupAction finds a catalog entry. The id is matched case-insensitively
// with or without the "dynamic." prefix.
func LookupAction(id string) (Action, bool) {
	key := strings.ToLower(strings.TrimSpace(id))
	key = strings.TrimPrefix(key, DynamicPrefix)
	i, ok := actionIndex[key]
	if !ok {
		return Action{}, false
	}
	return Actions[i], true
}
