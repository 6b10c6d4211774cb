package klafs

import (
	"fmt"
	"strings"
	"time"
)

// Slot limits.
const (
	MaxSensorValues = 15
	MaxBinaryValues = 15
	MaxScenes       = 128
)

// SensorType is the bus sensorType code (1 temperature, 2 humidity, ...).
type SensorType int

// SensorUsage is the bus sensorUsage code (1 room, 2 outdoor, ...).
type SensorUsage int

// SensorFunction is the bus sensorFunction code of a binary input.
type SensorFunction int

// SensorValue is a numeric appliance reading exposed as a bus sensor.
type SensorValue struct {
	Active         bool
	Name           string
	Kind           SensorType
	Usage          SensorUsage
	Value          float64
	PreviousValue  float64
	LastQueriedAt  time.Time
	LastReportedAt time.Time
}

// BinaryValue is a boolean appliance reading exposed as a bus binary input.
type BinaryValue struct {
	Active         bool
	Name           string
	Function       SensorFunction
	Value          bool
	PreviousValue  bool
	LastQueriedAt  time.Time
	LastReportedAt time.Time
}

// SensorDef declares a sensor slot.
type SensorDef struct {
	Name  string
	Kind  SensorType
	Usage SensorUsage
}

// BinaryDef declares a binary input slot.
type BinaryDef struct {
	Name     string
	Function SensorFunction
}

// Store holds the sensor and binary slots, the scene table and the last
// known appliance state. It has no locking of its own; the Bridge guards it.
type Store struct {
	sensors  []*SensorValue
	binaries []*BinaryValue

	// lower-cased name -> slot index
	sensorIndex map[string]int
	binaryIndex map[string]int

	scenes     map[int]Scene
	sceneOrder []int

	// State mirrors the last successful status poll.
	State DeviceState
}

// NewStore builds the slot tables. Names must be unique across sensors and
// binary inputs, compared case-insensitively.
func NewStore(sensors []SensorDef, binaries []BinaryDef) (*Store, error) {
	if len(sensors) > MaxSensorValues {
		return nil, fmt.Errorf("at most %d sensor values allowed, got %d", MaxSensorValues, len(sensors))
	}
	if len(binaries) > MaxBinaryValues {
		return nil, fmt.Errorf("at most %d binary values allowed, got %d", MaxBinaryValues, len(binaries))
	}

	s := &Store{
		sensorIndex: make(map[string]int, len(sensors)),
		binaryIndex: make(map[string]int, len(binaries)),
		scenes:      make(map[int]Scene),
	}

	taken := make(map[string]bool)
	for _, d := range sensors {
		key := strings.ToLower(d.Name)
		if key == "" || taken[key] {
			return nil, fmt.Errorf("sensor value name %q is empty or not unique", d.Name)
		}
		taken[key] = true
		s.sensorIndex[key] = len(s.sensors)
		s.sensors = append(s.sensors, &SensorValue{Active: true, Name: d.Name, Kind: d.Kind, Usage: d.Usage})
	}
	for _, d := range binaries {
		key := strings.ToLower(d.Name)
		if key == "" || taken[key] {
			return nil, fmt.Errorf("binary value name %q is empty or not unique", d.Name)
		}
		taken[key] = true
		s.binaryIndex[key] = len(s.binaries)
		s.binaries = append(s.binaries, &BinaryValue{Active: true, Name: d.Name, Function: d.Function})
	}

	return s, nil
}

// Sensors returns the sensor slots in slot order.
func (s *Store) Sensors() []*SensorValue { return s.sensors }

// Binaries returns the binary input slots in slot order.
func (s *Store) Binaries() []*BinaryValue { return s.binaries }

// Sensor looks a sensor up by name, ignoring case.
func (s *Store) Sensor(name string) (*SensorValue, bool) {
	i, ok := s.sensorIndex[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return s.sensors[i], true
}

// Binary looks a binary input up by name, ignoring case.
func (s *Store) Binary(name string) (*BinaryValue, bool) {
	i, ok := s.binaryIndex[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return s.binaries[i], true
}

// Scene returns the saved scene with the given bus scene number.
func (s *Store) Scene(id int) (Scene, bool) {
	sc, ok := s.scenes[id]
	return sc, ok
}

// HasScene reports whether a scene with the given number is saved.
func (s *Store) HasScene(id int) bool {
	_, ok := s.scenes[id]
	return ok
}

// Scenes returns all saved scenes in insertion order.
func (s *Store) Scenes() []Scene {
	out := make([]Scene, 0, len(s.sceneOrder))
	for _, id := range s.sceneOrder {
		out = append(out, s.scenes[id])
	}
	return out
}

// PutScene updates the scene with sc.ID or appends it when the table has
// room. The returned slot is the scene's position in insertion order.
func (s *Store) PutScene(sc Scene) (slot int, err error) {
	if _, ok := s.scenes[sc.ID]; ok {
		s.scenes[sc.ID] = sc
		for i, id := range s.sceneOrder {
			if id == sc.ID {
				return i, nil
			}
		}
	}
	if len(s.sceneOrder) >= MaxScenes {
		return -1, ErrSceneTableFull
	}
	s.scenes[sc.ID] = sc
	s.sceneOrder = append(s.sceneOrder, sc.ID)
	return len(s.sceneOrder) - 1, nil
}

// ApplyStatus folds one status response into the store.
//
// Known device-state fields are overwritten. Fields naming a configured
// value are compared against the value currently held; a difference, or a
// value never reported to the bus, marks the whole status as changed.
// Field iteration order does not matter. Unknown names are passed to
// unknown (which may be nil).
//
// Returns:
//   - bool: true if at least one configured value changed or is new
func (s *Store) ApplyStatus(status map[string]any, now time.Time, unknown func(name string)) bool {
	changed := false

	for name, raw := range status {
		knownState := s.State.apply(name, raw)

		if sv, ok := s.Sensor(name); ok {
			v, ok := asFloat(raw)
			if !ok {
				continue
			}
			if sv.LastReportedAt.IsZero() || sv.Value != v {
				changed = true
			}
			sv.PreviousValue = sv.Value
			sv.Value = v
			sv.LastQueriedAt = now
			continue
		}

		if bv, ok := s.Binary(name); ok {
			v, ok := asBool(raw)
			if !ok {
				continue
			}
			if bv.LastReportedAt.IsZero() || bv.Value != v {
				changed = true
			}
			bv.PreviousValue = bv.Value
			bv.Value = v
			bv.LastQueriedAt = now
			continue
		}

		if !knownState && unknown != nil {
			unknown(name)
		}
	}

	return changed
}

// MarkSensorsReported stamps every sensor as pushed at now.
func (s *Store) MarkSensorsReported(now time.Time) {
	for _, sv := range s.sensors {
		sv.LastReportedAt = now
	}
}

// MarkBinariesReported stamps every binary input as pushed at now.
func (s *Store) MarkBinariesReported(now time.Time) {
	for _, bv := range s.binaries {
		bv.LastReportedAt = now
	}
}

// asFloat accepts JSON numbers and booleans.
func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// asBool accepts JSON booleans and numbers (non-zero is true).
func asBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case int:
		return v != 0, true
	default:
		return false, false
	}
}

func asInt(raw any) (int, bool) {
	f, ok := asFloat(raw)
	if !ok {
		return 0, false
	}
	return int(f), true
}
