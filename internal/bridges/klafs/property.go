package klafs

import (
	"strconv"
	"time"
)

// Property is one node of a bus property tree. A node carries either a
// scalar Value or child Elements.
type Property struct {
	Name     string     `json:"name"`
	Value    any        `json:"value,omitempty"`
	Elements []Property `json:"elements,omitempty"`
}

// Prop builds a scalar property.
func Prop(name string, value any) Property {
	return Property{Name: name, Value: value}
}

// Group builds a property with child elements.
func Group(name string, elems ...Property) Property {
	return Property{Name: name, Elements: elems}
}

// Element returns the child with the given name.
func (p Property) Element(name string) (Property, bool) {
	for _, e := range p.Elements {
		if e.Name == name {
			return e, true
		}
	}
	return Property{}, false
}

// String returns the value when it is a string.
func (p Property) String() (string, bool) {
	s, ok := p.Value.(string)
	return s, ok
}

// Int returns the value as an int. JSON numbers arrive as float64; whole
// values only.
func (p Property) Int() (int, bool) {
	switch v := p.Value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

// indexFilter reads the optional slot index a state query carries as the
// name of its first sub-element. -1 means all slots.
func indexFilter(q Property) int {
	if len(q.Elements) == 0 {
		return -1
	}
	i, err := strconv.Atoi(q.Elements[0].Name)
	if err != nil || i < 0 {
		return -1
	}
	return i
}

func ageSeconds(now, since time.Time) int64 {
	if since.IsZero() {
		return 0
	}
	return int64(now.Sub(since).Seconds())
}

// sensorStates builds the sensorStates subtree for all slots or one index.
func sensorStates(s *Store, idx int, now time.Time) Property {
	out := Property{Name: "sensorStates"}
	for i, sv := range s.Sensors() {
		if !sv.Active || (idx >= 0 && idx != i) {
			continue
		}
		out.Elements = append(out.Elements, Group(strconv.Itoa(i),
			Prop("value", sv.Value),
			Prop("age", ageSeconds(now, sv.LastQueriedAt)),
			Prop("error", 0),
		))
	}
	return out
}

// binaryInputStates builds the binaryInputStates subtree for all slots or one index.
func binaryInputStates(s *Store, idx int, now time.Time) Property {
	out := Property{Name: "binaryInputStates"}
	for i, bv := range s.Binaries() {
		if !bv.Active || (idx >= 0 && idx != i) {
			continue
		}
		out.Elements = append(out.Elements, Group(strconv.Itoa(i),
			Prop("value", bv.Value),
			Prop("age", ageSeconds(now, bv.LastQueriedAt)),
			Prop("error", 0),
		))
	}
	return out
}

// deviceStates is the connection marker sent with every sensor push.
func deviceStates() Property {
	return Group("deviceStates",
		Group("0",
			Prop("name", "SaunaConnected"),
			Prop("value", "1"),
		),
	)
}
