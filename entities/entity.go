// Package entities derives the Home Assistant entity set from a snapshot.
package entities

import (
	"strconv"
	"strings"
)

// Kind is the Home Assistant platform of an entity.
type Kind string

const (
	KindSensor       Kind = "sensor"
	KindBinarySensor Kind = "binary_sensor"
	KindSwitch       Kind = "switch"
)

// Entity states.
const (
	StateOn          = "on"
	StateOff         = "off"
	StateUnavailable = "unavailable"
)

// Entity is a host-neutral description of one exposed entity.
type Entity struct {
	Kind        Kind           `json:"kind"`
	UniqueID    string         `json:"unique_id"`
	Name        string         `json:"name"`
	State       string         `json:"state"`
	Icon        string         `json:"icon,omitempty"`
	Unit        string         `json:"unit_of_measurement,omitempty"`
	DeviceClass string         `json:"device_class,omitempty"`
	StateClass  string         `json:"state_class,omitempty"`
	Available   bool           `json:"available"`
	TaskID      string         `json:"task_id,omitempty"`
	Attributes  map[string]any `json:"attributes"`
}

// EntityID is the Home Assistant entity id, e.g. sensor.choreshore_total_tasks.
func (e Entity) EntityID() string {
	return string(e.Kind) + "." + e.UniqueID
}

// HostAttributes returns Attributes merged with the presentation fields Home
// Assistant reads from the state attributes.
func (e Entity) HostAttributes() map[string]any {
	out := make(map[string]any, len(e.Attributes)+5)
	for k, v := range e.Attributes {
		out[k] = v
	}
	out["friendly_name"] = e.Name
	if e.Icon != "" {
		out["icon"] = e.Icon
	}
	if e.Unit != "" {
		out["unit_of_measurement"] = e.Unit
	}
	if e.DeviceClass != "" {
		out["device_class"] = e.DeviceClass
	}
	if e.StateClass != "" {
		out["state_class"] = e.StateClass
	}
	return out
}

// ParseKind accepts a platform name as used in entity ids.
func ParseKind(raw string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindSensor, KindBinarySensor, KindSwitch:
		return k, true
	}
	return "", false
}

func onOff(on bool) string {
	if on {
		return StateOn
	}
	return StateOff
}

func intState(v int) string {
	return strconv.Itoa(v)
}

func floatState(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
