package sensor

import (
	"strconv"

	"github.com/afero-home/hubspace2mqtt/internal/afero"
)

// Definition describes one diagnostic sensor projected from a device
// function state.
type Definition struct {
	Key              string
	Name             string
	FunctionClass    string
	FunctionInstance string
	Unit             string
	DeviceClass      string
	StateClass       string
	EntityCategory   string
}

var definitions = []Definition{
	{
		Key:           "output_voltage",
		Name:          "Output Voltage",
		FunctionClass: "output-voltage-switch",
		Unit:          "V",
		DeviceClass:   "voltage",
		StateClass:    "measurement",
	},
	{
		Key:           "watts",
		Name:          "Watts",
		FunctionClass: "watts",
		Unit:          "W",
		DeviceClass:   "power",
		StateClass:    "measurement",
	},
	{
		Key:            "wifi_rssi",
		Name:           "Wifi RSSI",
		FunctionClass:  "wifi-rssi",
		Unit:           "dB",
		DeviceClass:    "signal_strength",
		StateClass:     "measurement",
		EntityCategory: "diagnostic",
	},
}

// Source supplies the current device snapshot.
type Source interface {
	Device(id string) (afero.Device, bool)
}

// Reading is one projected sensor value.
type Reading struct {
	Definition Definition
	Value      string
}

// Adapter projects a device's diagnostic function states as sensor
// entities. Like the climate adapter it wraps the resource by identifier
// and reads the controller's current snapshot on every call.
type Adapter struct {
	source Source
	id     string
	name   string
}

func NewAdapter(source Source, resource afero.Device) *Adapter {
	return &Adapter{source: source, id: resource.ID, name: resource.Name}
}

func (a *Adapter) ID() string   { return a.id }
func (a *Adapter) Name() string { return a.name }

// Definitions lists the sensors the wrapped device actually reports.
func (a *Adapter) Definitions() []Definition {
	dev, _ := a.source.Device(a.id)
	var out []Definition
	for _, def := range definitions {
		if _, ok := dev.State(def.FunctionClass, def.FunctionInstance); ok {
			out = append(out, def)
		}
	}
	return out
}

// Readings projects the current value for every reported sensor.
func (a *Adapter) Readings() []Reading {
	dev, _ := a.source.Device(a.id)
	var out []Reading
	for _, def := range definitions {
		state, ok := dev.State(def.FunctionClass, def.FunctionInstance)
		if !ok {
			continue
		}
		out = append(out, Reading{Definition: def, Value: formatValue(state.Value)})
	}
	return out
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}
