package afero

// Function-state classes used by Hubspace climate and diagnostic devices.
const (
	ClassTemperature = "temperature"
	ClassMode        = "mode"
	ClassHVACAction  = "hvac-action"
	ClassFanSpeed    = "fan-speed"
	ClassError       = "error"
	ClassSleep       = "sleep"
	ClassTimer       = "timer"
)

// Temperature function instances.
const (
	InstanceCurrentTemp       = "current-temp"
	InstanceTargetTemp        = "target"
	InstanceAutoHeatingTarget = "auto-heating-target"
	InstanceAutoCoolingTarget = "auto-cooling-target"
)

// FunctionState is one named key/value attribute reported on a resource,
// outside the primary temperature and mode fields. The value type depends on
// the function class (string for modes, number for temperatures).
type FunctionState struct {
	FunctionClass    string `json:"functionClass"`
	FunctionInstance string `json:"functionInstance,omitempty"`
	Value            any    `json:"value"`
	LastUpdateTime   int64  `json:"lastUpdateTime,omitempty"`
}

// Device is the raw vendor representation of any Hubspace metadevice.
type Device struct {
	ID           string
	Name         string
	DeviceClass  string
	Model        string
	Manufacturer string
	States       []FunctionState
}

// State returns the first function state matching class (and instance, when
// instance is non-empty).
func (d *Device) State(class, instance string) (FunctionState, bool) {
	for _, s := range d.States {
		if s.FunctionClass != class {
			continue
		}
		if instance != "" && s.FunctionInstance != instance {
			continue
		}
		return s, true
	}
	return FunctionState{}, false
}

// StringValue returns the state value for class/instance as a string, or
// fallback when the state is absent or not a string.
func (d *Device) StringValue(class, instance, fallback string) string {
	state, ok := d.State(class, instance)
	if !ok {
		return fallback
	}
	if value, ok := state.Value.(string); ok {
		return value
	}
	return fallback
}

// NumberValue returns the state value for class/instance as a float64.
func (d *Device) NumberValue(class, instance string) (float64, bool) {
	state, ok := d.State(class, instance)
	if !ok {
		return 0, false
	}
	return numeric(state.Value)
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// TemperatureRange is the writable bounds advertised for a temperature
// function in the device description.
type TemperatureRange struct {
	Min  float64
	Max  float64
	Step float64
}

// Thermostat is the vendor-side snapshot of a climate device. It is built by
// the controller from the metadevice payload and replaced wholesale on each
// update; holders must treat it as read-only.
type Thermostat struct {
	ID   string
	Name string

	CurrentTemperature *float64
	// TargetTemperature is the single-point setpoint; nil when the device
	// only exposes an auto heating/cooling range.
	TargetTemperature *float64
	// TargetTemperatureRange holds the auto heating (index 0) and auto
	// cooling (index 1) bounds. Empty unless SupportsTemperatureRange.
	TargetTemperatureRange []float64

	TargetTemperatureMin  float64
	TargetTemperatureMax  float64
	TargetTemperatureStep float64

	SupportsFanMode          bool
	SupportsTemperatureRange bool

	// HVACMode, HVACAction and FanMode carry raw vendor codes. Translation
	// into platform values happens in the climate adapter.
	HVACMode   string
	HVACAction string
	FanMode    string

	States []FunctionState
}

// State looks up a function state on the thermostat's raw state list.
func (t *Thermostat) State(class, instance string) (FunctionState, bool) {
	d := Device{States: t.States}
	return d.State(class, instance)
}

// StringValue mirrors Device.StringValue for thermostat snapshots.
func (t *Thermostat) StringValue(class, instance, fallback string) string {
	d := Device{States: t.States}
	return d.StringValue(class, instance, fallback)
}

// NumberValue mirrors Device.NumberValue for thermostat snapshots.
func (t *Thermostat) NumberValue(class, instance string) (float64, bool) {
	d := Device{States: t.States}
	return d.NumberValue(class, instance)
}

// ThermostatFromDevice projects a raw metadevice into a Thermostat snapshot.
// Capability flags derive from which function states the device reports.
func ThermostatFromDevice(dev Device, target TemperatureRange) Thermostat {
	t := Thermostat{
		ID:                    dev.ID,
		Name:                  dev.Name,
		TargetTemperatureMin:  target.Min,
		TargetTemperatureMax:  target.Max,
		TargetTemperatureStep: target.Step,
		States:                dev.States,
	}

	if v, ok := dev.NumberValue(ClassTemperature, InstanceCurrentTemp); ok {
		t.CurrentTemperature = &v
	}
	if v, ok := dev.NumberValue(ClassTemperature, InstanceTargetTemp); ok {
		t.TargetTemperature = &v
	}

	low, hasLow := dev.NumberValue(ClassTemperature, InstanceAutoHeatingTarget)
	high, hasHigh := dev.NumberValue(ClassTemperature, InstanceAutoCoolingTarget)
	if hasLow && hasHigh {
		t.SupportsTemperatureRange = true
		t.TargetTemperatureRange = []float64{low, high}
	}

	if state, ok := dev.State(ClassFanSpeed, ""); ok {
		t.SupportsFanMode = true
		if mode, ok := state.Value.(string); ok {
			t.FanMode = mode
		}
	}

	t.HVACMode = dev.StringValue(ClassMode, "", "")
	t.HVACAction = dev.StringValue(ClassHVACAction, "", "")

	return t
}
