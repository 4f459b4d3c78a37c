package climate

import (
	"context"
	"errors"
	"fmt"

	"github.com/afero-home/hubspace2mqtt/internal/afero"
)

// ErrUnsupportedMode reports a command value with no vendor translation.
// Callers can distinguish "did nothing" from "succeeded".
var ErrUnsupportedMode = errors.New("unsupported mode")

// Controller is the vendor-side surface the adapter depends on: the current
// resource snapshot and a single set-state call.
type Controller interface {
	Thermostat(id string) (afero.Thermostat, bool)
	SetState(ctx context.Context, deviceID string, update afero.StateUpdate) error
}

// Adapter translates one Hubspace thermostat resource into the platform's
// climate-entity contract. It wraps the resource by identifier and holds no
// mutable state of its own; reads project the controller's current snapshot
// and commands issue exactly one set-state request each. State converges via
// the controller's own event channel, never here.
type Adapter struct {
	ctrl Controller
	id   string
	name string
}

func NewAdapter(ctrl Controller, resource afero.Thermostat) *Adapter {
	return &Adapter{ctrl: ctrl, id: resource.ID, name: resource.Name}
}

func (a *Adapter) ID() string   { return a.id }
func (a *Adapter) Name() string { return a.name }

func (a *Adapter) resource() afero.Thermostat {
	t, _ := a.ctrl.Thermostat(a.id)
	return t
}

// SupportedFeatures recomputes the capability set on each read so a vendor
// capability change is picked up on the next snapshot.
func (a *Adapter) SupportedFeatures() Feature {
	r := a.resource()
	var features Feature
	if r.TargetTemperature != nil {
		features |= FeatureTargetTemperature
	}
	if r.SupportsFanMode {
		features |= FeatureFanMode
	}
	if r.SupportsTemperatureRange {
		features |= FeatureTargetTemperatureRange
	}
	return features
}

func (a *Adapter) CurrentTemperature() *float64 { return a.resource().CurrentTemperature }
func (a *Adapter) TargetTemperature() *float64  { return a.resource().TargetTemperature }
func (a *Adapter) MinTemp() float64             { return a.resource().TargetTemperatureMin }
func (a *Adapter) MaxTemp() float64             { return a.resource().TargetTemperatureMax }
func (a *Adapter) TargetTemperatureStep() float64 {
	return a.resource().TargetTemperatureStep
}

// TargetTemperatureLow and TargetTemperatureHigh index the auto range.
// Callers must gate on FeatureTargetTemperatureRange first; without the
// capability the range is empty and the access panics, matching the
// platform's property contract.
func (a *Adapter) TargetTemperatureLow() float64  { return a.resource().TargetTemperatureRange[0] }
func (a *Adapter) TargetTemperatureHigh() float64 { return a.resource().TargetTemperatureRange[1] }

func (a *Adapter) TemperatureUnit() string { return TemperatureUnitCelsius }

// FanMode projects the raw fan-speed code; unknown codes fall back to the
// off label.
func (a *Adapter) FanMode() string {
	if label, ok := fanLabelForCode(a.resource().FanMode); ok {
		return label
	}
	return FanOff
}

// FanModes lists every display label in table order, regardless of the
// current state.
func (a *Adapter) FanModes() []string {
	labels := make([]string, 0, len(fanSpeedTable))
	for _, e := range fanSpeedTable {
		labels = append(labels, e.label)
	}
	return labels
}

// HVACMode projects the raw vendor mode; unknown codes fall back to off.
func (a *Adapter) HVACMode() HVACMode {
	if mode, ok := hvacModeForCode(a.resource().HVACMode); ok {
		return mode
	}
	return HVACModeOff
}

// HVACModes lists every platform mode in table order.
func (a *Adapter) HVACModes() []HVACMode {
	modes := make([]HVACMode, 0, len(hvacModeTable))
	for _, e := range hvacModeTable {
		modes = append(modes, e.mode)
	}
	return modes
}

// HVACAction resolves the running action in three tiers: a direct mapping
// for cooling/heating/off, the fan action when the vendor mode is fan, and
// otherwise the raw code passed through with known=false. The passthrough
// keeps vendor codes the abstraction does not recognize observable instead
// of masking them; whether any occur in practice is an open question
// inherited from the vendor API.
func (a *Adapter) HVACAction() (HVACAction, bool) {
	r := a.resource()
	switch r.HVACAction {
	case "cooling":
		return HVACActionCooling, true
	case "heating":
		return HVACActionHeating, true
	case "off":
		return HVACActionOff, true
	}
	if r.HVACMode == "fan" {
		return HVACActionFan, true
	}
	return HVACAction(r.HVACAction), false
}

// Attributes is the extra state published alongside the climate entity.
type Attributes struct {
	ErrorStates []string `json:"error_states"`
	SleepMode   string   `json:"sleep_mode"`
	Timer       int      `json:"timer"`
}

// ExtraStateAttributes derives error, sleep and timer attributes from the
// resource's function states.
func (a *Adapter) ExtraStateAttributes() Attributes {
	r := a.resource()
	attrs := Attributes{
		ErrorStates: []string{},
		SleepMode:   r.StringValue(afero.ClassSleep, "", "off"),
	}
	if timer, ok := r.NumberValue(afero.ClassTimer, ""); ok {
		attrs.Timer = int(timer)
	}
	for _, state := range r.States {
		if state.FunctionClass != afero.ClassError || state.Value != "alerting" {
			continue
		}
		message, ok := errorMessages[state.FunctionInstance]
		if !ok {
			message = state.FunctionInstance
		}
		attrs.ErrorStates = append(attrs.ErrorStates, message)
	}
	return attrs
}

// SetHVACMode reverse-looks-up the platform mode and issues one set-state
// request. Modes with no vendor code return ErrUnsupportedMode.
func (a *Adapter) SetHVACMode(ctx context.Context, mode HVACMode) error {
	code, ok := hvacCodeForMode(mode)
	if !ok {
		return fmt.Errorf("%w: hvac mode %q", ErrUnsupportedMode, mode)
	}
	return a.ctrl.SetState(ctx, a.id, afero.StateUpdate{HVACMode: &code})
}

// SetFanMode reverse-looks-up the fan display label and issues one set-state
// request.
func (a *Adapter) SetFanMode(ctx context.Context, label string) error {
	code, ok := fanCodeForLabel(label)
	if !ok {
		return fmt.Errorf("%w: fan mode %q", ErrUnsupportedMode, label)
	}
	return a.ctrl.SetState(ctx, a.id, afero.StateUpdate{FanMode: &code})
}

// TemperatureRequest carries the optional fields of a set-temperature
// command. Nil fields are omitted from the request.
type TemperatureRequest struct {
	Temperature *float64
	TargetHigh  *float64
	TargetLow   *float64
	Mode        *HVACMode
}

// SetTemperature issues a single request carrying up to four fields. The
// mode travels through the command table, not the display table; a mode
// with no command translation is simply omitted, matching the vendor API's
// treatment of absent fields.
func (a *Adapter) SetTemperature(ctx context.Context, req TemperatureRequest) error {
	update := afero.StateUpdate{
		TargetTemperature:            req.Temperature,
		TargetTemperatureAutoCooling: req.TargetHigh,
		TargetTemperatureAutoHeating: req.TargetLow,
	}
	if req.Mode != nil {
		if code, ok := commandModeTable[*req.Mode]; ok {
			update.HVACMode = &code
		}
	}
	return a.ctrl.SetState(ctx, a.id, update)
}

// SetSleepMode passes the value straight through as a single named field.
func (a *Adapter) SetSleepMode(ctx context.Context, value string) error {
	return a.ctrl.SetState(ctx, a.id, afero.StateUpdate{SleepMode: &value})
}

// SetTimer passes the value straight through as a single named field.
func (a *Adapter) SetTimer(ctx context.Context, value int) error {
	return a.ctrl.SetState(ctx, a.id, afero.StateUpdate{Timer: &value})
}
