package climate

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/afero-home/hubspace2mqtt/internal/afero"
)

type setStateCall struct {
	deviceID string
	update   afero.StateUpdate
}

type fakeController struct {
	resource afero.Thermostat
	calls    []setStateCall
	err      error
}

func (f *fakeController) Thermostat(id string) (afero.Thermostat, bool) {
	if id != f.resource.ID {
		return afero.Thermostat{}, false
	}
	return f.resource, true
}

func (f *fakeController) SetState(_ context.Context, deviceID string, update afero.StateUpdate) error {
	f.calls = append(f.calls, setStateCall{deviceID: deviceID, update: update})
	return f.err
}

func acResource() afero.Thermostat {
	current := 22.5
	target := 21.0
	return afero.Thermostat{
		ID:                       "ac-1",
		Name:                     "Office AC",
		CurrentTemperature:       &current,
		TargetTemperature:        &target,
		TargetTemperatureRange:   []float64{18, 26},
		TargetTemperatureMin:     16,
		TargetTemperatureMax:     30,
		TargetTemperatureStep:    0.5,
		SupportsFanMode:          true,
		SupportsTemperatureRange: true,
		HVACMode:                 "cool",
		HVACAction:               "cooling",
		FanMode:                  "fan-speed-auto",
	}
}

func newTestAdapter(resource afero.Thermostat) (*Adapter, *fakeController) {
	ctrl := &fakeController{resource: resource}
	return NewAdapter(ctrl, resource), ctrl
}

func TestHVACModeProjection(t *testing.T) {
	cases := []struct {
		code string
		want HVACMode
	}{
		{"cool", HVACModeCool},
		{"auto-cool", HVACModeHeatCool},
		{"fan", HVACModeFanOnly},
		{"off", HVACModeOff},
		{"dehumidify", HVACModeOff},
		{"", HVACModeOff},
	}
	for _, tc := range cases {
		resource := acResource()
		resource.HVACMode = tc.code
		adapter, _ := newTestAdapter(resource)
		if got := adapter.HVACMode(); got != tc.want {
			t.Errorf("HVACMode for code %q = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestHVACModesListsTableOrder(t *testing.T) {
	adapter, _ := newTestAdapter(acResource())
	want := []HVACMode{HVACModeCool, HVACModeHeatCool, HVACModeFanOnly, HVACModeOff}
	if got := adapter.HVACModes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("HVACModes = %v, want %v", got, want)
	}
}

func TestFanModeProjection(t *testing.T) {
	resource := acResource()
	resource.FanMode = "fan-speed-9-999"
	adapter, _ := newTestAdapter(resource)
	if got := adapter.FanMode(); got != FanOff {
		t.Errorf("FanMode for unknown code = %q, want %q", got, FanOff)
	}

	want := []string{FanOn, "low", "high"}
	if got := adapter.FanModes(); !reflect.DeepEqual(got, want) {
		t.Errorf("FanModes = %v, want %v", got, want)
	}

	resource.FanMode = "fan-speed-2-050"
	adapter, _ = newTestAdapter(resource)
	if got := adapter.FanMode(); got != "low" {
		t.Errorf("FanMode = %q, want low", got)
	}
}

func TestHVACAction(t *testing.T) {
	cases := []struct {
		action    string
		mode      string
		want      HVACAction
		wantKnown bool
	}{
		{"cooling", "cool", HVACActionCooling, true},
		{"heating", "heat", HVACActionHeating, true},
		{"off", "off", HVACActionOff, true},
		{"", "fan", HVACActionFan, true},
		{"defrosting", "fan", HVACActionFan, true},
		{"defrosting", "cool", HVACAction("defrosting"), false},
		{"", "cool", HVACAction(""), false},
	}
	for _, tc := range cases {
		resource := acResource()
		resource.HVACAction = tc.action
		resource.HVACMode = tc.mode
		adapter, _ := newTestAdapter(resource)
		got, known := adapter.HVACAction()
		if got != tc.want || known != tc.wantKnown {
			t.Errorf("HVACAction(action=%q mode=%q) = (%q, %v), want (%q, %v)",
				tc.action, tc.mode, got, known, tc.want, tc.wantKnown)
		}
	}
}

func TestSupportedFeatures(t *testing.T) {
	adapter, ctrl := newTestAdapter(acResource())
	features := adapter.SupportedFeatures()
	for _, flag := range []Feature{FeatureTargetTemperature, FeatureFanMode, FeatureTargetTemperatureRange} {
		if !features.Has(flag) {
			t.Fatalf("expected feature %b in %b", flag, features)
		}
	}

	// Capability flags are re-read from the snapshot, not frozen at
	// construction.
	ctrl.resource.SupportsFanMode = false
	if adapter.SupportedFeatures().Has(FeatureFanMode) {
		t.Fatal("fan feature still set after capability dropped")
	}
}

func TestExtraStateAttributes(t *testing.T) {
	resource := acResource()
	resource.States = []afero.FunctionState{
		{FunctionClass: "error", FunctionInstance: "water-tray-full", Value: "alerting"},
		{FunctionClass: "error", FunctionInstance: "compressor-overload", Value: "alerting"},
		{FunctionClass: "error", FunctionInstance: "indoor-temperature-sensor-failed", Value: "normal"},
		{FunctionClass: "sleep", Value: "on"},
		{FunctionClass: "timer", Value: float64(120)},
	}
	adapter, _ := newTestAdapter(resource)

	attrs := adapter.ExtraStateAttributes()
	wantErrors := []string{"Water tray full", "compressor-overload"}
	if !reflect.DeepEqual(attrs.ErrorStates, wantErrors) {
		t.Errorf("ErrorStates = %v, want %v", attrs.ErrorStates, wantErrors)
	}
	if attrs.SleepMode != "on" {
		t.Errorf("SleepMode = %q, want on", attrs.SleepMode)
	}
	if attrs.Timer != 120 {
		t.Errorf("Timer = %d, want 120", attrs.Timer)
	}
}

func TestExtraStateAttributesDefaults(t *testing.T) {
	resource := acResource()
	resource.States = nil
	adapter, _ := newTestAdapter(resource)

	attrs := adapter.ExtraStateAttributes()
	if len(attrs.ErrorStates) != 0 {
		t.Errorf("ErrorStates = %v, want empty", attrs.ErrorStates)
	}
	if attrs.SleepMode != "off" {
		t.Errorf("SleepMode = %q, want off", attrs.SleepMode)
	}
	if attrs.Timer != 0 {
		t.Errorf("Timer = %d, want 0", attrs.Timer)
	}
}

func TestSetHVACMode(t *testing.T) {
	adapter, ctrl := newTestAdapter(acResource())

	if err := adapter.SetHVACMode(context.Background(), HVACModeCool); err != nil {
		t.Fatalf("SetHVACMode: %v", err)
	}
	if len(ctrl.calls) != 1 {
		t.Fatalf("expected 1 set-state call, got %d", len(ctrl.calls))
	}
	call := ctrl.calls[0]
	if call.deviceID != "ac-1" {
		t.Errorf("deviceID = %q", call.deviceID)
	}
	if call.update.HVACMode == nil || *call.update.HVACMode != "cool" {
		t.Errorf("hvac mode field = %v, want cool", call.update.HVACMode)
	}
	if call.update.FanMode != nil || call.update.TargetTemperature != nil {
		t.Errorf("unexpected extra fields in update: %+v", call.update)
	}
}

func TestSetHVACModeUnsupported(t *testing.T) {
	adapter, ctrl := newTestAdapter(acResource())

	// "heat" appears in the command table but not the display table, so no
	// vendor code maps to it here.
	err := adapter.SetHVACMode(context.Background(), HVACModeHeat)
	if !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
	if len(ctrl.calls) != 0 {
		t.Fatalf("expected no set-state calls, got %d", len(ctrl.calls))
	}
}

func TestSetFanMode(t *testing.T) {
	adapter, ctrl := newTestAdapter(acResource())

	if err := adapter.SetFanMode(context.Background(), "high"); err != nil {
		t.Fatalf("SetFanMode: %v", err)
	}
	if len(ctrl.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(ctrl.calls))
	}
	if got := ctrl.calls[0].update.FanMode; got == nil || *got != "fan-speed-2-100" {
		t.Errorf("fan mode field = %v, want fan-speed-2-100", got)
	}

	err := adapter.SetFanMode(context.Background(), "turbo")
	if !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
	if len(ctrl.calls) != 1 {
		t.Fatalf("unsupported fan mode still issued a request")
	}
}

func TestSetTemperatureSingleField(t *testing.T) {
	adapter, ctrl := newTestAdapter(acResource())

	temp := 21.0
	if err := adapter.SetTemperature(context.Background(), TemperatureRequest{Temperature: &temp}); err != nil {
		t.Fatalf("SetTemperature: %v", err)
	}
	if len(ctrl.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(ctrl.calls))
	}
	update := ctrl.calls[0].update
	if update.TargetTemperature == nil || *update.TargetTemperature != 21 {
		t.Errorf("target temperature = %v, want 21", update.TargetTemperature)
	}
	if update.TargetTemperatureAutoCooling != nil || update.TargetTemperatureAutoHeating != nil || update.HVACMode != nil {
		t.Errorf("optional fields should be absent: %+v", update)
	}
}

func TestSetTemperatureRangeAndMode(t *testing.T) {
	adapter, ctrl := newTestAdapter(acResource())

	high := 26.0
	low := 18.0
	mode := HVACModeHeatCool
	err := adapter.SetTemperature(context.Background(), TemperatureRequest{
		TargetHigh: &high,
		TargetLow:  &low,
		Mode:       &mode,
	})
	if err != nil {
		t.Fatalf("SetTemperature: %v", err)
	}
	update := ctrl.calls[0].update
	if update.TargetTemperatureAutoCooling == nil || *update.TargetTemperatureAutoCooling != 26 {
		t.Errorf("auto cooling = %v, want 26", update.TargetTemperatureAutoCooling)
	}
	if update.TargetTemperatureAutoHeating == nil || *update.TargetTemperatureAutoHeating != 18 {
		t.Errorf("auto heating = %v, want 18", update.TargetTemperatureAutoHeating)
	}
	// heat_cool travels through the command table as "auto", not the
	// display table's "auto-cool".
	if update.HVACMode == nil || *update.HVACMode != "auto" {
		t.Errorf("hvac mode = %v, want auto", update.HVACMode)
	}
}

func TestSetSleepModeAndTimer(t *testing.T) {
	adapter, ctrl := newTestAdapter(acResource())

	if err := adapter.SetSleepMode(context.Background(), "on"); err != nil {
		t.Fatalf("SetSleepMode: %v", err)
	}
	if err := adapter.SetTimer(context.Background(), 45); err != nil {
		t.Fatalf("SetTimer: %v", err)
	}
	if len(ctrl.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(ctrl.calls))
	}
	if got := ctrl.calls[0].update.SleepMode; got == nil || *got != "on" {
		t.Errorf("sleep mode = %v, want on", got)
	}
	if got := ctrl.calls[1].update.Timer; got == nil || *got != 45 {
		t.Errorf("timer = %v, want 45", got)
	}
}

func TestHVACModeRoundTrip(t *testing.T) {
	for _, mode := range (&Adapter{}).HVACModes() {
		adapter, ctrl := newTestAdapter(acResource())
		if err := adapter.SetHVACMode(context.Background(), mode); err != nil {
			t.Fatalf("SetHVACMode(%q): %v", mode, err)
		}
		code := ctrl.calls[0].update.HVACMode
		if code == nil {
			t.Fatalf("no vendor code issued for %q", mode)
		}

		ctrl.resource.HVACMode = *code
		if got := adapter.HVACMode(); got != mode {
			t.Errorf("round trip %q -> %q -> %q", mode, *code, got)
		}
	}
}
