package sensor

import (
	"testing"

	"github.com/afero-home/hubspace2mqtt/internal/afero"
)

type fakeSource struct {
	device afero.Device
}

func (f *fakeSource) Device(id string) (afero.Device, bool) {
	if id != f.device.ID {
		return afero.Device{}, false
	}
	return f.device, true
}

func transformerDevice() afero.Device {
	return afero.Device{
		ID:          "transformer-1",
		Name:        "Friendly Device 6",
		DeviceClass: "landscape-transformer",
		States: []afero.FunctionState{
			{FunctionClass: "output-voltage-switch", Value: float64(12)},
			{FunctionClass: "watts", Value: float64(0)},
			{FunctionClass: "wifi-rssi", Value: float64(-51)},
			{FunctionClass: "available", Value: true},
		},
	}
}

func TestReadings(t *testing.T) {
	source := &fakeSource{device: transformerDevice()}
	adapter := NewAdapter(source, source.device)

	readings := adapter.Readings()
	want := map[string][2]string{
		"output_voltage": {"12", "V"},
		"watts":          {"0", "W"},
		"wifi_rssi":      {"-51", "dB"},
	}
	if len(readings) != len(want) {
		t.Fatalf("expected %d readings, got %d: %+v", len(want), len(readings), readings)
	}
	for _, r := range readings {
		exp, ok := want[r.Definition.Key]
		if !ok {
			t.Errorf("unexpected reading %q", r.Definition.Key)
			continue
		}
		if r.Value != exp[0] {
			t.Errorf("%s value = %q, want %q", r.Definition.Key, r.Value, exp[0])
		}
		if r.Definition.Unit != exp[1] {
			t.Errorf("%s unit = %q, want %q", r.Definition.Key, r.Definition.Unit, exp[1])
		}
	}
}

func TestReadingsFollowUpdates(t *testing.T) {
	source := &fakeSource{device: transformerDevice()}
	adapter := NewAdapter(source, source.device)

	for i, s := range source.device.States {
		if s.FunctionClass == "watts" {
			source.device.States[i].Value = float64(66)
		}
	}

	for _, r := range adapter.Readings() {
		if r.Definition.Key == "watts" {
			if r.Value != "66" {
				t.Fatalf("watts = %q, want 66", r.Value)
			}
			return
		}
	}
	t.Fatal("watts reading missing")
}

func TestDefinitionsSkipUnreportedSensors(t *testing.T) {
	dev := transformerDevice()
	dev.States = dev.States[:1] // voltage only
	source := &fakeSource{device: dev}
	adapter := NewAdapter(source, dev)

	defs := adapter.Definitions()
	if len(defs) != 1 || defs[0].Key != "output_voltage" {
		t.Fatalf("Definitions = %+v, want just output_voltage", defs)
	}
}
