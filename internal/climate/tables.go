package climate

// HVACMode is the platform-facing operating mode.
type HVACMode string

const (
	HVACModeOff      HVACMode = "off"
	HVACModeHeat     HVACMode = "heat"
	HVACModeCool     HVACMode = "cool"
	HVACModeHeatCool HVACMode = "heat_cool"
	HVACModeFanOnly  HVACMode = "fan_only"
)

// HVACAction is the platform-facing running action.
type HVACAction string

const (
	HVACActionOff     HVACAction = "off"
	HVACActionHeating HVACAction = "heating"
	HVACActionCooling HVACAction = "cooling"
	HVACActionFan     HVACAction = "fan"
)

// Fan display labels.
const (
	FanOn  = "on"
	FanOff = "off"
)

// TemperatureUnitCelsius is reported unconditionally; the vendor API always
// returns Celsius.
const TemperatureUnitCelsius = "C"

// Feature flags advertised to the platform.
type Feature uint8

const (
	FeatureTargetTemperature Feature = 1 << iota
	FeatureFanMode
	FeatureTargetTemperatureRange
)

func (f Feature) Has(flag Feature) bool { return f&flag != 0 }

// The translation tables are ordered: list projections and reverse lookups
// both follow definition order.

type fanEntry struct {
	code  string
	label string
}

var fanSpeedTable = []fanEntry{
	{"fan-speed-auto", FanOn},
	{"fan-speed-2-050", "low"},
	{"fan-speed-2-100", "high"},
}

type hvacEntry struct {
	code string
	mode HVACMode
}

var hvacModeTable = []hvacEntry{
	{"cool", HVACModeCool},
	{"auto-cool", HVACModeHeatCool},
	{"fan", HVACModeFanOnly},
	{"off", HVACModeOff},
}

// errorMessages maps alerting error function instances to display strings.
// Unlisted instances surface as their raw code.
var errorMessages = map[string]string{
	"indoor-temperature-sensor-failed": "Indoor temperature sensor failed",
	"water-tray-full":                  "Water tray full",
}

// commandModeTable translates platform modes to vendor codes for the
// set-temperature request. Distinct from hvacModeTable: the display table
// has no entry producing "heat" or "auto".
var commandModeTable = map[HVACMode]string{
	HVACModeOff:      "off",
	HVACModeHeat:     "heat",
	HVACModeCool:     "cool",
	HVACModeFanOnly:  "fan",
	HVACModeHeatCool: "auto",
}

func fanLabelForCode(code string) (string, bool) {
	for _, e := range fanSpeedTable {
		if e.code == code {
			return e.label, true
		}
	}
	return "", false
}

func fanCodeForLabel(label string) (string, bool) {
	for _, e := range fanSpeedTable {
		if e.label == label {
			return e.code, true
		}
	}
	return "", false
}

func hvacModeForCode(code string) (HVACMode, bool) {
	for _, e := range hvacModeTable {
		if e.code == code {
			return e.mode, true
		}
	}
	return "", false
}

func hvacCodeForMode(mode HVACMode) (string, bool) {
	for _, e := range hvacModeTable {
		if e.mode == mode {
			return e.code, true
		}
	}
	return "", false
}
