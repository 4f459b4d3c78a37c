package bridge

import (
	"github.com/afero-home/hubspace2mqtt/internal/climate"
	"github.com/afero-home/hubspace2mqtt/internal/sensor"
)

// deviceInfo groups entities under one device in the platform UI.
type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
}

// climateDiscovery is the Home Assistant MQTT discovery payload for a
// climate entity. Optional topic groups are present only when the matching
// capability flag is set.
type climateDiscovery struct {
	Name     string     `json:"name"`
	UniqueID string     `json:"unique_id"`
	Device   deviceInfo `json:"device"`

	Modes            []string `json:"modes"`
	ModeStateTopic   string   `json:"mode_state_topic"`
	ModeCommandTopic string   `json:"mode_command_topic"`
	ActionTopic      string   `json:"action_topic"`

	CurrentTemperatureTopic string  `json:"current_temperature_topic"`
	MinTemp                 float64 `json:"min_temp"`
	MaxTemp                 float64 `json:"max_temp"`
	TempStep                float64 `json:"temp_step"`
	TemperatureUnit         string  `json:"temperature_unit"`

	TemperatureStateTopic   string `json:"temperature_state_topic,omitempty"`
	TemperatureCommandTopic string `json:"temperature_command_topic,omitempty"`

	TemperatureHighStateTopic   string `json:"temperature_high_state_topic,omitempty"`
	TemperatureHighCommandTopic string `json:"temperature_high_command_topic,omitempty"`
	TemperatureLowStateTopic    string `json:"temperature_low_state_topic,omitempty"`
	TemperatureLowCommandTopic  string `json:"temperature_low_command_topic,omitempty"`

	FanModes        []string `json:"fan_modes,omitempty"`
	FanModeState    string   `json:"fan_mode_state_topic,omitempty"`
	FanModeCommand  string   `json:"fan_mode_command_topic,omitempty"`
	AttributesTopic string   `json:"json_attributes_topic"`
}

// sensorDiscovery is the discovery payload for one diagnostic sensor.
type sensorDiscovery struct {
	Name           string     `json:"name"`
	UniqueID       string     `json:"unique_id"`
	Device         deviceInfo `json:"device"`
	StateTopic     string     `json:"state_topic"`
	Unit           string     `json:"unit_of_measurement,omitempty"`
	DeviceClass    string     `json:"device_class,omitempty"`
	StateClass     string     `json:"state_class,omitempty"`
	EntityCategory string     `json:"entity_category,omitempty"`
}

func (b *Bridge) climateDiscoveryPayload(adapter *climate.Adapter, topics climateTopics) climateDiscovery {
	modes := make([]string, 0, len(adapter.HVACModes()))
	for _, m := range adapter.HVACModes() {
		modes = append(modes, string(m))
	}

	payload := climateDiscovery{
		Name:     adapter.Name(),
		UniqueID: "hubspace_" + adapter.ID(),
		Device: deviceInfo{
			Identifiers:  []string{"hubspace_" + adapter.ID()},
			Name:         adapter.Name(),
			Manufacturer: "Hubspace",
		},
		Modes:                   modes,
		ModeStateTopic:          topics.modeState,
		ModeCommandTopic:        topics.modeCommand,
		ActionTopic:             topics.action,
		CurrentTemperatureTopic: topics.currentTemperature,
		MinTemp:                 adapter.MinTemp(),
		MaxTemp:                 adapter.MaxTemp(),
		TempStep:                adapter.TargetTemperatureStep(),
		TemperatureUnit:         adapter.TemperatureUnit(),
		AttributesTopic:         topics.attributes,
	}

	features := adapter.SupportedFeatures()
	if features.Has(climate.FeatureTargetTemperature) {
		payload.TemperatureStateTopic = topics.temperatureState
		payload.TemperatureCommandTopic = topics.temperatureCommand
	}
	if features.Has(climate.FeatureTargetTemperatureRange) {
		payload.TemperatureHighStateTopic = topics.temperatureHighState
		payload.TemperatureHighCommandTopic = topics.temperatureHighCommand
		payload.TemperatureLowStateTopic = topics.temperatureLowState
		payload.TemperatureLowCommandTopic = topics.temperatureLowCommand
	}
	if features.Has(climate.FeatureFanMode) {
		payload.FanModes = adapter.FanModes()
		payload.FanModeState = topics.fanState
		payload.FanModeCommand = topics.fanCommand
	}

	return payload
}

func (b *Bridge) sensorDiscoveryPayload(adapter *sensor.Adapter, def sensor.Definition, stateTopic string) sensorDiscovery {
	return sensorDiscovery{
		Name:     adapter.Name() + " " + def.Name,
		UniqueID: "hubspace_" + adapter.ID() + "_" + def.Key,
		Device: deviceInfo{
			Identifiers:  []string{"hubspace_" + adapter.ID()},
			Name:         adapter.Name(),
			Manufacturer: "Hubspace",
		},
		StateTopic:     stateTopic,
		Unit:           def.Unit,
		DeviceClass:    def.DeviceClass,
		StateClass:     def.StateClass,
		EntityCategory: def.EntityCategory,
	}
}
