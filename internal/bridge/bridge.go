package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/afero-home/hubspace2mqtt/internal/afero"
	"github.com/afero-home/hubspace2mqtt/internal/climate"
	"github.com/afero-home/hubspace2mqtt/internal/config"
	"github.com/afero-home/hubspace2mqtt/internal/sensor"
)

const commandTimeout = 15 * time.Second

// Controller is the vendor-side surface the bridge registers against.
// Implemented by afero.Controller.
type Controller interface {
	Thermostats() []afero.Thermostat
	Thermostat(id string) (afero.Thermostat, bool)
	Devices() []afero.Device
	Device(id string) (afero.Device, bool)
	SubscribeThermostats(cb afero.ThermostatCallback, types ...afero.EventType) func()
	SubscribeDevices(cb afero.DeviceCallback, types ...afero.EventType) func()
	SetState(ctx context.Context, deviceID string, update afero.StateUpdate) error
	RequestRefresh()
}

// Bridge registers vendor resources as platform entities over MQTT
// discovery, republishes projected state on resource updates, and dispatches
// command topics to the adapters.
type Bridge struct {
	conn            Conn
	ctrl            Controller
	topicPrefix     string
	discoveryPrefix string

	mu       sync.Mutex
	climates map[string]*climate.Adapter
	sensors  map[string]*sensor.Adapter
	cleanup  []func()
}

func New(conn Conn, ctrl Controller, cfg config.MQTTConfig) *Bridge {
	return &Bridge{
		conn:            conn,
		ctrl:            ctrl,
		topicPrefix:     cfg.TopicPrefix,
		discoveryPrefix: cfg.DiscoveryPrefix,
		climates:        make(map[string]*climate.Adapter),
		sensors:         make(map[string]*sensor.Adapter),
	}
}

// Run registers all currently known resources in bulk, then listens for new
// ones. Late-arriving resources are registered one at a time in event order.
func (b *Bridge) Run() error {
	for _, t := range b.ctrl.Thermostats() {
		if err := b.addClimate(t); err != nil {
			return err
		}
	}
	for _, d := range b.ctrl.Devices() {
		if err := b.addSensorDevice(d); err != nil {
			return err
		}
	}

	unsubAdd := b.ctrl.SubscribeThermostats(func(_ afero.EventType, t afero.Thermostat) {
		if err := b.addClimate(t); err != nil {
			log.Printf("register climate %s: %v", t.ID, err)
		}
	}, afero.EventResourceAdded)

	unsubUpdate := b.ctrl.SubscribeThermostats(func(_ afero.EventType, t afero.Thermostat) {
		b.mu.Lock()
		adapter := b.climates[t.ID]
		b.mu.Unlock()
		if adapter != nil {
			b.publishClimateState(adapter)
		}
	}, afero.EventResourceUpdated)

	unsubDevAdd := b.ctrl.SubscribeDevices(func(_ afero.EventType, d afero.Device) {
		if err := b.addSensorDevice(d); err != nil {
			log.Printf("register sensors %s: %v", d.ID, err)
		}
	}, afero.EventResourceAdded)

	unsubDevUpdate := b.ctrl.SubscribeDevices(func(_ afero.EventType, d afero.Device) {
		b.mu.Lock()
		adapter := b.sensors[d.ID]
		b.mu.Unlock()
		if adapter != nil {
			b.publishSensorState(adapter)
		}
	}, afero.EventResourceUpdated)

	b.mu.Lock()
	b.cleanup = append(b.cleanup, unsubAdd, unsubUpdate, unsubDevAdd, unsubDevUpdate)
	b.mu.Unlock()
	return nil
}

// Close releases controller subscriptions and command topic subscriptions.
func (b *Bridge) Close() {
	b.mu.Lock()
	cleanup := b.cleanup
	b.cleanup = nil
	b.mu.Unlock()
	for _, fn := range cleanup {
		fn()
	}
}

type climateTopics struct {
	base                   string
	modeState              string
	modeCommand            string
	action                 string
	currentTemperature     string
	temperatureState       string
	temperatureCommand     string
	temperatureHighState   string
	temperatureHighCommand string
	temperatureLowState    string
	temperatureLowCommand  string
	fanState               string
	fanCommand             string
	attributes             string
	sleepCommand           string
	timerCommand           string
}

func (b *Bridge) climateTopicsFor(id string) climateTopics {
	base := b.topicPrefix + "/climate/" + id
	return climateTopics{
		base:                   base,
		modeState:              base + "/mode/state",
		modeCommand:            base + "/mode/set",
		action:                 base + "/action",
		currentTemperature:     base + "/current_temperature",
		temperatureState:       base + "/temperature/state",
		temperatureCommand:     base + "/temperature/set",
		temperatureHighState:   base + "/temperature_high/state",
		temperatureHighCommand: base + "/temperature_high/set",
		temperatureLowState:    base + "/temperature_low/state",
		temperatureLowCommand:  base + "/temperature_low/set",
		fanState:               base + "/fan/state",
		fanCommand:             base + "/fan/set",
		attributes:             base + "/attributes",
		sleepCommand:           base + "/sleep/set",
		timerCommand:           base + "/timer/set",
	}
}

func (b *Bridge) addClimate(resource afero.Thermostat) error {
	b.mu.Lock()
	if _, exists := b.climates[resource.ID]; exists {
		b.mu.Unlock()
		return nil
	}
	adapter := climate.NewAdapter(b.ctrl, resource)
	b.climates[resource.ID] = adapter
	b.mu.Unlock()

	topics := b.climateTopicsFor(resource.ID)
	if err := b.publishDiscovery("climate", "hubspace_"+resource.ID, b.climateDiscoveryPayload(adapter, topics)); err != nil {
		return err
	}
	if err := b.subscribeClimateCommands(adapter, topics); err != nil {
		return err
	}
	entitiesRegistered.WithLabelValues("climate").Inc()
	b.publishClimateState(adapter)
	return nil
}

func (b *Bridge) subscribeClimateCommands(adapter *climate.Adapter, topics climateTopics) error {
	subs := []struct {
		topic string
		cb    func([]byte)
	}{
		{topics.modeCommand, func(payload []byte) {
			b.command("set_hvac_mode", func(ctx context.Context) error {
				return adapter.SetHVACMode(ctx, climate.HVACMode(payload))
			})
		}},
		{topics.fanCommand, func(payload []byte) {
			b.command("set_fan_mode", func(ctx context.Context) error {
				return adapter.SetFanMode(ctx, string(payload))
			})
		}},
		{topics.temperatureCommand, func(payload []byte) {
			b.command("set_temperature", func(ctx context.Context) error {
				value, err := parseTemperature(payload)
				if err != nil {
					return err
				}
				return adapter.SetTemperature(ctx, climate.TemperatureRequest{Temperature: &value})
			})
		}},
		{topics.temperatureHighCommand, func(payload []byte) {
			b.command("set_temperature_high", func(ctx context.Context) error {
				value, err := parseTemperature(payload)
				if err != nil {
					return err
				}
				return adapter.SetTemperature(ctx, climate.TemperatureRequest{TargetHigh: &value})
			})
		}},
		{topics.temperatureLowCommand, func(payload []byte) {
			b.command("set_temperature_low", func(ctx context.Context) error {
				value, err := parseTemperature(payload)
				if err != nil {
					return err
				}
				return adapter.SetTemperature(ctx, climate.TemperatureRequest{TargetLow: &value})
			})
		}},
		{topics.sleepCommand, func(payload []byte) {
			b.command("set_sleep_mode", func(ctx context.Context) error {
				return adapter.SetSleepMode(ctx, string(payload))
			})
		}},
		{topics.timerCommand, func(payload []byte) {
			b.command("set_timer", func(ctx context.Context) error {
				value, err := strconv.Atoi(string(payload))
				if err != nil {
					return fmt.Errorf("parse timer: %w", err)
				}
				return adapter.SetTimer(ctx, value)
			})
		}},
	}

	for _, sub := range subs {
		unsub, err := b.conn.Subscribe(sub.topic, sub.cb)
		if err != nil {
			return err
		}
		b.mu.Lock()
		b.cleanup = append(b.cleanup, unsub)
		b.mu.Unlock()
	}
	return nil
}

// command wraps every platform command with uniform bookkeeping: surface the
// error, and on success schedule an immediate poll so projected state
// converges.
func (b *Bridge) command(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		commandFailure.WithLabelValues(name).Inc()
		log.Printf("%s: %v", name, err)
		return
	}
	commandSuccess.WithLabelValues(name).Inc()
	b.ctrl.RequestRefresh()
}

func (b *Bridge) publishClimateState(adapter *climate.Adapter) {
	topics := b.climateTopicsFor(adapter.ID())
	features := adapter.SupportedFeatures()

	b.publish(topics.modeState, string(adapter.HVACMode()))

	action, known := adapter.HVACAction()
	if !known && action != "" {
		log.Printf("climate %s: unrecognized hvac action %q", adapter.ID(), action)
	}
	b.publish(topics.action, string(action))

	if current := adapter.CurrentTemperature(); current != nil {
		b.publish(topics.currentTemperature, formatTemperature(*current))
	}
	if features.Has(climate.FeatureTargetTemperature) {
		if target := adapter.TargetTemperature(); target != nil {
			b.publish(topics.temperatureState, formatTemperature(*target))
		}
	}
	if features.Has(climate.FeatureTargetTemperatureRange) {
		b.publish(topics.temperatureLowState, formatTemperature(adapter.TargetTemperatureLow()))
		b.publish(topics.temperatureHighState, formatTemperature(adapter.TargetTemperatureHigh()))
	}
	if features.Has(climate.FeatureFanMode) {
		b.publish(topics.fanState, adapter.FanMode())
	}

	attrs, err := json.Marshal(adapter.ExtraStateAttributes())
	if err != nil {
		log.Printf("climate %s: marshal attributes: %v", adapter.ID(), err)
		return
	}
	b.publish(topics.attributes, string(attrs))
}

func (b *Bridge) sensorStateTopic(deviceID, key string) string {
	return b.topicPrefix + "/sensor/" + deviceID + "/" + key
}

func (b *Bridge) addSensorDevice(resource afero.Device) error {
	adapter := sensor.NewAdapter(b.ctrl, resource)
	defs := adapter.Definitions()
	if len(defs) == 0 {
		return nil
	}

	b.mu.Lock()
	if _, exists := b.sensors[resource.ID]; exists {
		b.mu.Unlock()
		return nil
	}
	b.sensors[resource.ID] = adapter
	b.mu.Unlock()

	for _, def := range defs {
		stateTopic := b.sensorStateTopic(resource.ID, def.Key)
		payload := b.sensorDiscoveryPayload(adapter, def, stateTopic)
		if err := b.publishDiscovery("sensor", "hubspace_"+resource.ID+"_"+def.Key, payload); err != nil {
			return err
		}
		entitiesRegistered.WithLabelValues("sensor").Inc()
	}
	b.publishSensorState(adapter)
	return nil
}

func (b *Bridge) publishSensorState(adapter *sensor.Adapter) {
	for _, reading := range adapter.Readings() {
		b.publish(b.sensorStateTopic(adapter.ID(), reading.Definition.Key), reading.Value)
	}
}

func (b *Bridge) publishDiscovery(component, objectID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discovery: %w", err)
	}
	topic := b.discoveryPrefix + "/" + component + "/" + objectID + "/config"
	return b.conn.Publish(topic, true, data)
}

func (b *Bridge) publish(topic, payload string) {
	if err := b.conn.Publish(topic, false, []byte(payload)); err != nil {
		log.Printf("publish %s: %v", topic, err)
	}
}

func parseTemperature(payload []byte) (float64, error) {
	value, err := strconv.ParseFloat(string(payload), 64)
	if err != nil {
		return 0, fmt.Errorf("parse temperature: %w", err)
	}
	return value, nil
}

func formatTemperature(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
