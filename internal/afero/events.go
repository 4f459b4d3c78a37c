package afero

// EventType identifies controller resource events.
type EventType string

const (
	EventResourceAdded   EventType = "resource_added"
	EventResourceUpdated EventType = "resource_updated"
)

// ThermostatCallback receives climate resource events.
type ThermostatCallback func(EventType, Thermostat)

// DeviceCallback receives raw device events for non-climate platforms.
type DeviceCallback func(EventType, Device)

type thermostatSub struct {
	cb     ThermostatCallback
	filter map[EventType]bool
}

type deviceSub struct {
	cb     DeviceCallback
	filter map[EventType]bool
}

func filterSet(types []EventType) map[EventType]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func (s thermostatSub) wants(t EventType) bool {
	return s.filter == nil || s.filter[t]
}

func (s deviceSub) wants(t EventType) bool {
	return s.filter == nil || s.filter[t]
}
