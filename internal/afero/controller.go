package afero

import (
	"context"
	"log"
	"reflect"
	"sort"
	"sync"
	"time"
)

const DefaultPollInterval = 30 * time.Second

// Controller owns the device snapshots for one account, refreshes them by
// polling, and fans out add/update events to subscribers. Snapshots are
// replaced wholesale; callers only ever see copies.
type Controller struct {
	client   *Client
	interval time.Duration

	mu          sync.Mutex
	thermostats map[string]Thermostat
	devices     map[string]Device
	tsubs       map[int]thermostatSub
	dsubs       map[int]deviceSub
	nextID      int

	kick chan struct{}
}

func NewController(client *Client, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Controller{
		client:      client,
		interval:    interval,
		thermostats: make(map[string]Thermostat),
		devices:     make(map[string]Device),
		tsubs:       make(map[int]thermostatSub),
		dsubs:       make(map[int]deviceSub),
		kick:        make(chan struct{}, 1),
	}
}

// Initialize performs the first poll so Thermostats/Devices are populated
// before entity registration.
func (c *Controller) Initialize(ctx context.Context) error {
	return c.poll(ctx)
}

// Run polls until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.kick:
		}
		if err := c.poll(ctx); err != nil && ctx.Err() == nil {
			log.Printf("hubspace poll: %v", err)
		}
	}
}

// RequestRefresh schedules an immediate poll. Used after commands so
// projected state converges without waiting for the next interval.
func (c *Controller) RequestRefresh() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// SubscribeThermostats registers a callback for climate resource events,
// optionally filtered to specific event types. The returned func removes the
// subscription.
func (c *Controller) SubscribeThermostats(cb ThermostatCallback, types ...EventType) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.tsubs[id] = thermostatSub{cb: cb, filter: filterSet(types)}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.tsubs, id)
		c.mu.Unlock()
	}
}

// SubscribeDevices registers a callback for raw device events.
func (c *Controller) SubscribeDevices(cb DeviceCallback, types ...EventType) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.dsubs[id] = deviceSub{cb: cb, filter: filterSet(types)}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.dsubs, id)
		c.mu.Unlock()
	}
}

// Thermostat returns the current snapshot for a climate resource.
func (c *Controller) Thermostat(id string) (Thermostat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.thermostats[id]
	return t, ok
}

// Thermostats lists current climate snapshots ordered by resource ID.
func (c *Controller) Thermostats() []Thermostat {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Thermostat, 0, len(c.thermostats))
	for _, t := range c.thermostats {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Device returns the current snapshot for a raw device.
func (c *Controller) Device(id string) (Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.devices[id]
	return d, ok
}

// Devices lists current raw device snapshots ordered by ID.
func (c *Controller) Devices() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetState forwards a state-set request to the API.
func (c *Controller) SetState(ctx context.Context, deviceID string, update StateUpdate) error {
	return c.client.SetState(ctx, deviceID, update)
}

func (c *Controller) poll(ctx context.Context) error {
	devices, thermostats, err := c.client.Devices(ctx)
	if err != nil {
		pollFailure.Inc()
		return err
	}
	pollSuccess.Inc()
	lastPollTimestamp.Set(float64(time.Now().Unix()))

	type tEvent struct {
		typ EventType
		t   Thermostat
	}
	type dEvent struct {
		typ EventType
		d   Device
	}
	var tEvents []tEvent
	var dEvents []dEvent

	c.mu.Lock()
	for _, dev := range devices {
		prev, known := c.devices[dev.ID]
		switch {
		case !known:
			dEvents = append(dEvents, dEvent{EventResourceAdded, dev})
		case !reflect.DeepEqual(prev, dev):
			dEvents = append(dEvents, dEvent{EventResourceUpdated, dev})
		}
		c.devices[dev.ID] = dev
	}
	for _, t := range thermostats {
		prev, known := c.thermostats[t.ID]
		switch {
		case !known:
			tEvents = append(tEvents, tEvent{EventResourceAdded, t})
		case !reflect.DeepEqual(prev, t):
			tEvents = append(tEvents, tEvent{EventResourceUpdated, t})
		}
		c.thermostats[t.ID] = t
	}
	tsubs := make([]thermostatSub, 0, len(c.tsubs))
	for _, sub := range c.tsubs {
		tsubs = append(tsubs, sub)
	}
	dsubs := make([]deviceSub, 0, len(c.dsubs))
	for _, sub := range c.dsubs {
		dsubs = append(dsubs, sub)
	}
	c.mu.Unlock()

	// Callbacks run outside the lock so they may re-enter the controller.
	for _, ev := range dEvents {
		for _, sub := range dsubs {
			if sub.wants(ev.typ) {
				sub.cb(ev.typ, ev.d)
			}
		}
	}
	for _, ev := range tEvents {
		for _, sub := range tsubs {
			if sub.wants(ev.typ) {
				sub.cb(ev.typ, ev.t)
			}
		}
	}
	return nil
}
