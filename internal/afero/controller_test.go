package afero

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestControllerInitialize(t *testing.T) {
	client, _ := newTestClient(t)
	ctrl := NewController(client, time.Hour)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	thermostats := ctrl.Thermostats()
	if len(thermostats) != 1 || thermostats[0].ID != "ac-1" {
		t.Fatalf("thermostats = %+v", thermostats)
	}
	devices := ctrl.Devices()
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[0].ID != "ac-1" || devices[1].ID != "xfmr-1" {
		t.Errorf("device order = %s, %s", devices[0].ID, devices[1].ID)
	}

	if _, ok := ctrl.Thermostat("ac-1"); !ok {
		t.Error("thermostat lookup failed")
	}
	if _, ok := ctrl.Device("xfmr-1"); !ok {
		t.Error("device lookup failed")
	}
}

func TestControllerEvents(t *testing.T) {
	client, api := newTestClient(t)
	ctrl := NewController(client, time.Hour)

	var added, updated []string
	ctrl.SubscribeThermostats(func(_ EventType, th Thermostat) {
		added = append(added, th.ID)
	}, EventResourceAdded)
	ctrl.SubscribeThermostats(func(_ EventType, th Thermostat) {
		updated = append(updated, th.ID)
	}, EventResourceUpdated)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if len(added) != 1 || added[0] != "ac-1" {
		t.Fatalf("added = %v", added)
	}
	if len(updated) != 0 {
		t.Fatalf("updated = %v before any change", updated)
	}

	// Second poll with identical payload emits nothing.
	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(added) != 1 || len(updated) != 0 {
		t.Fatalf("events after identical poll: added=%v updated=%v", added, updated)
	}

	api.mu.Lock()
	api.metadevices = strings.Replace(api.metadevices, `"value": "cool"`, `"value": "off"`, 1)
	api.mu.Unlock()

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("third poll: %v", err)
	}
	if len(updated) != 1 || updated[0] != "ac-1" {
		t.Fatalf("updated = %v", updated)
	}
	if th, _ := ctrl.Thermostat("ac-1"); th.HVACMode != "off" {
		t.Errorf("snapshot mode = %s after update", th.HVACMode)
	}
}

func TestControllerUnsubscribe(t *testing.T) {
	client, api := newTestClient(t)
	ctrl := NewController(client, time.Hour)

	var events int
	unsub := ctrl.SubscribeDevices(func(EventType, Device) { events++ })

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if events != 2 {
		t.Fatalf("got %d device events, want 2", events)
	}

	unsub()
	api.mu.Lock()
	api.metadevices = strings.Replace(api.metadevices, `"value": -51`, `"value": -60`, 1)
	api.mu.Unlock()

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if events != 2 {
		t.Errorf("callback fired after unsubscribe, events = %d", events)
	}
}

func TestControllerRequestRefresh(t *testing.T) {
	client, _ := newTestClient(t)
	ctrl := NewController(client, time.Hour)

	if err := ctrl.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(done)
	}()

	// Kicks never block, even when queued back to back.
	ctrl.RequestRefresh()
	ctrl.RequestRefresh()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
