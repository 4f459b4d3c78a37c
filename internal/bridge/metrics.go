package bridge

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/afero-home/hubspace2mqtt/internal/climate"
)

var (
	commandSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hubspace_bridge_command_success_total",
		Help: "Platform commands dispatched to the vendor successfully",
	}, []string{"command"})
	commandFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hubspace_bridge_command_failure_total",
		Help: "Platform commands that failed, including unsupported values",
	}, []string{"command"})
	entitiesRegistered = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hubspace_bridge_entities_registered",
		Help: "Entities announced over MQTT discovery, by component",
	}, []string{"component"})
)

// MetricsCollectors returns the bridge-level collectors for registration.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{commandSuccess, commandFailure, entitiesRegistered}
}

// MetricsCollector exposes the projected climate state of every known
// thermostat. It reads controller snapshots, so scrapes never hit the
// vendor API.
type MetricsCollector struct {
	ctrl Controller

	temp       *prometheus.GaugeVec
	target     *prometheus.GaugeVec
	targetLow  *prometheus.GaugeVec
	targetHigh *prometheus.GaugeVec
	modeInfo   *prometheus.GaugeVec
	errors     *prometheus.GaugeVec
}

func NewMetricsCollector(ctrl Controller) *MetricsCollector {
	labels := []string{"device_id", "device_name"}
	return &MetricsCollector{
		ctrl: ctrl,
		temp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hubspace_current_temperature_celsius",
			Help: "Current temperature per thermostat",
		}, labels),
		target: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hubspace_target_temperature_celsius",
			Help: "Target temperature per thermostat",
		}, labels),
		targetLow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hubspace_target_temperature_low_celsius",
			Help: "Auto range heating target per thermostat",
		}, labels),
		targetHigh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hubspace_target_temperature_high_celsius",
			Help: "Auto range cooling target per thermostat",
		}, labels),
		modeInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hubspace_hvac_mode_info",
			Help: "Projected HVAC mode per thermostat (1 for the active mode)",
		}, []string{"device_id", "device_name", "mode"}),
		errors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hubspace_error_state_count",
			Help: "Alerting error states per thermostat",
		}, labels),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.temp.Describe(ch)
	c.target.Describe(ch)
	c.targetLow.Describe(ch)
	c.targetHigh.Describe(ch)
	c.modeInfo.Describe(ch)
	c.errors.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.temp.Reset()
	c.target.Reset()
	c.targetLow.Reset()
	c.targetHigh.Reset()
	c.modeInfo.Reset()
	c.errors.Reset()

	for _, t := range c.ctrl.Thermostats() {
		adapter := climate.NewAdapter(c.ctrl, t)
		labels := prometheus.Labels{
			"device_id":   t.ID,
			"device_name": t.Name,
		}
		if current := adapter.CurrentTemperature(); current != nil {
			c.temp.With(labels).Set(*current)
		}
		if target := adapter.TargetTemperature(); target != nil {
			c.target.With(labels).Set(*target)
		}
		if adapter.SupportedFeatures().Has(climate.FeatureTargetTemperatureRange) {
			c.targetLow.With(labels).Set(adapter.TargetTemperatureLow())
			c.targetHigh.With(labels).Set(adapter.TargetTemperatureHigh())
		}
		c.modeInfo.With(prometheus.Labels{
			"device_id":   t.ID,
			"device_name": t.Name,
			"mode":        string(adapter.HVACMode()),
		}).Set(1)
		c.errors.With(labels).Set(float64(len(adapter.ExtraStateAttributes().ErrorStates)))
	}

	c.temp.Collect(ch)
	c.target.Collect(ch)
	c.targetLow.Collect(ch)
	c.targetHigh.Collect(ch)
	c.modeInfo.Collect(ch)
	c.errors.Collect(ch)
}
