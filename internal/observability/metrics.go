// Package observability bundles the Prometheus metrics of the control
// loop and its side channels.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the control-loop metrics and provides the /metrics
// handler.
type Collector struct {
	gatherer prometheus.Gatherer

	ControlTicks prometheus.Counter
	EchoTimeouts *prometheus.CounterVec

	TelemetryPushes   prometheus.Counter
	TelemetryFailures prometheus.Counter

	SteeringMode prometheus.Gauge
	RudderAngle  prometheus.Gauge
	MotorDuty    prometheus.Gauge
	MotorRPM     prometheus.Gauge
}

// NewCollector registers the rover metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}

	var err error
	if c.ControlTicks, err = registerCounter(reg, prometheus.CounterOpts{
		Name: "rover_control_ticks_total",
		Help: "Total number of completed sample+steer+speed control ticks.",
	}); err != nil {
		return nil, err
	}

	if c.EchoTimeouts, err = registerCounterVec(reg, prometheus.CounterOpts{
		Name: "rover_echo_timeouts_total",
		Help: "Distance measurements that hit the echo timeout, by channel.",
	}, []string{"channel"}); err != nil {
		return nil, err
	}

	if c.TelemetryPushes, err = registerCounter(reg, prometheus.CounterOpts{
		Name: "rover_telemetry_pushes_total",
		Help: "Telemetry frames pushed to the collector endpoint.",
	}); err != nil {
		return nil, err
	}
	if c.TelemetryFailures, err = registerCounter(reg, prometheus.CounterOpts{
		Name: "rover_telemetry_failures_total",
		Help: "Telemetry pushes that failed or returned a non-2xx status.",
	}); err != nil {
		return nil, err
	}

	if c.SteeringMode, err = registerGauge(reg, prometheus.GaugeOpts{
		Name: "rover_steering_mode",
		Help: "Current steering mode (0=straight, 1=avoiding, 2=returning).",
	}); err != nil {
		return nil, err
	}
	if c.RudderAngle, err = registerGauge(reg, prometheus.GaugeOpts{
		Name: "rover_rudder_angle_degrees",
		Help: "Current rudder angle.",
	}); err != nil {
		return nil, err
	}
	if c.MotorDuty, err = registerGauge(reg, prometheus.GaugeOpts{
		Name: "rover_motor_duty",
		Help: "PWM duty applied to the drive motor (0-255).",
	}); err != nil {
		return nil, err
	}
	if c.MotorRPM, err = registerGauge(reg, prometheus.GaugeOpts{
		Name: "rover_motor_rpm",
		Help: "Estimated drive motor RPM from the feedback model.",
	}); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, opts prometheus.CounterOpts) (prometheus.Counter, error) {
	ctr := prometheus.NewCounter(opts)
	if err := reg.Register(ctr); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return ctr, nil
}

func registerGauge(reg prometheus.Registerer, opts prometheus.GaugeOpts) (prometheus.Gauge, error) {
	g := prometheus.NewGauge(opts)
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return g, nil
}
