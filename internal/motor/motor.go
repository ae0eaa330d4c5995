// Package motor regulates drive speed: a PID converts the desired-RPM
// setpoint into a PWM duty, and a first-order lag model stands in for
// tachometer feedback until real sensing exists. Any replacement feedback
// source must keep the same cadence and gains or the loop destabilizes.
package motor

type Config struct {
	Kp float64
	Ki float64
	Kd float64

	// OutputMax clamps the duty command; 0..OutputMax maps directly onto
	// PWM counts.
	OutputMax float64
	// FeedbackLag is the per-tick lag factor of the RPM model.
	FeedbackLag float64
}

// Controller holds the speed-regulation state for one drive motor.
//
// Not safe for concurrent use; the control loop is the single writer.
type Controller struct {
	cfg Config
	pid *pidController

	desired float64
	current float64
	output  float64
}

func New(cfg Config) *Controller {
	if cfg.OutputMax <= 0 {
		cfg.OutputMax = 255
	}
	if cfg.FeedbackLag <= 0 || cfg.FeedbackLag > 1 {
		cfg.FeedbackLag = 0.05
	}
	pid := newPID(cfg.Kp, cfg.Ki, cfg.Kd)
	pid.SetOutputLimits(0, cfg.OutputMax)
	return &Controller{cfg: cfg, pid: pid}
}

func (c *Controller) SetDesired(rpm float64) {
	c.desired = rpm
	c.pid.Set(rpm)
}

// Update runs one regulation tick and returns the PWM duty to apply.
// The lag model advances on the applied (clamped) output.
func (c *Controller) Update() float64 {
	c.output = c.pid.Update(c.current)
	c.current += (c.output - c.current) * c.cfg.FeedbackLag
	return c.output
}

func (c *Controller) DesiredRPM() float64 { return c.desired }
func (c *Controller) CurrentRPM() float64 { return c.current }
func (c *Controller) Output() float64     { return c.output }
func (c *Controller) Integral() float64   { return c.pid.Integral() }
