package motor

// pidController is a fixed-cadence PID. The control loop calls it exactly
// once per sensor interval, so the terms are per-tick rather than scaled
// by wall time.
//
// The integral accumulates without bound or reset. That mirrors the
// shipped controller; see Integral below.
//
// Not safe for concurrent use.
type pidController struct {
	kp, ki, kd float64
	setpoint   float64
	outMin     float64
	outMax     float64

	integral  float64
	prevError float64
	havePrev  bool
}

func newPID(kp, ki, kd float64) *pidController {
	return &pidController{kp: kp, ki: ki, kd: kd, outMin: 0, outMax: 255}
}

func (p *pidController) SetOutputLimits(min, max float64) {
	p.outMin = min
	p.outMax = max
}

func (p *pidController) Set(setpoint float64) {
	p.setpoint = setpoint
}

// Update runs one tick against the measurement and returns the clamped
// output. On the first tick both the integral and derivative terms are
// zero, so the output is purely proportional.
func (p *pidController) Update(measurement float64) float64 {
	err := p.setpoint - measurement

	derivative := 0.0
	if p.havePrev {
		derivative = err - p.prevError
	}

	out := p.kp*err + p.ki*p.integral + p.kd*derivative

	p.integral += err
	p.prevError = err
	p.havePrev = true

	if out < p.outMin {
		out = p.outMin
	}
	if out > p.outMax {
		out = p.outMax
	}
	return out
}

// Integral exposes the raw accumulator. There is no anti-windup; whether
// there should be is an open product question, so tests can watch the
// growth instead of the controller hiding it.
func (p *pidController) Integral() float64 { return p.integral }
