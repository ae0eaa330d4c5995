// Package actuator is the effector layer: rudder servo, drive PWM, and
// the alarm buzzer. The control core only sees the three narrow write
// interfaces; hardware backends live behind build tags.
package actuator

import "io"

// ServoWriter applies a rudder angle in degrees.
type ServoWriter interface {
	WriteAngle(deg float64) error
}

// PWMWriter applies a motor duty in counts (0..255).
type PWMWriter interface {
	WriteDuty(counts float64) error
}

// Buzzer switches the alarm output on or off.
type Buzzer interface {
	Set(on bool) error
}

// Outputs bundles the three effectors the control loop drives.
type Outputs struct {
	Servo  ServoWriter
	Motor  PWMWriter
	Buzzer Buzzer
}

// Close releases any backend that holds hardware resources.
func (o Outputs) Close() {
	for _, v := range []any{o.Servo, o.Motor, o.Buzzer} {
		if c, ok := v.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

type noopServo struct{}

func (noopServo) WriteAngle(float64) error { return nil }

type noopPWM struct{}

func (noopPWM) WriteDuty(float64) error { return nil }

type noopBuzzer struct{}

func (noopBuzzer) Set(bool) error { return nil }

// Noop returns outputs that discard every write. Used when hardware is
// absent so the loop can still run for development and replay.
func Noop() Outputs {
	return Outputs{Servo: noopServo{}, Motor: noopPWM{}, Buzzer: noopBuzzer{}}
}
