//go:build !linux || (!arm && !arm64)

package actuator

import "fmt"

// Stubs for non-Linux and/or non-ARM platforms.

func OpenServo(channel int) (ServoWriter, error) {
	return nil, fmt.Errorf("actuator: pwm unsupported on this platform")
}

func OpenMotor(channel int) (PWMWriter, error) {
	return nil, fmt.Errorf("actuator: pwm unsupported on this platform")
}

func OpenBuzzer(pin int) (Buzzer, error) {
	return nil, fmt.Errorf("actuator: gpio unsupported on this platform")
}
