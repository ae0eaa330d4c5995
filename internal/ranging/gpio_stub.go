//go:build !linux || (!arm && !arm64)

package ranging

import "fmt"

// Stub implementation for non-Linux and/or non-ARM platforms.
func OpenGPIO(pins [3]Pins) (EchoDriver, error) {
	return nil, fmt.Errorf("ranging: gpio unsupported on this platform")
}
