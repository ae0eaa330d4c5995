package ranging

import (
	"fmt"
	"runtime"
	"time"
)

// NoEchoDistance is reported when no echo returns within the timeout.
// Downstream it means "no obstacle in range", not a fault.
const NoEchoDistance = 999

// Speed of sound in m/µs; the echo travels out and back, so halve it.
const metersPerMicrosecond = 0.000344

var (
	nowFn   = time.Now
	sleepFn = time.Sleep
	yieldFn = runtime.Gosched
)

type Config struct {
	// EchoTimeout bounds the wait for the echo pulse.
	EchoTimeout time.Duration
	// SettleDelay separates consecutive channel reads. Sampling the
	// channels in parallel or back-to-back produces false echoes from
	// acoustic cross-talk, so the array always serializes.
	SettleDelay time.Duration
}

// Sample is one sweep over all three channels, in meters.
type Sample struct {
	Front float64
	Left  float64
	Right float64
	At    time.Time
}

// Array drives the three-channel distance sensor set.
//
// Not safe for concurrent use; the control loop samples from one worker.
type Array struct {
	cfg Config
	drv EchoDriver

	// OnTimeout is called for every channel read that hits the echo
	// timeout. Optional; used for metrics.
	OnTimeout func(Channel)
}

func NewArray(cfg Config, drv EchoDriver) (*Array, error) {
	if drv == nil {
		return nil, fmt.Errorf("ranging: driver is nil")
	}
	if cfg.EchoTimeout <= 0 {
		cfg.EchoTimeout = 30 * time.Millisecond
	}
	return &Array{cfg: cfg, drv: drv}, nil
}

// Measure performs one distance measurement on a single channel.
//
// It triggers the channel, then polls the echo line until the high pulse
// ends or the timeout expires. Polling yields the processor between reads
// so sibling goroutines are not starved for the duration of the wait,
// which is bounded by cfg.EchoTimeout.
func (a *Array) Measure(c Channel) (float64, error) {
	if err := a.drv.TriggerPulse(c); err != nil {
		return 0, fmt.Errorf("ranging: trigger %s: %w", c, err)
	}

	deadline := nowFn().Add(a.cfg.EchoTimeout)

	// Wait for the echo pulse to start.
	for {
		high, err := a.drv.EchoLevel(c)
		if err != nil {
			return 0, fmt.Errorf("ranging: echo %s: %w", c, err)
		}
		if high {
			break
		}
		if !nowFn().Before(deadline) {
			a.noteTimeout(c)
			return NoEchoDistance, nil
		}
		yieldFn()
	}

	start := nowFn()
	for {
		high, err := a.drv.EchoLevel(c)
		if err != nil {
			return 0, fmt.Errorf("ranging: echo %s: %w", c, err)
		}
		if !high {
			break
		}
		if !nowFn().Before(deadline) {
			a.noteTimeout(c)
			return NoEchoDistance, nil
		}
		yieldFn()
	}

	us := float64(nowFn().Sub(start)) / float64(time.Microsecond)
	return us * metersPerMicrosecond / 2, nil
}

func (a *Array) noteTimeout(c Channel) {
	if a.OnTimeout != nil {
		a.OnTimeout(c)
	}
}

// Sample sweeps front, left, right in that order, separated by the settle
// delay.
func (a *Array) Sample() (Sample, error) {
	var out [3]float64
	for i, c := range Channels {
		if i > 0 {
			sleepFn(a.cfg.SettleDelay)
		}
		d, err := a.Measure(c)
		if err != nil {
			return Sample{}, err
		}
		out[i] = d
	}
	return Sample{Front: out[0], Left: out[1], Right: out[2], At: nowFn()}, nil
}

func (a *Array) Close() error {
	return a.drv.Close()
}
