package sim

import (
	"time"

	"rover-ng/internal/ranging"
)

// NoEchoRange is the distance at or beyond which a channel produces no
// echo at all, so the array reads its no-obstacle sentinel.
const NoEchoRange = 5.0

const (
	// Time from trigger to the start of the simulated echo pulse.
	echoRiseDelay = 200 * time.Microsecond
	// Round-trip speed of sound over ground, meters per microsecond.
	metersPerMicrosecond = 0.000344
)

var nowFn = time.Now

// Driver feeds scenario distances through the echo-line interface. Echo
// pulse widths are derived from the scripted distance the same way the
// array converts them back, so measured values round-trip exactly.
type Driver struct {
	sc    *Scenario
	start time.Time

	triggeredAt [3]time.Time
}

func NewDriver(sc *Scenario) *Driver {
	return &Driver{sc: sc, start: nowFn()}
}

func (d *Driver) TriggerPulse(c ranging.Channel) error {
	d.triggeredAt[c] = nowFn()
	return nil
}

func (d *Driver) EchoLevel(c ranging.Channel) (bool, error) {
	t0 := d.triggeredAt[c]
	if t0.IsZero() {
		return false, nil
	}

	dist := d.distance(c, t0)
	if dist >= NoEchoRange {
		return false, nil
	}

	// Echo is high while the round-trip pulse is in flight.
	width := time.Duration(2*dist/metersPerMicrosecond) * time.Microsecond
	since := nowFn().Sub(t0)
	return since >= echoRiseDelay && since < echoRiseDelay+width, nil
}

func (d *Driver) Close() error { return nil }

func (d *Driver) distance(c ranging.Channel, at time.Time) float64 {
	ds := d.sc.DistancesAt(at.Sub(d.start))
	switch c {
	case ranging.Front:
		return ds.FrontM
	case ranging.Left:
		return ds.LeftM
	default:
		return ds.RightM
	}
}
