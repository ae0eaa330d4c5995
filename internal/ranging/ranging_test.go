package ranging

import (
	"fmt"
	"math"
	"testing"
	"time"
)

type virtualClock struct {
	now time.Time
}

func installVirtualClock(t *testing.T, step time.Duration) *virtualClock {
	t.Helper()
	clk := &virtualClock{now: time.Unix(0, 0)}

	oldNow, oldSleep, oldYield := nowFn, sleepFn, yieldFn
	nowFn = func() time.Time { return clk.now }
	sleepFn = func(d time.Duration) { clk.now = clk.now.Add(d) }
	yieldFn = func() { clk.now = clk.now.Add(step) }
	t.Cleanup(func() {
		nowFn, sleepFn, yieldFn = oldNow, oldSleep, oldYield
	})
	return clk
}

type fakeEchoDriver struct {
	clk *virtualClock

	riseDelay  map[Channel]time.Duration
	pulseWidth map[Channel]time.Duration
	noEcho     map[Channel]bool

	triggeredAt map[Channel]time.Time
	order       []Channel

	triggerErr error
	echoErr    error
	closed     bool
}

func newFakeEchoDriver(clk *virtualClock) *fakeEchoDriver {
	return &fakeEchoDriver{
		clk:         clk,
		riseDelay:   map[Channel]time.Duration{},
		pulseWidth:  map[Channel]time.Duration{},
		noEcho:      map[Channel]bool{},
		triggeredAt: map[Channel]time.Time{},
	}
}

func (d *fakeEchoDriver) TriggerPulse(c Channel) error {
	if d.triggerErr != nil {
		return d.triggerErr
	}
	d.triggeredAt[c] = d.clk.now
	d.order = append(d.order, c)
	return nil
}

func (d *fakeEchoDriver) EchoLevel(c Channel) (bool, error) {
	if d.echoErr != nil {
		return false, d.echoErr
	}
	at, ok := d.triggeredAt[c]
	if !ok || d.noEcho[c] {
		return false, nil
	}
	rise := at.Add(d.riseDelay[c])
	fall := rise.Add(d.pulseWidth[c])
	return !d.clk.now.Before(rise) && d.clk.now.Before(fall), nil
}

func (d *fakeEchoDriver) Close() error {
	d.closed = true
	return nil
}

func TestMeasure_ConvertsEchoDuration(t *testing.T) {
	clk := installVirtualClock(t, 100*time.Microsecond)
	drv := newFakeEchoDriver(clk)
	drv.riseDelay[Front] = 1 * time.Millisecond
	drv.pulseWidth[Front] = 2 * time.Millisecond

	a, err := NewArray(Config{EchoTimeout: 30 * time.Millisecond}, drv)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}

	got, err := a.Measure(Front)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	// 2000 µs round trip => 2000 * 0.000344 / 2 meters.
	want := 2000 * 0.000344 / 2
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("distance=%v want %v", got, want)
	}
}

func TestMeasure_TimeoutReturnsSentinel(t *testing.T) {
	clk := installVirtualClock(t, 100*time.Microsecond)
	drv := newFakeEchoDriver(clk)
	drv.noEcho[Front] = true

	a, err := NewArray(Config{EchoTimeout: 30 * time.Millisecond}, drv)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}

	var timeouts []Channel
	a.OnTimeout = func(c Channel) { timeouts = append(timeouts, c) }

	start := clk.now
	got, err := a.Measure(Front)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if got != NoEchoDistance {
		t.Fatalf("distance=%v want sentinel %v", got, float64(NoEchoDistance))
	}
	if waited := clk.now.Sub(start); waited < 30*time.Millisecond || waited > 35*time.Millisecond {
		t.Fatalf("waited=%s want ~30ms", waited)
	}
	if len(timeouts) != 1 || timeouts[0] != Front {
		t.Fatalf("timeouts=%v want [front]", timeouts)
	}
}

func TestMeasure_TimeoutDuringPulse(t *testing.T) {
	clk := installVirtualClock(t, 100*time.Microsecond)
	drv := newFakeEchoDriver(clk)
	// Pulse starts but never ends within the timeout.
	drv.riseDelay[Front] = 1 * time.Millisecond
	drv.pulseWidth[Front] = time.Hour

	a, err := NewArray(Config{EchoTimeout: 30 * time.Millisecond}, drv)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}

	got, err := a.Measure(Front)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if got != NoEchoDistance {
		t.Fatalf("distance=%v want sentinel", got)
	}
}

func TestSample_SequentialWithSettle(t *testing.T) {
	clk := installVirtualClock(t, 100*time.Microsecond)
	drv := newFakeEchoDriver(clk)
	for _, c := range Channels {
		drv.riseDelay[c] = 500 * time.Microsecond
		drv.pulseWidth[c] = time.Duration(c+1) * time.Millisecond
	}

	a, err := NewArray(Config{EchoTimeout: 30 * time.Millisecond, SettleDelay: 50 * time.Millisecond}, drv)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}

	s, err := a.Sample()
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}

	if len(drv.order) != 3 || drv.order[0] != Front || drv.order[1] != Left || drv.order[2] != Right {
		t.Fatalf("trigger order=%v want [front left right]", drv.order)
	}
	if s.Front >= s.Left || s.Left >= s.Right {
		t.Fatalf("expected increasing distances, got %+v", s)
	}
	// Each settle gap is respected between triggers.
	gap := drv.triggeredAt[Left].Sub(drv.triggeredAt[Front])
	if gap < 50*time.Millisecond {
		t.Fatalf("front->left gap=%s want >=50ms", gap)
	}
	if s.At.Before(drv.triggeredAt[Right]) {
		t.Fatalf("sample timestamp predates last trigger")
	}
}

func TestMeasure_DriverErrorPropagates(t *testing.T) {
	clk := installVirtualClock(t, 100*time.Microsecond)
	drv := newFakeEchoDriver(clk)
	drv.triggerErr = fmt.Errorf("line busy")

	a, err := NewArray(Config{EchoTimeout: 30 * time.Millisecond}, drv)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	if _, err := a.Measure(Front); err == nil {
		t.Fatalf("expected error from driver")
	}
}
