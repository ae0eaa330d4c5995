package motor

import (
	"math"
	"testing"
)

func testConfig() Config {
	return Config{Kp: 1.0, Ki: 0.5, Kd: 0.1, OutputMax: 255, FeedbackLag: 0.05}
}

func TestUpdate_FirstTickIsPureProportional(t *testing.T) {
	c := New(testConfig())
	c.SetDesired(100)

	out := c.Update()
	if out != 100 {
		t.Fatalf("first output=%v want Kp*error=100", out)
	}
}

func TestUpdate_OutputClamped(t *testing.T) {
	c := New(Config{Kp: 10, Ki: 0, Kd: 0, OutputMax: 255, FeedbackLag: 0.05})
	c.SetDesired(1000)

	if out := c.Update(); out != 255 {
		t.Fatalf("output=%v want clamp at 255", out)
	}

	c.SetDesired(-1000)
	if out := c.Update(); out != 0 {
		t.Fatalf("output=%v want clamp at 0", out)
	}
}

func TestUpdate_FeedbackLagModel(t *testing.T) {
	c := New(testConfig())
	c.SetDesired(100)

	out := c.Update()
	want := (out - 0) * 0.05
	if math.Abs(c.CurrentRPM()-want) > 1e-9 {
		t.Fatalf("currentRPM=%v want %v", c.CurrentRPM(), want)
	}
}

func TestPID_IntegralWindsUpWithoutBound(t *testing.T) {
	// Against a stuck measurement the error never closes, and with no
	// anti-windup the accumulator keeps climbing long after the output
	// hit the clamp.
	p := newPID(1.0, 0.5, 0.1)
	p.SetOutputLimits(0, 255)
	p.Set(100)

	for i := 0; i < 200; i++ {
		if out := p.Update(0); i > 3 && out != 255 {
			t.Fatalf("tick %d: output=%v want pegged at 255", i, out)
		}
	}
	if got := p.Integral(); got != 200*100 {
		t.Fatalf("integral=%v want %v", got, 200*100)
	}
}

func TestUpdate_ConvergesToSetpoint(t *testing.T) {
	c := New(testConfig())
	c.SetDesired(100)

	for i := 0; i < 500; i++ {
		c.Update()
	}
	if math.Abs(c.CurrentRPM()-100) > 0.5 {
		t.Fatalf("currentRPM=%v want ~100", c.CurrentRPM())
	}
	if math.Abs(c.Output()-100) > 0.5 {
		t.Fatalf("output=%v want ~100 at steady state", c.Output())
	}
	// Steady state holds the integral at setpoint/Ki.
	if math.Abs(c.Integral()-200) > 1 {
		t.Fatalf("integral=%v want ~200", c.Integral())
	}
}

func TestSetDesired_DoesNotResetAccumulators(t *testing.T) {
	c := New(testConfig())
	c.SetDesired(100)
	for i := 0; i < 10; i++ {
		c.Update()
	}
	before := c.Integral()
	if before == 0 {
		t.Fatalf("expected nonzero integral after ticks")
	}

	c.SetDesired(50)
	if c.Integral() != before {
		t.Fatalf("integral=%v want unchanged %v across setpoint change", c.Integral(), before)
	}
}
