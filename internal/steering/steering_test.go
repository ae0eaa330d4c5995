package steering

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"rover-ng/internal/ranging"
)

func testConfig() Config {
	return Config{
		FrontThresholdM: 0.50,
		LeftAngleDeg:    45,
		RightAngleDeg:   135,
		CenterAngleDeg:  90,
		SmoothingGain:   0.3,
		ReturnDelay:     2 * time.Second,
		CenterBandDeg:   2,
	}
}

func at(ms int) time.Time { return time.Unix(0, 0).Add(time.Duration(ms) * time.Millisecond) }

func TestEvaluate_StraightToAvoidingAtThreshold(t *testing.T) {
	c := New(testConfig(), nil)

	c.Evaluate(ranging.Sample{Front: 0.51, Left: 1, Right: 1}, at(0))
	if c.Mode() != ModeStraight {
		t.Fatalf("mode=%s want STRAIGHT above threshold", c.Mode())
	}

	c.Evaluate(ranging.Sample{Front: 0.50, Left: 1, Right: 1}, at(1000))
	if c.Mode() != ModeAvoiding {
		t.Fatalf("mode=%s want AVOIDING at threshold", c.Mode())
	}
}

func TestEvaluate_SentinelMeansNoObstacle(t *testing.T) {
	c := New(testConfig(), nil)
	c.Evaluate(ranging.Sample{Front: 0.3, Left: 1, Right: 2}, at(0))
	if c.Mode() != ModeAvoiding {
		t.Fatalf("mode=%s want AVOIDING", c.Mode())
	}

	// A timed-out front channel reads as clear road.
	c.Evaluate(ranging.Sample{Front: ranging.NoEchoDistance, Left: 1, Right: 2}, at(1000))
	if c.Mode() != ModeReturning {
		t.Fatalf("mode=%s want RETURNING on sentinel", c.Mode())
	}
}

func TestUpdateRudder_TargetSelection(t *testing.T) {
	cases := []struct {
		name        string
		left, right float64
		wantTarget  float64
		wantDir     string
	}{
		{"more room left", 2.0, 1.0, 45, DirectionLeft},
		{"more room right", 1.0, 2.0, 135, DirectionRight},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(testConfig(), nil)
			c.Evaluate(ranging.Sample{Front: 0.3, Left: tc.left, Right: tc.right}, at(0))
			c.UpdateRudder(at(100))
			if c.target != tc.wantTarget {
				t.Fatalf("target=%v want %v", c.target, tc.wantTarget)
			}
			if c.Direction() != tc.wantDir {
				t.Fatalf("direction=%q want %q", c.Direction(), tc.wantDir)
			}
		})
	}
}

func TestUpdateRudder_TieBreakIsUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tie := func() bool { return rng.Intn(2) == 0 }

	const trials = 2000
	lefts := 0
	for i := 0; i < trials; i++ {
		c := New(testConfig(), tie)
		c.Evaluate(ranging.Sample{Front: 0.3, Left: 1.0, Right: 1.0}, at(0))
		c.UpdateRudder(at(100))
		switch c.target {
		case 45:
			lefts++
		case 135:
		default:
			t.Fatalf("target=%v want 45 or 135", c.target)
		}
	}

	// Uniform coin: expect roughly half, generous bounds.
	if lefts < trials*2/5 || lefts > trials*3/5 {
		t.Fatalf("lefts=%d of %d, tie-break not uniform", lefts, trials)
	}
}

func TestUpdateRudder_TargetCanFlipWhileAvoiding(t *testing.T) {
	c := New(testConfig(), nil)
	c.Evaluate(ranging.Sample{Front: 0.3, Left: 2, Right: 1}, at(0))
	c.UpdateRudder(at(100))
	if c.target != 45 {
		t.Fatalf("target=%v want 45", c.target)
	}

	// Relative clearance reverses on the next sensor tick.
	c.Evaluate(ranging.Sample{Front: 0.3, Left: 1, Right: 2}, at(1000))
	c.UpdateRudder(at(1100))
	if c.target != 135 {
		t.Fatalf("target=%v want 135 after flip", c.target)
	}
}

func TestUpdateRudder_ConvergesMonotonicallyWithoutOvershoot(t *testing.T) {
	c := New(testConfig(), nil)
	c.Evaluate(ranging.Sample{Front: 0.3, Left: 2, Right: 1}, at(0))

	prevGap := math.Abs(c.Angle() - 45)
	for i := 1; i <= 50; i++ {
		angle := c.UpdateRudder(at(100 * i))
		gap := math.Abs(angle - 45)
		if angle < 45 {
			t.Fatalf("tick %d: angle=%v overshot target 45", i, angle)
		}
		if gap >= prevGap && prevGap != 0 {
			t.Fatalf("tick %d: |angle-target| not decreasing: %v -> %v", i, prevGap, gap)
		}
		prevGap = gap
	}
}

func TestUpdateRudder_ReturnDelayGatesCentering(t *testing.T) {
	c := New(testConfig(), nil)
	c.Evaluate(ranging.Sample{Front: 0.3, Left: 2, Right: 1}, at(0))
	for i := 1; i <= 10; i++ {
		c.UpdateRudder(at(100 * i))
	}
	turned := c.Angle()
	if turned >= 90 {
		t.Fatalf("expected a left turn before clearing, angle=%v", turned)
	}

	// Obstacle clears at t=1000ms.
	c.Evaluate(ranging.Sample{Front: 1.2, Left: 2, Right: 1}, at(1000))
	if c.Mode() != ModeReturning {
		t.Fatalf("mode=%s want RETURNING", c.Mode())
	}

	if got := c.UpdateRudder(at(1000 + 1999)); got != turned {
		t.Fatalf("angle moved at 1999ms past clearing: %v -> %v", turned, got)
	}
	if got := c.UpdateRudder(at(1000 + 2001)); got == turned {
		t.Fatalf("angle did not move at 2001ms past clearing")
	}
}

func TestUpdateRudder_SnapsToCenterAndResets(t *testing.T) {
	c := New(testConfig(), nil)
	c.Evaluate(ranging.Sample{Front: 0.3, Left: 2, Right: 1}, at(0))
	c.UpdateRudder(at(100))
	c.Evaluate(ranging.Sample{Front: 1.2, Left: 2, Right: 1}, at(1000))

	now := 3100
	for i := 0; i < 100 && c.Mode() != ModeStraight; i++ {
		c.UpdateRudder(at(now))
		now += 100
	}

	if c.Mode() != ModeStraight {
		t.Fatalf("never returned to STRAIGHT")
	}
	if c.Angle() != 90 {
		t.Fatalf("angle=%v want exactly 90 after snap", c.Angle())
	}
	if c.Direction() != DirectionStraight {
		t.Fatalf("direction=%q want %q", c.Direction(), DirectionStraight)
	}
	if c.Alarming() {
		t.Fatalf("buzzer should be silent in STRAIGHT")
	}
}

func TestForceCenter_KeepsMode(t *testing.T) {
	c := New(testConfig(), nil)
	c.Evaluate(ranging.Sample{Front: 0.3, Left: 2, Right: 1}, at(0))
	c.UpdateRudder(at(100))

	if got := c.ForceCenter(); got != 90 {
		t.Fatalf("angle=%v want 90", got)
	}
	if c.Mode() != ModeAvoiding {
		t.Fatalf("mode=%s, power-off must not reset the state machine", c.Mode())
	}
}
