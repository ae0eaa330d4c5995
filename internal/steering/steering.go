// Package steering turns the three-channel distance picture into a rudder
// angle. It is a small state machine with hysteresis so a reading that
// flickers around the obstacle threshold does not slam the rudder back
// and forth.
package steering

import (
	"math"
	"math/rand"
	"time"

	"rover-ng/internal/ranging"
)

type Mode int

const (
	ModeStraight Mode = iota
	ModeAvoiding
	ModeReturning
)

func (m Mode) String() string {
	switch m {
	case ModeStraight:
		return "STRAIGHT"
	case ModeAvoiding:
		return "AVOIDING"
	case ModeReturning:
		return "RETURNING"
	default:
		return "unknown"
	}
}

const (
	DirectionLeft     = "Turning Left…"
	DirectionRight    = "Turning Right…"
	DirectionStraight = "Going straight…"
)

// TieBreaker decides the turn direction when left and right distances are
// exactly equal. It returns true for left. The default is a uniform coin
// flip; tests inject a deterministic one.
type TieBreaker func() bool

func randomTie() bool { return rand.Intn(2) == 0 }

type Config struct {
	FrontThresholdM float64
	LeftAngleDeg    float64
	RightAngleDeg   float64
	CenterAngleDeg  float64
	SmoothingGain   float64
	// ReturnDelay holds the rudder after the obstacle clears before it
	// starts moving back to center.
	ReturnDelay   time.Duration
	CenterBandDeg float64
}

// Controller owns rudder state. All methods must be called from the
// control loop goroutine.
type Controller struct {
	cfg Config
	tie TieBreaker

	mode      Mode
	angle     float64
	target    float64
	direction string

	// clearedAt is when the front obstacle last went out of range.
	clearedAt time.Time

	last ranging.Sample
}

func New(cfg Config, tie TieBreaker) *Controller {
	if tie == nil {
		tie = randomTie
	}
	return &Controller{
		cfg:       cfg,
		tie:       tie,
		mode:      ModeStraight,
		angle:     cfg.CenterAngleDeg,
		target:    cfg.CenterAngleDeg,
		direction: DirectionStraight,
	}
}

func (c *Controller) Mode() Mode        { return c.mode }
func (c *Controller) Angle() float64    { return c.angle }
func (c *Controller) Direction() string { return c.direction }

// Alarming reports whether the buzzer should be pulsing.
func (c *Controller) Alarming() bool { return c.mode != ModeStraight }

// Evaluate runs the mode transitions for one sensor tick.
func (c *Controller) Evaluate(s ranging.Sample, now time.Time) {
	c.last = s

	switch c.mode {
	case ModeStraight:
		if s.Front <= c.cfg.FrontThresholdM {
			c.mode = ModeAvoiding
		}
	case ModeAvoiding:
		if s.Front > c.cfg.FrontThresholdM {
			c.mode = ModeReturning
			c.clearedAt = now
		}
	case ModeReturning:
		// The obstacle came back before we finished centering.
		if s.Front <= c.cfg.FrontThresholdM {
			c.mode = ModeAvoiding
		}
	}
}

// UpdateRudder advances the rudder one smoothing step and returns the new
// angle. Called once per rudder interval.
func (c *Controller) UpdateRudder(now time.Time) float64 {
	switch c.mode {
	case ModeAvoiding:
		c.target = c.pickTarget()
		c.angle += (c.target - c.angle) * c.cfg.SmoothingGain
		if c.target == c.cfg.LeftAngleDeg {
			c.direction = DirectionLeft
		} else {
			c.direction = DirectionRight
		}
	case ModeReturning:
		if now.Sub(c.clearedAt) < c.cfg.ReturnDelay {
			break
		}
		c.target = c.cfg.CenterAngleDeg
		c.angle += (c.target - c.angle) * c.cfg.SmoothingGain
		if math.Abs(c.angle-c.cfg.CenterAngleDeg) < c.cfg.CenterBandDeg {
			c.angle = c.cfg.CenterAngleDeg
			c.mode = ModeStraight
			c.direction = DirectionStraight
		}
	}
	return c.angle
}

// pickTarget re-evaluates the turn side from the latest sample, so the
// target can flip while the front obstacle persists.
func (c *Controller) pickTarget() float64 {
	switch {
	case c.last.Left > c.last.Right:
		return c.cfg.LeftAngleDeg
	case c.last.Right > c.last.Left:
		return c.cfg.RightAngleDeg
	case c.tie():
		return c.cfg.LeftAngleDeg
	default:
		return c.cfg.RightAngleDeg
	}
}

// ForceCenter snaps the rudder to center without touching the mode. Used
// while power is off: the vehicle rests centered, but the state machine
// resumes from where it was once power returns.
func (c *Controller) ForceCenter() float64 {
	c.angle = c.cfg.CenterAngleDeg
	return c.angle
}
