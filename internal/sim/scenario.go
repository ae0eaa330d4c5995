// Package sim replays scripted obstacle layouts through the same echo
// interface the real sensor array uses, so the full control loop can be
// exercised on a desk with no hardware attached.
package sim

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ScenarioScript is a deterministic, script-driven obstacle description.
//
// Time is expressed as Go duration strings (e.g. "0s", "250ms", "10s").
// If Duration is zero, it is derived from the latest keyframe time.
// Distances are meters from the vehicle nose; anything at or beyond
// NoEchoRange reads as open road.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 30s
//	loop: true
//	keyframes:
//	  - t: 0s
//	    front_m: 3.0
//	    left_m: 2.0
//	    right_m: 1.0
//	  - t: 5s
//	    front_m: 0.4
//	    left_m: 2.0
//	    right_m: 1.0
//
// Keyframes must use non-decreasing t values.
//
// Keep this struct stable: scripts are test fixtures.
type ScenarioScript struct {
	Version   int           `yaml:"version"`
	Duration  time.Duration `yaml:"duration"`
	Loop      bool          `yaml:"loop"`
	Keyframes []Keyframe    `yaml:"keyframes"`
}

// Keyframe is a time-stamped obstacle layout.
type Keyframe struct {
	T      time.Duration `yaml:"t"`
	FrontM float64       `yaml:"front_m"`
	LeftM  float64       `yaml:"left_m"`
	RightM float64       `yaml:"right_m"`
}

// Distances is the interpolated layout at one point in time.
type Distances struct {
	FrontM float64
	LeftM  float64
	RightM float64
}

type Scenario struct {
	script   ScenarioScript
	duration time.Duration
}

func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, fmt.Errorf("scenario parse failed: %w", err)
	}
	return s, nil
}

func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version != 0 && script.Version != 1 {
		return nil, fmt.Errorf("scenario version %d unsupported", script.Version)
	}
	if len(script.Keyframes) == 0 {
		return nil, fmt.Errorf("scenario has no keyframes")
	}
	for i := 1; i < len(script.Keyframes); i++ {
		if script.Keyframes[i].T < script.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframe %d out of order (t=%s before t=%s)",
				i, script.Keyframes[i].T, script.Keyframes[i-1].T)
		}
	}

	d := script.Duration
	if d <= 0 {
		d = script.Keyframes[len(script.Keyframes)-1].T
	}
	if d <= 0 {
		d = time.Second
	}
	return &Scenario{script: script, duration: d}, nil
}

func (s *Scenario) Duration() time.Duration { return s.duration }

// DistancesAt returns the interpolated layout at the given elapsed time.
// Past the end, a looping scenario wraps and a fixed one holds its last
// keyframe.
func (s *Scenario) DistancesAt(elapsed time.Duration) Distances {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > s.duration {
		if s.script.Loop {
			elapsed = elapsed % s.duration
		} else {
			elapsed = s.duration
		}
	}

	a, b, frac := selectSegment(s.script.Keyframes, elapsed)
	return Distances{
		FrontM: lerp(a.FrontM, b.FrontM, frac),
		LeftM:  lerp(a.LeftM, b.LeftM, frac),
		RightM: lerp(a.RightM, b.RightM, frac),
	}
}

func selectSegment(kfs []Keyframe, t time.Duration) (Keyframe, Keyframe, float64) {
	if t <= kfs[0].T {
		return kfs[0], kfs[0], 0
	}
	for i := 1; i < len(kfs); i++ {
		if t <= kfs[i].T {
			a, b := kfs[i-1], kfs[i]
			span := b.T - a.T
			if span <= 0 {
				return b, b, 0
			}
			return a, b, float64(t-a.T) / float64(span)
		}
	}
	last := kfs[len(kfs)-1]
	return last, last, 0
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
